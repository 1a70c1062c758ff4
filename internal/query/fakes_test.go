package query

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vyrodovalexey/vibekart/internal/model"
)

// manualClock fires timers only when Advance is called.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	done    bool
	stopped bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks on the calling goroutine.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	pending := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case t.at <= c.now:
			t.done = true
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending reports how many timers are armed.
func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.done {
			n++
		}
	}
	return n
}

type fetchResult struct {
	items []model.Product
	err   error
}

// fetchCall is one Products invocation waiting for the test to answer it.
type fetchCall struct {
	ctx    context.Context
	filter model.Filter
	reply  chan fetchResult
}

func (c *fetchCall) respond(items []model.Product, err error) {
	c.reply <- fetchResult{items: items, err: err}
}

// scriptedSource hands every call to the test. It ignores cancellation, like
// a transport that cannot abort a request already on the wire.
type scriptedSource struct {
	calls chan *fetchCall
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{calls: make(chan *fetchCall, 32)}
}

func (s *scriptedSource) Products(ctx context.Context, filter model.Filter) ([]model.Product, error) {
	call := &fetchCall{ctx: ctx, filter: filter, reply: make(chan fetchResult, 1)}
	s.calls <- call
	r := <-call.reply
	return r.items, r.err
}

func (s *scriptedSource) next(t *testing.T) *fetchCall {
	t.Helper()

	select {
	case call := <-s.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a product fetch, none was issued")
		return nil
	}
}

func (s *scriptedSource) none(t *testing.T) {
	t.Helper()

	select {
	case call := <-s.calls:
		t.Fatalf("unexpected product fetch for %+v", call.filter)
	case <-time.After(50 * time.Millisecond):
	}
}

func products(ids ...string) []model.Product {
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Product{ID: id, Title: "product " + id})
	}
	return out
}

func ids(items []model.Product) []string {
	out := make([]string, 0, len(items))
	for _, p := range items {
		out = append(out, p.ID)
	}
	return out
}
