// Package session hosts storefront sessions: one query controller, category
// directory and cart per shopper, with their composed view fanned out to
// subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/cart"
	"github.com/vyrodovalexey/vibekart/internal/catalog"
	"github.com/vyrodovalexey/vibekart/internal/model"
	"github.com/vyrodovalexey/vibekart/internal/query"
	"github.com/vyrodovalexey/vibekart/internal/view"
)

// Session errors.
var (
	ErrNotFound         = errors.New("session not found")
	ErrInvalidID        = errors.New("invalid session ID")
	ErrClosed           = errors.New("session closed")
	ErrTooManySessions  = errors.New("session limit reached")
	ErrProductNotListed = errors.New("product is not in the displayed list")
	ErrEmptyProductID   = errors.New("product id cannot be empty")
)

// Session is one shopper's storefront.
type Session struct {
	id        string
	createdAt time.Time
	logger    *zap.Logger
	now       func() time.Time

	query     *query.Controller
	cart      *cart.Store
	directory *catalog.Directory

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	lastQuery   model.QueryState
	categories  []model.Category
	subscribers map[uint64]chan view.View
	nextSubID   uint64
	lastSeen    time.Time
	closed      bool
}

func newSession(id string, source catalog.Source, logger *zap.Logger, now func() time.Time, opts ...query.Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With(zap.String("session_id", id))

	s := &Session{
		id:          id,
		createdAt:   now(),
		logger:      logger,
		now:         now,
		query:       query.New(source, logger, opts...),
		cart:        cart.NewStore(),
		directory:   catalog.NewDirectory(source, logger),
		ctx:         ctx,
		cancel:      cancel,
		categories:  []model.Category{},
		subscribers: make(map[uint64]chan view.View),
	}
	s.lastQuery = s.query.State()
	s.lastSeen = s.createdAt

	return s
}

// start wires the controller to the fan-out and kicks off the category load
// and the initial product fetch. They run independently of each other.
func (s *Session) start() {
	s.query.Subscribe(s.onQueryChange)
	s.query.Start()

	go func() {
		categories := s.directory.Load(s.ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.categories = categories
		s.publishLocked()
	}()
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) onQueryChange(state model.QueryState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.lastQuery = state
	s.publishLocked()
}

// View returns the current composed view.
func (s *Session) View() view.View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.viewLocked()
}

func (s *Session) viewLocked() view.View {
	return view.Compose(s.lastQuery, s.cart.State(), slices.Clone(s.categories))
}

// SetFilter changes search text and category together.
func (s *Session) SetFilter(filter model.Filter) error {
	if err := s.touch(); err != nil {
		return err
	}
	s.query.SetFilter(filter)
	return nil
}

// SetSearchText changes only the search text.
func (s *Session) SetSearchText(text string) error {
	if err := s.touch(); err != nil {
		return err
	}
	s.query.SetSearchText(text)
	return nil
}

// SetCategory changes only the category filter.
func (s *Session) SetCategory(slug string) error {
	if err := s.touch(); err != nil {
		return err
	}
	s.query.SetCategory(slug)
	return nil
}

// AddToCart adds one unit of a displayed product to the cart.
func (s *Session) AddToCart(productID string) (model.CartLine, error) {
	if productID == "" {
		return model.CartLine{}, ErrEmptyProductID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.CartLine{}, ErrClosed
	}
	s.lastSeen = s.now()

	idx := slices.IndexFunc(s.lastQuery.Items, func(p model.Product) bool {
		return p.ID == productID
	})
	if idx < 0 {
		return model.CartLine{}, fmt.Errorf("add %q to cart: %w", productID, ErrProductNotListed)
	}

	line, err := s.cart.AddItem(s.lastQuery.Items[idx])
	if err != nil {
		return model.CartLine{}, fmt.Errorf("add %q to cart: %w", productID, err)
	}

	s.logger.Debug("added to cart",
		zap.String("product_id", productID),
		zap.Int("quantity", line.Quantity),
	)
	s.publishLocked()
	return line, nil
}

// Cart returns a snapshot of the cart.
func (s *Session) Cart() model.CartState {
	return s.cart.State()
}

// Subscribe returns a channel that receives the view after every change,
// starting with the current one. Slow readers only see the latest view.
// The channel is closed by the returned cancel function or when the session
// closes.
func (s *Session) Subscribe() (<-chan view.View, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrClosed
	}

	id := s.nextSubID
	s.nextSubID++

	ch := make(chan view.View, 1)
	ch <- s.viewLocked()
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
			s.lastSeen = s.now()
		}
	}
	return ch, cancel, nil
}

// publishLocked pushes the current view to every subscriber, replacing any
// view the subscriber has not read yet.
func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}

	v := s.viewLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// touch records activity and reports whether the session is still open.
func (s *Session) touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.lastSeen = s.now()
	return nil
}

// idleSince reports when the session was last used. Sessions with live
// subscribers are never idle.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subscribers) > 0 {
		return time.Time{}, false
	}
	return s.lastSeen, true
}

// close stops the controller, aborts the category load and releases every
// subscriber.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.query.Close()
}
