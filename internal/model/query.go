package model

// Filter is the pair of user inputs that selects a product list.
// Empty fields mean no filter on that axis.
type Filter struct {
	SearchText string `json:"search"`
	Category   string `json:"category"`
}

// QueryState is the catalog query as seen by the presentation layer.
type QueryState struct {
	Filter
	Items      []Product `json:"items"`
	Loading    bool      `json:"loading"`
	Generation uint64    `json:"generation"`
}
