package vektor

type searchOptions struct {
	filters map[string]any
	breadth int
}

// SearchOption configures a single search.
type SearchOption func(*searchOptions)

// WithFilters restricts results to records whose metadata contains every
// given key with an exactly equal value (AND semantics). Filtered searches
// are exact: they scan the record store instead of the ANN index, trading
// latency for precision.
func WithFilters(filters map[string]any) SearchOption {
	return func(o *searchOptions) {
		o.filters = filters
	}
}

// WithBreadth overrides the query-time exploration breadth for this search.
// Larger values improve recall at the cost of latency; values below k are
// raised to k.
func WithBreadth(breadth int) SearchOption {
	return func(o *searchOptions) {
		o.breadth = breadth
	}
}

func (db *DB) searchOptions(optFns []SearchOption) searchOptions {
	o := searchOptions{
		breadth: db.searchBreadth,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
