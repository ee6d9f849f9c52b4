package model

// InternalID is the store-assigned integer identity of a record. It is the
// join key between the record store and the ANN index and is never reused,
// even after the record is deleted.
type InternalID = uint64

// Metadata is a free-form mapping of string keys to JSON-compatible scalar
// values attached to a record.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata. A nil receiver yields nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Matches reports whether every key in filters is present in m with an equal
// value. An empty filter set matches everything.
func (m Metadata) Matches(filters map[string]any) bool {
	for k, want := range filters {
		got, ok := m[k]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// scalarEqual compares two JSON-decoded scalar values. Numbers are compared
// as float64 regardless of the concrete Go type they decoded into, so a
// filter built from an int matches a value that round-tripped through JSON.
func scalarEqual(a, b any) bool {
	if af, ok := toFloat64(a); ok {
		bf, ok := toFloat64(b)
		return ok && af == bf
	}
	return a == b
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Record is the durable unit of storage.
type Record struct {
	// InternalID is assigned by the store at creation and retained across
	// updates.
	InternalID InternalID

	// ExternalID is the caller-chosen, globally unique identifier. Immutable
	// once created.
	ExternalID string

	// Vector is the record's embedding, stored in unit-normalized form.
	Vector []float32

	// Metadata is optional and preserved verbatim across updates unless
	// explicitly replaced.
	Metadata Metadata
}

// UpsertStatus indicates whether an upsert created or replaced a record.
type UpsertStatus string

const (
	StatusInserted UpsertStatus = "inserted"
	StatusUpdated  UpsertStatus = "updated"
)

// UpsertResult is returned for every successfully upserted record.
type UpsertResult struct {
	ExternalID string       `json:"external_id"`
	InternalID InternalID   `json:"internal_id"`
	Status     UpsertStatus `json:"status"`
}

// SearchHit is a single ranked search result. Score is cosine similarity in
// [-1, 1]; results are ordered by descending score.
type SearchHit struct {
	ExternalID string     `json:"external_id"`
	InternalID InternalID `json:"internal_id"`
	Score      float32    `json:"score"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

// UpsertItem is one record in a batch upsert.
type UpsertItem struct {
	ExternalID string    `json:"external_id"`
	Vector     []float32 `json:"vector"`
	Metadata   Metadata  `json:"metadata,omitempty"`
}

// BatchItemResult pairs a batch item's result with its error. Exactly one of
// the two is meaningful: Err is nil on success.
type BatchItemResult struct {
	UpsertResult
	Err error `json:"-"`
}

// Stats is a point-in-time snapshot of store and index occupancy.
type Stats struct {
	// Records is the number of live records in the store.
	Records int `json:"records"`

	// IndexLive is the number of searchable index entries.
	IndexLive int `json:"index_live"`

	// IndexTombstoned is the number of deleted-but-present index entries.
	// They occupy capacity until a compaction rebuilds the index.
	IndexTombstoned int `json:"index_tombstoned"`

	// IndexCapacity is the index's currently allocated entry capacity.
	IndexCapacity int `json:"index_capacity"`

	// PendingResync is the number of internal ids queued for index repair.
	PendingResync int `json:"pending_resync"`
}
