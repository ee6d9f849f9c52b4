// Package engine synchronizes the durable record store with the in-memory
// ANN index.
//
// The store is the source of truth; the index is a rebuildable cache over
// it. Every mutation routes through the engine to keep the two aligned:
//   - upsert: tombstone the old index entry, commit the store write, insert
//     into the index under the store-assigned internal id
//   - delete: tombstone the index entry, commit the store delete
//
// A store write that commits while the matching index mutation fails leaves
// a bounded inconsistency window: the engine schedules a background resync
// for the affected internal id instead of failing the caller. Recovery
// (snapshot load or full rebuild) closes any window left by a crash.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vektordb/vektor/distance"
	"github.com/vektordb/vektor/index"
	"github.com/vektordb/vektor/model"
	"github.com/vektordb/vektor/store"
)

var (
	// ErrEmptyExternalID is returned for mutations with an empty key.
	ErrEmptyExternalID = errors.New("external id must not be empty")

	// ErrInvalidK is returned when a search requests a non-positive k.
	ErrInvalidK = errors.New("k must be positive")
)

// Options represents the options for configuring the engine.
type Options struct {
	// SnapshotPath is where the index snapshot is written on Close and read
	// during recovery. Empty disables snapshots: recovery always rebuilds.
	SnapshotPath string

	// Logger receives structured operational logs. Nil discards them.
	Logger *slog.Logger

	// Resync configures the background index repair worker.
	Resync ResyncOptions
}

// Engine coordinates one record store and one ANN index.
//
// The store and index handles are explicit dependencies: the engine never
// reaches for shared global state, so tests and embedders can wire any
// combination of implementations.
type Engine struct {
	store    store.Store
	provider index.Provider

	// writeMu serializes mutations so the tombstone/write/insert sequence
	// of concurrent upserts to the same key cannot interleave.
	writeMu sync.Mutex

	// idxMu guards the index handle itself, which compaction swaps.
	idxMu sync.RWMutex
	idx   index.Index

	logger       *slog.Logger
	snapshotPath string
	resync       *resyncQueue
}

// New creates an engine over the given store and index provider and runs
// recovery: it restores the index from the configured snapshot when one is
// present and compatible, rebuilds it from a store scan otherwise, and then
// reconciles the index against the store so every stored record is
// searchable.
func New(ctx context.Context, s store.Store, provider index.Provider, optFns ...func(o *Options)) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: store is nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("engine: index provider is nil")
	}

	opts := Options{
		Resync: DefaultResyncOptions,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		store:        s,
		provider:     provider,
		logger:       opts.Logger,
		snapshotPath: opts.SnapshotPath,
	}

	if err := e.recover(ctx); err != nil {
		return nil, err
	}

	e.resync = newResyncQueue(e, opts.Resync)

	return e, nil
}

// index returns the current index handle. Compaction may swap the handle,
// so callers must not cache it across operations.
func (e *Engine) index() index.Index {
	e.idxMu.RLock()
	defer e.idxMu.RUnlock()
	return e.idx
}

// Upsert writes the record durably and makes it searchable. Vectors are
// unit-normalized before storage. An existing record under the same external
// id keeps its internal id; its old index entry becomes a tombstone.
// Non-nil metadata replaces the stored value wholesale, never merged; nil
// metadata retains whatever is stored.
func (e *Engine) Upsert(ctx context.Context, externalID string, vector []float32, meta model.Metadata) (model.UpsertResult, error) {
	if externalID == "" {
		return model.UpsertResult{}, ErrEmptyExternalID
	}
	if dim := e.index().Dimension(); len(vector) != dim {
		return model.UpsertResult{}, &index.ErrDimensionMismatch{Expected: dim, Actual: len(vector)}
	}

	vec := distance.NormalizeCopy(vector)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	idx := e.index()

	existing, err := e.store.Get(ctx, externalID)
	switch {
	case err == nil:
		// Replace: tombstone first so the old vector can never outrank the
		// new one, then commit, then insert under the unchanged id.
		idx.Tombstone(uint64(existing.InternalID))

		id, err := e.store.Update(ctx, externalID, vec, meta)
		if err != nil {
			// The record is still stored with its old vector but its index
			// entry is gone. Resync re-reads the store and restores it.
			e.scheduleResync(ctx, uint64(existing.InternalID))
			return model.UpsertResult{}, fmt.Errorf("update record: %w", err)
		}

		if err := e.insertIntoIndex(ctx, idx, uint64(id), vec); err != nil {
			return model.UpsertResult{}, err
		}

		return model.UpsertResult{ExternalID: externalID, InternalID: id, Status: model.StatusUpdated}, nil

	case errors.Is(err, store.ErrNotFound):
		// New records always get a metadata map, so nil means "retain"
		// only ever on the update path.
		if meta == nil {
			meta = model.Metadata{}
		}
		id, err := e.store.Create(ctx, externalID, vec, meta)
		if err != nil {
			return model.UpsertResult{}, fmt.Errorf("create record: %w", err)
		}

		if err := e.insertIntoIndex(ctx, idx, uint64(id), vec); err != nil {
			return model.UpsertResult{}, err
		}

		return model.UpsertResult{ExternalID: externalID, InternalID: id, Status: model.StatusInserted}, nil

	default:
		return model.UpsertResult{}, fmt.Errorf("lookup record: %w", err)
	}
}

// insertIntoIndex applies the index half of a committed store write.
// Capacity exhaustion is surfaced: retrying cannot succeed until a
// compaction. Any other failure schedules a resync and reports success,
// since the store already holds the record.
func (e *Engine) insertIntoIndex(ctx context.Context, idx index.Index, id uint64, vec []float32) error {
	err := idx.Insert(id, vec)
	if err == nil {
		return nil
	}
	if errors.Is(err, index.ErrCapacityExhausted) {
		return err
	}

	e.logger.WarnContext(ctx, "index insert failed, scheduling resync",
		"internal_id", id,
		"error", err,
	)
	e.scheduleResync(ctx, id)

	return nil
}

func (e *Engine) scheduleResync(ctx context.Context, id uint64) {
	// nil during recovery; recovery itself reconciles.
	if e.resync == nil {
		return
	}
	e.resync.enqueue(ctx, id)
}

// BatchUpsert applies items independently in order. A failing item does not
// abort the batch; its error is reported in the matching result slot.
func (e *Engine) BatchUpsert(ctx context.Context, items []model.UpsertItem) []model.BatchItemResult {
	results := make([]model.BatchItemResult, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				results[j] = model.BatchItemResult{Err: err}
			}
			break
		}

		res, err := e.Upsert(ctx, item.ExternalID, item.Vector, item.Metadata)
		results[i] = model.BatchItemResult{UpsertResult: res, Err: err}
	}

	return results
}

// Delete removes the record and tombstones its index entry. The freed
// internal id is returned and never reused.
func (e *Engine) Delete(ctx context.Context, externalID string) (model.InternalID, error) {
	if externalID == "" {
		return 0, ErrEmptyExternalID
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	rec, err := e.store.Get(ctx, externalID)
	if err != nil {
		return 0, fmt.Errorf("lookup record: %w", err)
	}

	e.index().Tombstone(uint64(rec.InternalID))

	if _, err := e.store.Delete(ctx, externalID); err != nil {
		// Tombstoned but still stored: resync re-reads the store and
		// reinserts the entry, undoing the premature tombstone.
		e.scheduleResync(ctx, uint64(rec.InternalID))
		return 0, fmt.Errorf("delete record: %w", err)
	}

	return rec.InternalID, nil
}

// Get returns the stored record for the external id.
func (e *Engine) Get(ctx context.Context, externalID string) (model.Record, error) {
	if externalID == "" {
		return model.Record{}, ErrEmptyExternalID
	}
	return e.store.Get(ctx, externalID)
}

// Stats reports store and index occupancy.
func (e *Engine) Stats(ctx context.Context) (model.Stats, error) {
	records, err := e.store.Count(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("count records: %w", err)
	}

	idx := e.index()
	live := idx.Live()

	return model.Stats{
		Records:         records,
		IndexLive:       live,
		IndexTombstoned: idx.Count() - live,
		IndexCapacity:   idx.Capacity(),
		PendingResync:   e.resync.pendingCount(),
	}, nil
}

// Compact rebuilds the index from a store scan and swaps it in, reclaiming
// the capacity held by tombstones. Writes block for the duration; searches
// keep hitting the old index until the swap.
func (e *Engine) Compact(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	fresh, err := e.provider.New()
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	n, err := e.populate(ctx, fresh)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	e.idxMu.Lock()
	old := e.idx
	e.idx = fresh
	e.idxMu.Unlock()

	e.logger.InfoContext(ctx, "compaction completed",
		"records", n,
		"reclaimed", old.Count()-old.Live(),
	)

	return nil
}

// populate inserts every stored record into idx in ascending internal id
// order, which makes rebuilds deterministic.
func (e *Engine) populate(ctx context.Context, idx index.Index) (int, error) {
	n := 0
	err := e.store.Scan(ctx, func(rec model.Record) error {
		if err := idx.Insert(uint64(rec.InternalID), rec.Vector); err != nil {
			return fmt.Errorf("insert record %d: %w", rec.InternalID, err)
		}
		n++
		return nil
	})
	return n, err
}

// recover brings up the index: snapshot load when available and compatible,
// full rebuild otherwise. After a snapshot load the index is reconciled
// against the store, inserting records written after the snapshot was taken.
func (e *Engine) recover(ctx context.Context) error {
	var (
		idx    index.Index
		source = "rebuild"
	)

	if e.snapshotPath != "" {
		if _, err := os.Stat(e.snapshotPath); err == nil {
			loaded, err := e.provider.LoadFromFile(e.snapshotPath)
			if err != nil {
				// Incompatible or corrupt snapshots are recoverable: the
				// store has everything needed for a rebuild.
				e.logger.WarnContext(ctx, "snapshot load failed, rebuilding index",
					"path", e.snapshotPath,
					"error", err,
				)
			} else {
				idx = loaded
				source = "snapshot"
			}
		}
	}

	if idx == nil {
		fresh, err := e.provider.New()
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		idx = fresh
	}

	reconciled := 0
	err := e.store.Scan(ctx, func(rec model.Record) error {
		if idx.Has(uint64(rec.InternalID)) {
			return nil
		}
		if err := idx.Insert(uint64(rec.InternalID), rec.Vector); err != nil {
			return fmt.Errorf("insert record %d: %w", rec.InternalID, err)
		}
		reconciled++
		return nil
	})
	if err != nil {
		return fmt.Errorf("reconcile index: %w", err)
	}

	e.idxMu.Lock()
	e.idx = idx
	e.idxMu.Unlock()

	e.logger.InfoContext(ctx, "recovery completed",
		"source", source,
		"live", idx.Live(),
		"reconciled", reconciled,
	)

	return nil
}

// Snapshot persists the current index to the configured snapshot path.
func (e *Engine) Snapshot(ctx context.Context) error {
	if e.snapshotPath == "" {
		return nil
	}

	err := e.index().SaveToFile(e.snapshotPath)
	if err != nil {
		e.logger.ErrorContext(ctx, "snapshot failed",
			"path", e.snapshotPath,
			"error", err,
		)
		return fmt.Errorf("save snapshot: %w", err)
	}

	e.logger.InfoContext(ctx, "snapshot saved", "path", e.snapshotPath)
	return nil
}

// Close stops the resync worker (draining its queue best-effort), writes a
// final snapshot when configured, and closes the store.
func (e *Engine) Close() error {
	e.resync.stop()

	g := new(errgroup.Group)

	g.Go(func() error {
		return e.Snapshot(context.Background())
	})
	g.Go(e.store.Close)

	return g.Wait()
}
