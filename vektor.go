package vektor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vektordb/vektor/engine"
	"github.com/vektordb/vektor/index/hnsw"
	"github.com/vektordb/vektor/model"
	"github.com/vektordb/vektor/store"
)

const (
	storeFilename    = "vektor.db"
	snapshotFilename = "index.snap"
)

// DB is a durable vector database: records keyed by external id, searched
// by approximate nearest neighbor over their embeddings.
type DB struct {
	engine  *engine.Engine
	logger  *Logger
	metrics MetricsCollector

	searchBreadth int
}

// Open creates or reopens a database with the given vector dimension.
//
// With WithDataDir the record store is a SQLite database inside the
// directory and the index snapshot lives beside it; the directory is
// created if missing. Without it the database is fully in-memory.
//
// Open performs recovery before returning: reopening a database restores
// the index from its snapshot when possible and rebuilds it from the record
// store otherwise, so every stored record is searchable.
func Open(ctx context.Context, dimension int, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	var (
		s            store.Store
		snapshotPath string
		err          error
	)

	if opts.dataDir != "" {
		if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err = store.OpenSQLite(ctx, filepath.Join(opts.dataDir, storeFilename))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		snapshotPath = filepath.Join(opts.dataDir, snapshotFilename)
	} else {
		s = store.NewMemory()
	}

	provider := hnsw.NewProvider(func(o *hnsw.Options) {
		o.Dimension = dimension
		o.Metric = opts.metric
		if opts.m > 0 {
			o.M = opts.m
		}
		if opts.efConstruction > 0 {
			o.EFConstruction = opts.efConstruction
		}
		if opts.searchBreadth > 0 {
			o.EFSearch = opts.searchBreadth
		}
		if opts.initialCapacity > 0 {
			o.InitialCapacity = opts.initialCapacity
		}
		o.MaxCapacity = opts.maxCapacity
	})

	eng, err := engine.New(ctx, s, provider, func(o *engine.Options) {
		o.SnapshotPath = snapshotPath
		o.Logger = opts.logger.Logger
		o.Resync = opts.resync
	})
	if err != nil {
		s.Close()
		return nil, translateError(err)
	}

	return &DB{
		engine:        eng,
		logger:        opts.logger,
		metrics:       opts.metricsCollector,
		searchBreadth: opts.searchBreadth,
	}, nil
}

// Upsert writes a record durably and makes it searchable. The vector is
// unit-normalized before storage. An existing record under the same
// external id is replaced, keeping its internal id; metadata is replaced
// wholesale, never merged.
func (db *DB) Upsert(ctx context.Context, externalID string, vector []float32, meta model.Metadata) (model.UpsertResult, error) {
	start := time.Now()

	res, err := db.engine.Upsert(ctx, externalID, vector, meta)
	err = translateError(err)

	db.metrics.RecordUpsert(time.Since(start), err)
	db.logger.LogUpsert(ctx, externalID, string(res.Status), err)

	return res, err
}

// BatchUpsert applies items independently in order. A failing item does not
// abort the batch; its error sits in the matching result slot.
func (db *DB) BatchUpsert(ctx context.Context, items []model.UpsertItem) []model.BatchItemResult {
	start := time.Now()

	results := db.engine.BatchUpsert(ctx, items)

	failed := 0
	for i := range results {
		if results[i].Err != nil {
			results[i].Err = translateError(results[i].Err)
			failed++
		}
	}

	db.metrics.RecordBatchUpsert(len(items), failed, time.Since(start))
	db.logger.LogBatchUpsert(ctx, len(items), failed)

	return results
}

// Get returns the stored record for the external id.
func (db *DB) Get(ctx context.Context, externalID string) (model.Record, error) {
	rec, err := db.engine.Get(ctx, externalID)
	return rec, translateError(err)
}

// Delete removes a record durably and drops it from search results. The
// freed internal id is returned and never reused.
func (db *DB) Delete(ctx context.Context, externalID string) (model.InternalID, error) {
	start := time.Now()

	id, err := db.engine.Delete(ctx, externalID)
	err = translateError(err)

	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(ctx, externalID, err)

	return id, err
}

// Search returns the k records most similar to the query vector, ordered
// by descending cosine similarity.
func (db *DB) Search(ctx context.Context, query []float32, k int, optFns ...SearchOption) ([]model.SearchHit, error) {
	opts := db.searchOptions(optFns)
	start := time.Now()

	hits, err := db.engine.Search(ctx, query, k, opts.filters, opts.breadth)
	err = translateError(err)

	db.metrics.RecordSearch(k, time.Since(start), err)
	db.logger.LogSearch(ctx, k, len(hits), err)

	return hits, err
}

// Recommend returns the k records most similar to an existing record,
// excluding the record itself. Filters are not supported on this path.
func (db *DB) Recommend(ctx context.Context, externalID string, k int, optFns ...SearchOption) ([]model.SearchHit, error) {
	opts := db.searchOptions(optFns)
	start := time.Now()

	hits, err := db.engine.Recommend(ctx, externalID, k, opts.breadth)
	err = translateError(err)

	db.metrics.RecordSearch(k, time.Since(start), err)
	db.logger.LogSearch(ctx, k, len(hits), err)

	return hits, err
}

// Similarity returns the cosine similarity between two stored records,
// in [-1, 1].
func (db *DB) Similarity(ctx context.Context, externalIDA, externalIDB string) (float32, error) {
	sim, err := db.engine.Similarity(ctx, externalIDA, externalIDB)
	return sim, translateError(err)
}

// Stats reports record and index occupancy.
func (db *DB) Stats(ctx context.Context) (model.Stats, error) {
	stats, err := db.engine.Stats(ctx)
	return stats, translateError(err)
}

// Compact rebuilds the index from the record store, reclaiming the capacity
// held by deleted entries. Writes block for the duration.
func (db *DB) Compact(ctx context.Context) error {
	err := translateError(db.engine.Compact(ctx))
	db.logger.LogCompaction(ctx, err)
	return err
}

// Snapshot persists the current index beside the record store, shortening
// the next recovery. A no-op for in-memory databases.
func (db *DB) Snapshot(ctx context.Context) error {
	return translateError(db.engine.Snapshot(ctx))
}

// Close stops background work, writes a final index snapshot when the
// database is durable, and closes the record store.
func (db *DB) Close() error {
	return translateError(db.engine.Close())
}
