package vektor

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordUpsert is called after each upsert operation.
	// duration is the total time taken, err is nil if successful.
	RecordUpsert(duration time.Duration, err error)

	// RecordBatchUpsert is called after each batch upsert operation.
	// count is the number of items attempted, failed is the number that
	// failed, duration is the total time taken.
	RecordBatchUpsert(count, failed int, duration time.Duration)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsert(time.Duration, error)         {}
func (NoopMetricsCollector) RecordBatchUpsert(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpsertCount       atomic.Int64
	UpsertErrors      atomic.Int64
	UpsertTotalNanos  atomic.Int64
	BatchUpsertCount  atomic.Int64
	BatchUpsertItems  atomic.Int64
	BatchUpsertFailed atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteErrors      atomic.Int64
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordBatchUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchUpsert(count, failed int, duration time.Duration) {
	b.BatchUpsertCount.Add(1)
	b.BatchUpsertItems.Add(int64(count))
	b.BatchUpsertFailed.Add(int64(failed))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertCount:       b.UpsertCount.Load(),
		UpsertErrors:      b.UpsertErrors.Load(),
		UpsertAvgNanos:    b.avgUpsertNanos(),
		BatchUpsertCount:  b.BatchUpsertCount.Load(),
		BatchUpsertItems:  b.BatchUpsertItems.Load(),
		BatchUpsertFailed: b.BatchUpsertFailed.Load(),
		SearchCount:       b.SearchCount.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchAvgNanos:    b.avgSearchNanos(),
		DeleteCount:       b.DeleteCount.Load(),
		DeleteErrors:      b.DeleteErrors.Load(),
	}
}

func (b *BasicMetricsCollector) avgUpsertNanos() int64 {
	count := b.UpsertCount.Load()
	if count == 0 {
		return 0
	}
	return b.UpsertTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) avgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertCount       int64
	UpsertErrors      int64
	UpsertAvgNanos    int64
	BatchUpsertCount  int64
	BatchUpsertItems  int64
	BatchUpsertFailed int64
	SearchCount       int64
	SearchErrors      int64
	SearchAvgNanos    int64
	DeleteCount       int64
	DeleteErrors      int64
}
