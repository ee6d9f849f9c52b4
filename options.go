package vektor

import (
	"log/slog"

	"github.com/vektordb/vektor/distance"
	"github.com/vektordb/vektor/engine"
)

type options struct {
	dataDir          string
	metric           distance.Metric
	m                int
	efConstruction   int
	searchBreadth    int
	initialCapacity  int
	maxCapacity      int
	resync           engine.ResyncOptions
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open behavior.
type Option func(*options)

// WithDataDir sets the directory holding the record database and index
// snapshot. An empty path (the default) opens an ephemeral in-memory
// database: everything is lost on Close.
func WithDataDir(path string) Option {
	return func(o *options) {
		o.dataDir = path
	}
}

// WithMetric sets the distance metric. The default is cosine over
// unit-normalized vectors.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithM sets the HNSW connectivity parameter: how many links each entry
// maintains per graph layer.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction sets the candidate list size used while building the
// HNSW graph. Larger values improve graph quality at the cost of upsert
// latency.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithSearchBreadth sets the default query-time exploration breadth.
// Per-query WithBreadth overrides it.
func WithSearchBreadth(ef int) Option {
	return func(o *options) {
		o.searchBreadth = ef
	}
}

// WithInitialCapacity sets the index entry capacity preallocated up front.
func WithInitialCapacity(n int) Option {
	return func(o *options) {
		o.initialCapacity = n
	}
}

// WithMaxCapacity bounds automatic index growth. Upserts beyond the bound
// fail with ErrCapacityExhausted until a Compact reclaims tombstone
// occupancy. Zero (the default) means unbounded.
func WithMaxCapacity(n int) Option {
	return func(o *options) {
		o.maxCapacity = n
	}
}

// WithResyncOptions tunes the background index repair worker.
func WithResyncOptions(opts engine.ResyncOptions) Option {
	return func(o *options) {
		o.resync = opts
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metric:           distance.MetricCosine,
		resync:           engine.DefaultResyncOptions,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
