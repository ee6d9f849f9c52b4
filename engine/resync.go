package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/vektordb/vektor/store"
)

// ResyncOptions configures the background index repair worker.
type ResyncOptions struct {
	// QueueSize bounds the number of internal ids awaiting repair. A full
	// queue drops new entries with a warning; a later compaction or restart
	// repairs them.
	QueueSize int

	// RatePerSecond paces repair attempts so the worker cannot starve
	// foreground operations of store access.
	RatePerSecond float64

	// Burst is the rate limiter burst size.
	Burst int

	// MaxAttempts is how often a single id is retried before it is dropped.
	MaxAttempts int
}

// DefaultResyncOptions are the default resync worker options.
var DefaultResyncOptions = ResyncOptions{
	QueueSize:     1024,
	RatePerSecond: 50,
	Burst:         10,
	MaxAttempts:   5,
}

// resyncTask is one pending repair: re-read the record and reinsert it.
type resyncTask struct {
	id       uint64
	attempts int
}

// resyncQueue retries index inserts for internal ids whose store write
// committed but whose index mutation failed. Repair is idempotent:
// reinserting replaces, and an id deleted in the meantime is tombstoned.
type resyncQueue struct {
	engine  *Engine
	tasks   chan resyncTask
	limiter *rate.Limiter
	opts    ResyncOptions

	pending atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newResyncQueue(e *Engine, opts ResyncOptions) *resyncQueue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultResyncOptions.QueueSize
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = DefaultResyncOptions.RatePerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultResyncOptions.Burst
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultResyncOptions.MaxAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &resyncQueue{
		engine:  e,
		tasks:   make(chan resyncTask, opts.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		opts:    opts,
		cancel:  cancel,
	}

	q.wg.Add(1)
	go q.run(ctx)

	return q
}

// enqueue schedules a repair for the internal id. Non-blocking: a full
// queue drops the id.
func (q *resyncQueue) enqueue(ctx context.Context, id uint64) {
	select {
	case q.tasks <- resyncTask{id: id}:
		q.pending.Add(1)
	default:
		q.engine.logger.WarnContext(ctx, "resync queue full, dropping id",
			"internal_id", id,
		)
	}
}

func (q *resyncQueue) pendingCount() int {
	return int(q.pending.Load())
}

func (q *resyncQueue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			if err := q.limiter.Wait(ctx); err != nil {
				// Shutting down; stop() drains what is left.
				q.requeue(task)
				return
			}
			q.repair(ctx, task)
		}
	}
}

// repair re-reads the store and applies the index mutation that was lost.
func (q *resyncQueue) repair(ctx context.Context, task resyncTask) {
	rec, err := q.engine.store.GetByInternalID(ctx, task.id)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted since the failure: the tombstone is the repair.
		q.engine.index().Tombstone(task.id)
		q.pending.Add(-1)
		return
	}
	if err == nil {
		err = q.engine.index().Insert(task.id, rec.Vector)
	}

	if err == nil {
		q.engine.logger.InfoContext(ctx, "resync repaired index entry",
			"internal_id", task.id,
		)
		q.pending.Add(-1)
		return
	}

	task.attempts++
	if task.attempts >= q.opts.MaxAttempts {
		q.engine.logger.ErrorContext(ctx, "resync giving up on id",
			"internal_id", task.id,
			"attempts", task.attempts,
			"error", err,
		)
		q.pending.Add(-1)
		return
	}

	q.requeue(task)
}

func (q *resyncQueue) requeue(task resyncTask) {
	select {
	case q.tasks <- task:
	default:
		q.pending.Add(-1)
	}
}

// stop shuts the worker down and drains the remaining queue synchronously,
// unpaced. Repairs that still fail are dropped.
func (q *resyncQueue) stop() {
	q.cancel()
	q.wg.Wait()

	for {
		select {
		case task := <-q.tasks:
			q.drainOne(task)
		default:
			return
		}
	}
}

func (q *resyncQueue) drainOne(task resyncTask) {
	ctx := context.Background()

	rec, err := q.engine.store.GetByInternalID(ctx, task.id)
	if errors.Is(err, store.ErrNotFound) {
		q.engine.index().Tombstone(task.id)
		q.pending.Add(-1)
		return
	}
	if err == nil {
		err = q.engine.index().Insert(task.id, rec.Vector)
	}
	if err != nil {
		q.engine.logger.Warn("resync drain failed for id",
			"internal_id", task.id,
			"error", err,
		)
	}
	q.pending.Add(-1)
}
