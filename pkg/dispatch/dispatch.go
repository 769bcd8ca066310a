// Package dispatch runs named tasks asynchronously on a bounded worker pool.
//
// Dispatch never blocks the caller: when the queue is full the task is
// dropped and the drop is logged. Delivery is at-most-once, and queue
// backpressure never propagates into the request path.
//
// Each worker owns one lane. DispatchKeyed hashes its key onto a lane, so
// tasks sharing a key run on the same worker in submission order.
package dispatch

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/signupkit/pkg/logger"
)

// Task is a unit of asynchronous work.
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

// Dispatcher owns the worker lanes.
type Dispatcher struct {
	lanes       []chan job
	log         *slog.Logger
	taskTimeout time.Duration
	dropped     atomic.Int64
	next        atomic.Uint64

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	workers     int
	queueSize   int
	taskTimeout time.Duration
	log         *slog.Logger
}

// WithWorkers sets the number of worker goroutines (one lane each).
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize sets the total queue capacity, split across lanes. Tasks
// dispatched against a full lane are dropped.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithTaskTimeout bounds the execution time of a single task.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithLogger sets the logger for task failures and drops.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// New creates a started Dispatcher. Defaults: 4 workers, queue of 1024,
// 30 second task timeout, discard logger.
func New(opts ...Option) *Dispatcher {
	o := &options{
		workers:     4,
		queueSize:   1024,
		taskTimeout: 30 * time.Second,
		log:         logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(o)
	}

	laneSize := o.queueSize / o.workers
	if laneSize < 1 {
		laneSize = 1
	}

	d := &Dispatcher{
		lanes:       make([]chan job, o.workers),
		log:         o.log,
		taskTimeout: o.taskTimeout,
		stop:        make(chan struct{}),
	}

	for i := range d.lanes {
		d.lanes[i] = make(chan job, laneSize)
		d.wg.Add(1)
		go d.worker(d.lanes[i])
	}

	return d
}

func (d *Dispatcher) worker(lane chan job) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stop:
			// Drain what is already queued before exiting.
			for {
				select {
				case j := <-lane:
					d.run(j)
				default:
					return
				}
			}
		case j := <-lane:
			d.run(j)
		}
	}
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.taskTimeout)
	defer cancel()

	if err := j.task(ctx); err != nil {
		d.log.Error("async task failed",
			logger.Error(err),
			logger.Component("dispatch"),
			slog.String("task", j.name),
		)
	}
}

// Dispatch queues the task for asynchronous execution on any lane. It never
// blocks; it reports whether the task was accepted.
func (d *Dispatcher) Dispatch(name string, task Task) bool {
	if task == nil {
		return false
	}
	lane := int(d.next.Add(1) % uint64(len(d.lanes)))
	return d.enqueue(name, lane, task)
}

// DispatchKeyed queues the task on the lane owned by key. Tasks sharing a
// key never run concurrently and execute in submission order, which is what
// per-session state transitions need.
func (d *Dispatcher) DispatchKeyed(name, key string, task Task) bool {
	if task == nil {
		return false
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	lane := int(h.Sum32() % uint32(len(d.lanes)))
	return d.enqueue(name, lane, task)
}

func (d *Dispatcher) enqueue(name string, lane int, task Task) bool {
	select {
	case d.lanes[lane] <- job{name: name, task: task}:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn("task dropped, queue full",
			logger.Component("dispatch"),
			slog.String("task", name),
			slog.Int64("dropped_total", d.dropped.Load()),
		)
		return false
	}
}

// Dropped returns the number of tasks dropped since start.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops the workers after draining queued tasks. Safe for repeated
// calls.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}
