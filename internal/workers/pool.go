// Package workers runs documents concurrently on a fixed set of pipelines.
// Each worker owns one pipeline (and therefore one engine handle); all
// workers pull from a single shared queue.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jackzampolin/scanline/internal/pipeline"
)

var (
	// ErrQueueFull is returned when the shared queue has no room.
	ErrQueueFull = errors.New("worker queue full")

	// ErrClosed is returned by Do after Close.
	ErrClosed = errors.New("worker pool closed")
)

// Task is work run on a worker's pipeline. Pages of one document should be
// submitted as a single Task so they run sequentially on one pipeline.
type Task func(ctx context.Context, p *pipeline.Pipeline) error

// Factory builds the pipeline for worker id.
type Factory func(id int) (*pipeline.Pipeline, error)

// Config configures a Pool.
type Config struct {
	Name      string
	Logger    *slog.Logger
	Workers   int // default 1
	QueueSize int // default 100
	Factory   Factory
}

type unit struct {
	ctx  context.Context
	task Task
	done chan error
}

// Pool is a fixed set of pipeline workers.
type Pool struct {
	name        string
	logger      *slog.Logger
	workerCount int

	queue     chan *unit
	pipelines []*pipeline.Pipeline

	inFlight  atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds every worker's pipeline up front. If any pipeline fails to
// build, the ones already built are closed.
func New(cfg Config) (*Pool, error) {
	if cfg.Factory == nil {
		return nil, errors.New("workers: factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "ocr"
	}
	workerCount := cfg.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	p := &Pool{
		name:        name,
		logger:      logger.With("pool", name, "workers", workerCount),
		workerCount: workerCount,
		queue:       make(chan *unit, queueSize),
	}
	for i := 0; i < workerCount; i++ {
		pl, err := cfg.Factory(i)
		if err != nil {
			p.closePipelines()
			return nil, fmt.Errorf("build pipeline for worker %d: %w", i, err)
		}
		p.pipelines = append(p.pipelines, pl)
	}
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Start launches the worker goroutines. Workers stop when ctx is cancelled or
// Close is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i, pl := range p.pipelines {
		p.wg.Add(1)
		go p.worker(ctx, i, pl)
	}
	p.logger.Info("worker pool started")
}

func (p *Pool) worker(ctx context.Context, id int, pl *pipeline.Pipeline) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-p.queue:
			u.done <- p.run(id, pl, u)
		}
	}
}

func (p *Pool) run(id int, pl *pipeline.Pipeline, u *unit) (err error) {
	if err := u.ctx.Err(); err != nil {
		return err
	}
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d panicked: %v", id, r)
			p.logger.Error("task panicked", "worker_id", id, "panic", r)
		}
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()
	return u.task(u.ctx, pl)
}

// Do queues task and waits for it to finish or ctx to end. A task whose ctx
// ends while queued is skipped by the worker.
func (p *Pool) Do(ctx context.Context, task Task) error {
	u := &unit{ctx: ctx, task: task, done: make(chan error, 1)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	select {
	case p.queue <- u:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		p.logger.Warn("queue full", "queue_len", len(p.queue))
		return fmt.Errorf("%w: %s", ErrQueueFull, p.name)
	}

	select {
	case err := <-u.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is a point-in-time view of the pool.
type Status struct {
	Name       string `json:"name"`
	Workers    int    `json:"workers"`
	InFlight   int    `json:"in_flight"`
	QueueDepth int    `json:"queue_depth"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
}

// Status returns current pool status.
func (p *Pool) Status() Status {
	return Status{
		Name:       p.name,
		Workers:    p.workerCount,
		InFlight:   int(p.inFlight.Load()),
		QueueDepth: len(p.queue),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
	}
}

// Close stops the workers, waits for running tasks and closes every
// pipeline's engine.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	for {
		select {
		case u := <-p.queue:
			u.done <- ErrClosed
			continue
		default:
		}
		break
	}

	err := p.closePipelines()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) closePipelines() error {
	var errs []error
	for i, pl := range p.pipelines {
		if err := pl.Close(); err != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
