package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/brojonat/axiomscope/service/metrics"
	"github.com/google/uuid"
)

var (
	// ErrSessionSetupFailed is returned when every session strategy failed.
	ErrSessionSetupFailed = errors.New("browser session setup failed")
	// ErrTimeout is returned when a task does not finish within its timeout.
	// The task itself may still complete in the background.
	ErrTimeout = errors.New("task timed out")
	// ErrNotRunning is returned by Submit on a stopped engine.
	ErrNotRunning = errors.New("engine is not running")
	// ErrEngineStopped is returned for tasks still queued when the engine stops.
	ErrEngineStopped = errors.New("engine stopped before task ran")
)

// TaskFunc is a unit of work run against the engine's session.
type TaskFunc func(ctx context.Context, s Session) (any, error)

// EngineConfig holds the engine tunables.
type EngineConfig struct {
	TaskTimeout time.Duration // default Submit timeout
	StopGrace   time.Duration // how long Stop waits for the worker
	QueueSize   int           // queued tasks before Submit blocks
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TaskTimeout: 10 * time.Minute,
		StopGrace:   5 * time.Second,
		QueueSize:   256,
	}
}

type taskResult struct {
	value any
	err   error
}

type task struct {
	id       string
	ctx      context.Context
	fn       TaskFunc
	done     chan taskResult
	enqueued time.Time
}

// worker is one run of the engine between Start and Stop.
type worker struct {
	queue   chan *task
	quit    chan struct{}
	done    chan struct{}
	session Session
}

// Engine serializes all work against one browser session through a single
// worker goroutine. Tasks run in submission order; callers block on their own
// completion channel.
type Engine struct {
	cfg        EngineConfig
	strategies []SessionStrategy
	evasion    *Evasion
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.RWMutex
	running bool
	w       *worker
}

// NewEngine creates a stopped engine. Strategies are tried in order the first
// time a task needs a session.
// If metrics is nil, no metrics will be recorded.
func NewEngine(cfg EngineConfig, strategies []SessionStrategy, m *metrics.Metrics, logger *slog.Logger) *Engine {
	def := DefaultEngineConfig()
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = def.StopGrace
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	logger = logger.With("component", "browser_engine")
	return &Engine{
		cfg:        cfg,
		strategies: strategies,
		evasion:    NewEvasion(m, logger),
		metrics:    m,
		logger:     logger,
	}
}

// Start spawns the worker. It is a no-op on a running engine. If the previous
// worker outlived its stop grace, Start waits for it to exit so that at most
// one browser session is ever open.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}

	if prev := e.w; prev != nil {
		select {
		case <-prev.done:
		default:
			e.logger.Warn("previous worker still running, waiting for it to exit")
			<-prev.done
		}
	}

	w := &worker{
		queue: make(chan *task, e.cfg.QueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.w = w
	e.running = true
	go e.loop(w)

	e.logger.Info("engine started", "queue_size", e.cfg.QueueSize)
}

// Stop lets the worker finish its current task, waits up to the stop grace
// for it to exit and fails any task still queued. The worker closes the
// session on exit; close failures are logged. Stop is a no-op on a stopped
// engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	w := e.w
	e.mu.Unlock()

	close(w.quit)
	// poison task wakes an idle worker
	select {
	case w.queue <- nil:
	default:
	}

	timer := time.NewTimer(e.cfg.StopGrace)
	defer timer.Stop()
	select {
	case <-w.done:
		e.logger.Info("engine stopped")
	case <-timer.C:
		e.logger.Warn("worker did not exit within grace period",
			"grace_seconds", e.cfg.StopGrace.Seconds(),
		)
	}

	e.drain(w)
}

func (e *Engine) drain(w *worker) {
	dropped := 0
	for {
		select {
		case t := <-w.queue:
			if t == nil {
				continue
			}
			t.done <- taskResult{err: fmt.Errorf("%w: task %s", ErrEngineStopped, t.id)}
			dropped++
		default:
			if dropped > 0 {
				e.logger.Warn("failed queued tasks on stop", "count", dropped)
			}
			if e.metrics != nil {
				e.metrics.SetQueueDepth(0)
			}
			return
		}
	}
}

// Running reports whether the engine accepts tasks.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// QueueSize returns the number of tasks waiting for the worker.
func (e *Engine) QueueSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.w == nil {
		return 0
	}
	return len(e.w.queue)
}

// Use starts the engine, runs fn and stops the engine on every exit path.
func (e *Engine) Use(fn func(*Engine) error) error {
	e.Start()
	defer e.Stop()
	return fn(e)
}

// Submit queues fn and waits for its result. A timeout <= 0 uses the
// configured task timeout; it covers waiting for queue space as well as the
// run itself. When the timeout elapses or ctx is cancelled after the task was
// queued, Submit returns but the task keeps running and its result is
// discarded.
func (e *Engine) Submit(ctx context.Context, fn TaskFunc, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = e.cfg.TaskTimeout
	}

	t := &task{
		id:       uuid.NewString(),
		ctx:      context.WithoutCancel(ctx),
		fn:       fn,
		done:     make(chan taskResult, 1),
		enqueued: time.Now(),
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	if err := e.enqueue(ctx, t, timer.C); err != nil {
		if errors.Is(err, ErrTimeout) {
			e.logger.WarnContext(ctx, "task timed out waiting for queue space",
				"task_id", t.id,
				"timeout_seconds", timeout.Seconds(),
			)
			if e.metrics != nil {
				e.metrics.RecordTask("timeout", time.Since(t.enqueued).Seconds())
			}
		}
		return nil, err
	}

	select {
	case res := <-t.done:
		return res.value, res.err
	case <-timer.C:
		e.logger.WarnContext(ctx, "task timed out",
			"task_id", t.id,
			"timeout_seconds", timeout.Seconds(),
		)
		if e.metrics != nil {
			e.metrics.RecordTask("timeout", time.Since(t.enqueued).Seconds())
		}
		return nil, fmt.Errorf("%w: task %s after %s", ErrTimeout, t.id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do is a typed Submit.
func Do[T any](ctx context.Context, e *Engine, timeout time.Duration, fn func(ctx context.Context, s Session) (T, error)) (T, error) {
	var zero T
	v, err := e.Submit(ctx, func(ctx context.Context, s Session) (any, error) {
		return fn(ctx, s)
	}, timeout)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("task returned %T, want %T", v, zero)
	}
	return out, nil
}

// SubmitActivity runs synthetic pointer activity on the worker for d.
func (e *Engine) SubmitActivity(ctx context.Context, d time.Duration) error {
	_, err := e.Submit(ctx, func(ctx context.Context, s Session) (any, error) {
		e.evasion.Simulate(ctx, s, d)
		return nil, nil
	}, d+e.cfg.TaskTimeout)
	return err
}

// Evasion returns the engine's evasion layer for use inside tasks.
func (e *Engine) Evasion() *Evasion {
	return e.evasion
}

// enqueue waits for queue space until timeout fires, ctx is cancelled or the
// engine stops. The lock is released before waiting so Stop is never held up
// by a full queue.
func (e *Engine) enqueue(ctx context.Context, t *task, timeout <-chan time.Time) error {
	e.mu.RLock()
	if !e.running {
		e.mu.RUnlock()
		return ErrNotRunning
	}
	w := e.w
	e.mu.RUnlock()

	select {
	case w.queue <- t:
	case <-timeout:
		return fmt.Errorf("%w: task %s still waiting for queue space", ErrTimeout, t.id)
	case <-w.quit:
		return fmt.Errorf("%w: task %s", ErrEngineStopped, t.id)
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.metrics != nil {
		e.metrics.SetQueueDepth(len(w.queue))
	}
	e.logger.DebugContext(ctx, "task queued", "task_id", t.id, "queue_depth", len(w.queue))
	return nil
}

func (e *Engine) loop(w *worker) {
	defer close(w.done)
	defer e.closeSession(w)

	for t := range w.queue {
		if t == nil {
			return
		}
		if e.metrics != nil {
			e.metrics.SetQueueDepth(len(w.queue))
		}
		e.run(w, t)

		select {
		case <-w.quit:
			return
		default:
		}
	}
}

func (e *Engine) run(w *worker, t *task) {
	start := time.Now()
	value, err := e.execute(w, t)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, ErrSessionSetupFailed) {
			status = "setup_failed"
		}
		e.logger.WarnContext(t.ctx, "task failed",
			"task_id", t.id,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	} else {
		e.logger.DebugContext(t.ctx, "task completed",
			"task_id", t.id,
			"duration_ms", duration.Milliseconds(),
		)
	}
	if e.metrics != nil {
		e.metrics.RecordTask(status, duration.Seconds())
	}

	t.done <- taskResult{value: value, err: err}
}

func (e *Engine) execute(w *worker, t *task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(t.ctx, "task panicked",
				"task_id", t.id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			value, err = nil, fmt.Errorf("task %s panicked: %v", t.id, r)
		}
	}()

	s, err := e.session(t.ctx, w)
	if err != nil {
		return nil, err
	}
	return t.fn(t.ctx, s)
}

// session returns the worker's session, opening it through the strategies on
// first use.
func (e *Engine) session(ctx context.Context, w *worker) (Session, error) {
	if w.session != nil {
		return w.session, nil
	}
	if len(e.strategies) == 0 {
		return nil, fmt.Errorf("%w: no session strategies configured", ErrSessionSetupFailed)
	}

	var errs []error
	for _, strategy := range e.strategies {
		s, err := strategy.Open(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "session strategy failed",
				"strategy", strategy.Name(),
				"error", err,
			)
			if e.metrics != nil {
				e.metrics.RecordSessionSetup(strategy.Name(), "error")
			}
			errs = append(errs, fmt.Errorf("%s: %w", strategy.Name(), err))
			continue
		}

		e.logger.InfoContext(ctx, "browser session opened", "strategy", strategy.Name())
		if e.metrics != nil {
			e.metrics.RecordSessionSetup(strategy.Name(), "success")
		}
		w.session = s
		return s, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrSessionSetupFailed, errors.Join(errs...))
}

func (e *Engine) closeSession(w *worker) {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		e.logger.Warn("failed to close browser session", "error", err)
	}
	w.session = nil
}
