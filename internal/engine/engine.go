// Package engine schedules task invocations. Every dispatch, timer callback
// and continuation runs on a single loop goroutine fed by an unbounded
// mailbox; the public API is safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/compiler"
	"github.com/me/supertask/internal/compiler/gosrc"
	"github.com/me/supertask/internal/compiler/jsvm"
	"github.com/me/supertask/internal/config"
	"github.com/me/supertask/internal/optimizer"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// ErrStopped is returned by invocations after Stop.
var ErrStopped = errors.New("engine stopped")

// TickReport summarizes one drain tick.
type TickReport struct {
	Dispatched int
	Remaining  int
	Reordered  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompiler replaces the default js/go compiler registry.
func WithCompiler(c compiler.Compiler) Option {
	return func(e *Engine) { e.compiler = c }
}

// WithOptimizer replaces the default optimizer properties.
func WithOptimizer(o *optimizer.Optimizer) Option {
	return func(e *Engine) { e.optimizer = o }
}

// WithTickObserver registers fn to be called on the loop after every tick.
func WithTickObserver(fn func(TickReport)) Option {
	return func(e *Engine) { e.observer = fn }
}

// WithEnv sets the host environment capabilities are drawn from. Its Timers
// are always replaced by the engine's loop-backed timers.
func WithEnv(env capability.Env) Option {
	return func(e *Engine) { e.env = &env }
}

// Engine owns a task registry and the scheduler that runs its tasks.
type Engine struct {
	registry  *task.Registry
	compiler  compiler.Compiler
	builder   *capability.Builder
	optimizer *optimizer.Optimizer
	observer  func(TickReport)
	env       *capability.Env
	compiles  singleflight.Group
	reclaim   bool
	strict    bool
	logger    *slog.Logger

	// mailbox
	mbMu    sync.Mutex
	mailbox []func()
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool

	mu          sync.Mutex
	backlog     []*job
	busy        bool
	inFlight    int
	occupied    int
	concurrency int
	timeout     time.Duration
	level       optimizer.Level
	flags       optimizer.Flag
	waiters     []chan struct{}
}

// New creates an engine and starts its loop. Call Stop to release it.
func New(cfg config.EngineConfig, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	e := &Engine{
		registry:    task.NewRegistry(logger),
		optimizer:   optimizer.New(),
		reclaim:     cfg.Reclaim,
		strict:      cfg.Strict,
		logger:      logger.With("component", "engine"),
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		backlog:     make([]*job, 0, cfg.BacklogHint),
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		level:       optimizer.Level(cfg.OptimizationLevel),
		flags:       optimizer.Flag(cfg.OptimizationFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.compiler == nil {
		reg := compiler.NewRegistry(logger)
		reg.Register(jsvm.New(logger), jsvm.Lang, "javascript")
		reg.Register(gosrc.New(logger), gosrc.Lang, "golang")
		e.compiler = reg
	}
	env := capability.DefaultEnv(logger)
	if e.env != nil {
		env = *e.env
	}
	env.Timers = capability.NewPostTimers(e.post)
	e.builder = capability.NewBuilder(env)

	go e.run()
	e.logger.Info("engine started",
		"concurrency", cfg.Concurrency,
		"timeout", cfg.Timeout,
		"reclaim", cfg.Reclaim,
		"optimization_level", cfg.OptimizationLevel,
	)
	return e, nil
}

// Stop halts the loop and waits for it to exit. Queued jobs are dropped and
// callbacks posted afterwards never run.
func (e *Engine) Stop() {
	e.mbMu.Lock()
	if e.stopped {
		e.mbMu.Unlock()
		<-e.doneCh
		return
	}
	e.stopped = true
	e.mbMu.Unlock()
	close(e.stopCh)
	<-e.doneCh

	e.mu.Lock()
	dropped := len(e.backlog)
	e.backlog = nil
	e.busy = false
	e.mu.Unlock()
	e.logger.Info("engine stopped", "dropped", dropped)
}

// post appends fn to the mailbox. It never blocks.
func (e *Engine) post(fn func()) {
	e.mbMu.Lock()
	if e.stopped {
		e.mbMu.Unlock()
		return
	}
	e.mailbox = append(e.mailbox, fn)
	e.mbMu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.wake:
		}
		for {
			e.mbMu.Lock()
			batch := e.mailbox
			e.mailbox = nil
			e.mbMu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				select {
				case <-e.stopCh:
					return
				default:
				}
				fn()
			}
		}
	}
}

func (e *Engine) isStopped() bool {
	e.mbMu.Lock()
	defer e.mbMu.Unlock()
	return e.stopped
}

// Concurrency returns the number of jobs dispatched per tick.
func (e *Engine) Concurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.concurrency
}

// SetConcurrency changes the dispatch batch size.
func (e *Engine) SetConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", n)
	}
	e.setConcurrency(n)
	return nil
}

func (e *Engine) setConcurrency(n int) {
	e.mu.Lock()
	e.concurrency = n
	schedule := e.scheduleLocked()
	e.mu.Unlock()
	if schedule {
		e.post(e.drainTick)
	}
}

// Timeout returns the slot reclaim timeout.
func (e *Engine) Timeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeout
}

// SetTimeout changes the slot reclaim timeout for jobs dispatched afterwards.
func (e *Engine) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", d)
	}
	e.setTimeout(d)
	return nil
}

func (e *Engine) setTimeout(d time.Duration) {
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
}

// OptimizationLevel returns the backlog optimization level.
func (e *Engine) OptimizationLevel() optimizer.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// SetOptimizationLevel changes the backlog optimization level.
func (e *Engine) SetOptimizationLevel(l optimizer.Level) error {
	if l < optimizer.LevelO0 || l > optimizer.LevelO3 {
		return fmt.Errorf("unknown optimization level %d", l)
	}
	e.setOptimizationLevel(l)
	return nil
}

func (e *Engine) setOptimizationLevel(l optimizer.Level) {
	e.mu.Lock()
	e.level = l
	e.mu.Unlock()
}

// OptimizationFlags returns the optimization flag mask.
func (e *Engine) OptimizationFlags() optimizer.Flag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags
}

// SetOptimizationFlags replaces the optimization flag mask.
func (e *Engine) SetOptimizationFlags(f optimizer.Flag) {
	e.mu.Lock()
	e.flags = f
	e.mu.Unlock()
}

// Reclaim reports whether timed-out jobs release their slots.
func (e *Engine) Reclaim() bool { return e.reclaim }

// Strict reports whether invocations require a callback.
func (e *Engine) Strict() bool { return e.strict }

// Backlog returns the number of queued jobs.
func (e *Engine) Backlog() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.backlog)
}

// InFlight returns the number of dispatched jobs that have not completed.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Idle blocks until the backlog is empty and no job is in flight.
func (e *Engine) Idle(ctx context.Context) error {
	e.mu.Lock()
	if e.idleLocked() {
		e.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) idleLocked() bool {
	return len(e.backlog) == 0 && e.inFlight == 0 && !e.busy
}

func (e *Engine) notifyIdleLocked() {
	if !e.idleLocked() {
		return
	}
	for _, w := range e.waiters {
		close(w)
	}
	e.waiters = nil
}

// Info reports the engine's tunables and load.
func (e *Engine) Info() model.EngineInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.EngineInfo{
		Concurrency:       e.concurrency,
		Timeout:           e.timeout.String(),
		Reclaim:           e.reclaim,
		Strict:            e.strict,
		OptimizationLevel: int(e.level),
		OptimizationFlags: uint(e.flags),
		Backlog:           len(e.backlog),
		InFlight:          e.inFlight,
		Tasks:             e.registry.Len(),
	}
}

// Update applies the non-nil fields of u. Every field is validated before
// any is applied.
func (e *Engine) Update(u model.EngineUpdate) error {
	var timeout time.Duration
	if u.Timeout != nil {
		d, err := time.ParseDuration(*u.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		timeout = d
	}
	if u.Concurrency != nil && *u.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", *u.Concurrency)
	}
	if u.OptimizationLevel != nil {
		if l := optimizer.Level(*u.OptimizationLevel); l < optimizer.LevelO0 || l > optimizer.LevelO3 {
			return fmt.Errorf("unknown optimization level %d", l)
		}
	}

	if u.Timeout != nil {
		e.setTimeout(timeout)
	}
	if u.OptimizationLevel != nil {
		e.setOptimizationLevel(optimizer.Level(*u.OptimizationLevel))
	}
	if u.OptimizationFlags != nil {
		e.SetOptimizationFlags(optimizer.Flag(*u.OptimizationFlags))
	}
	if u.Concurrency != nil {
		e.setConcurrency(*u.Concurrency)
	}
	return nil
}
