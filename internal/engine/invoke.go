package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/compiler"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// job is one queued invocation.
type job struct {
	id       string
	task     *task.Model
	ctx      capability.Context
	args     []any
	cb       task.Callback
	fn       task.Func
	enqueued time.Time
}

// Invoke calls name with args. A trailing task.Callback or
// func(error, ...any) argument is taken as the callback.
func (e *Engine) Invoke(name string, args ...any) error {
	args, cb := splitCallback(args)
	return e.Apply(name, nil, args, cb)
}

func splitCallback(args []any) ([]any, task.Callback) {
	if len(args) == 0 {
		return args, nil
	}
	switch cb := args[len(args)-1].(type) {
	case task.Callback:
		return args[:len(args)-1], cb
	case func(error, ...any):
		return args[:len(args)-1], cb
	}
	return args, nil
}

// Apply invokes name with an explicit context override and argument list.
//
// Lookup and compile failures are passed to cb and returned; nothing is
// queued. Otherwise the job is queued and the outcome arrives through cb.
// A nil cb is an error in strict mode and a no-op callback otherwise.
func (e *Engine) Apply(name string, ctx capability.Context, args []any, cb task.Callback) error {
	if cb == nil {
		if e.strict {
			return model.ErrMissingCallback
		}
		cb = task.Noop
	}
	if e.isStopped() {
		cb(ErrStopped)
		return ErrStopped
	}
	m, ok := e.registry.Lookup(name)
	if !ok {
		err := fmt.Errorf("%w: %s", model.ErrTaskNotFound, name)
		cb(err)
		return err
	}

	eff := e.effectiveContext(m, ctx)
	fn, err := e.compile(m, eff)
	if err != nil {
		cb(err)
		return err
	}

	j := &job{
		id:       uuid.NewString(),
		task:     m,
		ctx:      eff,
		args:     args,
		cb:       cb,
		fn:       fn,
		enqueued: time.Now(),
	}
	e.enqueue(j)
	return nil
}

// effectiveContext merges the override over the task's default context and
// adds the tier's capabilities, recurse among them. PermNone adds nothing.
func (e *Engine) effectiveContext(m *task.Model, override capability.Context) capability.Context {
	eff := capability.Merge(m.DefaultContext(), override)
	tier := m.Permission()
	if tier == model.PermNone {
		return eff
	}
	name := m.Name()
	return e.builder.Extend(eff, tier, func(args []any, cb func(error, ...any)) {
		_ = e.Apply(name, override, args, cb)
	})
}

// compile returns the task body, compiling source on first use. Concurrent
// first calls share one compilation.
func (e *Engine) compile(m *task.Model, ctx capability.Context) (task.Func, error) {
	src, ok := m.Executable().(task.Source)
	if !ok {
		fn, _ := m.Func()
		return fn, nil
	}
	v, err, _ := e.compiles.Do(m.Name(), func() (any, error) {
		if fn, ok := m.Func(); ok {
			return fn, nil
		}
		start := time.Now()
		fn, err := e.compiler.Compile(src, ctx, compiler.Options{
			Name:     m.Name(),
			IsModule: m.IsModule(),
			Tier:     m.Permission(),
			Post:     e.post,
		})
		if err != nil {
			e.logger.Warn("compile failed", "task", m.Name(), "error", err)
			return nil, err
		}
		m.SetCompiled(src, fn)
		e.logger.Debug("task compiled", "task", m.Name(), "lang", src.Lang, "duration", time.Since(start))
		return fn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(task.Func), nil
}

func (e *Engine) enqueue(j *job) {
	e.mu.Lock()
	e.backlog = append(e.backlog, j)
	schedule := e.scheduleLocked()
	e.mu.Unlock()
	if schedule {
		e.post(e.drainTick)
	}
	e.logger.Debug("job queued", "task", j.task.Name(), "job_id", j.id)
}

// scheduleLocked marks a tick as pending and reports whether the caller
// must post it.
func (e *Engine) scheduleLocked() bool {
	if e.busy || len(e.backlog) == 0 || e.freeSlotsLocked() == 0 {
		return false
	}
	e.busy = true
	return true
}

func (e *Engine) freeSlotsLocked() int {
	if !e.reclaim {
		return e.concurrency
	}
	return max(e.concurrency-e.occupied, 0)
}
