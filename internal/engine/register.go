package engine

import (
	"fmt"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// languageSupport is implemented by compilers that can report their languages.
type languageSupport interface {
	Supports(lang string) bool
}

// RegisterLocal registers fn as a Local task, called directly without
// failure containment.
func (e *Engine) RegisterLocal(name string, fn task.Func) (*Handle, error) {
	if fn == nil {
		return nil, fmt.Errorf("register %s: nil function", name)
	}
	return e.register(name, task.Compiled{Fn: fn}, nil, model.KindLocal)
}

// RegisterForeign registers source to be compiled on first use and always
// run sandboxed.
func (e *Engine) RegisterForeign(name string, src task.Source) (*Handle, error) {
	if ls, ok := e.compiler.(languageSupport); ok && !ls.Supports(src.Lang) {
		return nil, fmt.Errorf("register %s: unsupported language %q", name, src.Lang)
	}
	return e.register(name, src, nil, model.KindForeign)
}

// RegisterForeignFunc registers fn as a Foreign task: it is already callable
// but still runs sandboxed.
func (e *Engine) RegisterForeignFunc(name string, fn task.Func) (*Handle, error) {
	if fn == nil {
		return nil, fmt.Errorf("register %s: nil function", name)
	}
	return e.register(name, task.Compiled{Fn: fn}, nil, model.KindForeign)
}

// RegisterShared registers a task delegated to handler. exec is used only
// when handler is nil.
func (e *Engine) RegisterShared(name string, exec task.Executable, handler task.Handler) (*Handle, error) {
	if exec == nil && handler == nil {
		return nil, fmt.Errorf("register %s: shared task needs an executable or a handler", name)
	}
	if exec == nil {
		exec = task.Compiled{Fn: func(_ capability.Context, _ []any, done task.Callback) {
			done(fmt.Errorf("task %s has no local body", name))
		}}
	}
	return e.register(name, exec, handler, model.KindShared)
}

func (e *Engine) register(name string, exec task.Executable, handler task.Handler, kind model.Kind) (*Handle, error) {
	m, err := e.registry.Register(name, exec, handler, kind)
	if err != nil {
		return nil, err
	}
	e.logger.Info("task registered", "name", name, "kind", kind)
	return &Handle{e: e, m: m}, nil
}

// Remove unregisters name and reports whether it existed. Queued and
// running jobs of the task still complete.
func (e *Engine) Remove(name string) bool {
	ok := e.registry.Remove(name)
	if ok {
		e.logger.Info("task removed", "name", name)
	}
	return ok
}

// Exists reports whether name is registered.
func (e *Engine) Exists(name string) bool {
	return e.registry.Exists(name)
}

// Get returns a handle to name, or nil when it is not registered.
func (e *Engine) Get(name string) *Handle {
	m, ok := e.registry.Lookup(name)
	if !ok {
		return nil
	}
	return &Handle{e: e, m: m}
}

// List returns a snapshot of every registered task, sorted by name.
func (e *Engine) List() []model.TaskInfo {
	names := e.registry.Names()
	out := make([]model.TaskInfo, 0, len(names))
	for _, n := range names {
		if m, ok := e.registry.Lookup(n); ok {
			out = append(out, m.Snapshot())
		}
	}
	return out
}
