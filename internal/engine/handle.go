package engine

import (
	"fmt"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// Handle is the per-task facade returned by registration and Get.
type Handle struct {
	e *Engine
	m *task.Model
}

// Name returns the task's registry key.
func (h *Handle) Name() string { return h.m.Name() }

// Kind reports how the task executes.
func (h *Handle) Kind() model.Kind { return h.m.Kind() }

func (h *Handle) Permission() model.Permission { return h.m.Permission() }

// SetPermission changes the capability tier. PermNone tasks see only the
// caller's context.
func (h *Handle) SetPermission(p model.Permission) { h.m.SetPermission(p) }

// DefaultContext returns a copy of the context merged under every call's
// override.
func (h *Handle) DefaultContext() capability.Context     { return h.m.DefaultContext() }
func (h *Handle) SetDefaultContext(c capability.Context) { h.m.SetDefaultContext(c) }

func (h *Handle) Priority() float64     { return h.m.Priority() }
func (h *Handle) SetPriority(p float64) { h.m.SetPriority(p) }

func (h *Handle) Sandboxed() bool { return h.m.Sandboxed() }

// SetSandboxed toggles panic containment. It is ignored for Foreign tasks,
// which are always sandboxed.
func (h *Handle) SetSandboxed(v bool) { h.m.SetSandboxed(v) }

func (h *Handle) IsModule() bool { return h.m.IsModule() }

// SetModule switches between module and script compilation. Compiled source
// is recompiled on the next call.
func (h *Handle) SetModule(v bool) { h.m.SetModule(v) }

// MarkRemote turns the task into a Shared task served by handler.
func (h *Handle) MarkRemote(handler task.Handler) { h.m.MarkRemote(handler) }

// SetSource replaces the task's source; it is recompiled on next use.
func (h *Handle) SetSource(src task.Source) { h.m.SetSource(src) }

// Stats returns a copy of the execution statistics.
func (h *Handle) Stats() model.TaskStats { return h.m.Stats() }
func (h *Handle) IsCompiled() bool       { return h.m.IsCompiled() }

// Info returns a snapshot of the task.
func (h *Handle) Info() model.TaskInfo { return h.m.Snapshot() }

// Call invokes the task; a trailing callback argument is popped.
func (h *Handle) Call(args ...any) error {
	return h.e.Invoke(h.m.Name(), args...)
}

// Do is an alias of Call.
func (h *Handle) Do(args ...any) error { return h.Call(args...) }

// Apply invokes the task with a context override.
func (h *Handle) Apply(ctx capability.Context, args []any, cb task.Callback) error {
	return h.e.Apply(h.m.Name(), ctx, args, cb)
}

// Precompile compiles source ahead of the first call, using ctx the way
// that call would.
func (h *Handle) Precompile(ctx capability.Context) error {
	_, err := h.e.compile(h.m, h.e.effectiveContext(h.m, ctx))
	return err
}

// Update applies the non-nil fields of u.
func (h *Handle) Update(u model.UpdateRequest) error {
	if u.Permission != nil && !u.Permission.Valid() {
		return fmt.Errorf("update %s: invalid permission %d", h.Name(), int(*u.Permission))
	}
	if u.Permission != nil {
		h.SetPermission(*u.Permission)
	}
	if u.Module != nil {
		h.SetModule(*u.Module)
	}
	if u.Sandboxed != nil {
		h.SetSandboxed(*u.Sandboxed)
	}
	if u.Priority != nil {
		h.SetPriority(*u.Priority)
	}
	if u.Context != nil {
		h.SetDefaultContext(capability.Context(u.Context))
	}
	return nil
}
