package task

import (
	"sync"
	"time"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/pkg/model"
)

// Model is the state of one registered task. All mutable fields are guarded
// by mu; use the accessors.
type Model struct {
	name string

	mu             sync.Mutex
	kind           model.Kind
	exec           Executable
	origin         Source
	handler        Handler
	remote         bool
	isModule       bool
	sandboxed      bool
	permission     model.Permission
	defaultContext capability.Context
	priority       float64
	stats          model.TaskStats
}

func newModel(name string, exec Executable, handler Handler, kind model.Kind) *Model {
	return &Model{
		name:           name,
		kind:           kind,
		exec:           exec,
		handler:        handler,
		isModule:       true,
		sandboxed:      kind == model.KindForeign,
		permission:     model.PermMinimal,
		defaultContext: capability.Context{},
		priority:       model.NoPriority,
		stats:          model.TaskStats{AverageExecutionTime: model.NoSamples},
	}
}

// Name returns the registry key. It never changes.
func (m *Model) Name() string { return m.name }

// Kind reports how the task executes. MarkRemote changes it to Shared.
func (m *Model) Kind() model.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

// Executable returns the current executable variant.
func (m *Model) Executable() Executable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exec
}

// IsCompiled reports whether the executable is callable.
func (m *Model) IsCompiled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.exec.(Compiled)
	return ok
}

// Func returns the compiled body, if any.
func (m *Model) Func() (Func, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.exec.(Compiled)
	if !ok {
		return nil, false
	}
	return c.Fn, true
}

// SetCompiled moves the task from Source to Compiled. If the source was
// replaced while compiling, the stale result is dropped and false returned.
func (m *Model) SetCompiled(from Source, fn Func) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.exec.(Source); !ok || cur != from {
		return false
	}
	m.exec = Compiled{Fn: fn, Lang: from.Lang}
	m.origin = from
	return true
}

// SetSource replaces the executable with new source, discarding any
// compiled form.
func (m *Model) SetSource(src Source) {
	m.mu.Lock()
	m.exec = src
	m.mu.Unlock()
}

// Handler returns the Shared handler, or nil.
func (m *Model) Handler() Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// MarkRemote turns the task into a Shared task served by h.
func (m *Model) MarkRemote(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kind = model.KindShared
	m.handler = h
	m.remote = true
}

// IsModule reports whether source is compiled as a module exporting the
// task function rather than run as a script per call.
func (m *Model) IsModule() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isModule
}

// SetModule changes how source is compiled. A task compiled from source
// reverts to it so the next call recompiles in the new mode.
func (m *Model) SetModule(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isModule == v {
		return
	}
	m.isModule = v
	if _, ok := m.exec.(Compiled); ok && m.origin.Lang != "" {
		m.exec = m.origin
	}
}

// Sandboxed reports whether a panicking call is turned into an error.
func (m *Model) Sandboxed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sandboxed
}

// SetSandboxed toggles failure containment. Foreign tasks stay sandboxed.
func (m *Model) SetSandboxed(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kind == model.KindForeign {
		v = true
	}
	m.sandboxed = v
}

// Permission returns the capability tier calls run with.
func (m *Model) Permission() model.Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission
}

// SetPermission changes the tier used by later calls.
func (m *Model) SetPermission(p model.Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permission = p
}

// DefaultContext returns a copy of the context merged into every call.
func (m *Model) DefaultContext() capability.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultContext.Clone()
}

// SetDefaultContext stores a copy of c; later changes to c are not seen.
func (m *Model) SetDefaultContext(c capability.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultContext = c.Clone()
}

// Priority returns the scheduling priority, or model.NoPriority when unset.
func (m *Model) Priority() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priority
}

// SetPriority sets the scheduling priority weighed at optimization level O3.
func (m *Model) SetPriority(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priority = p
}

// Stats returns a copy of the execution statistics.
func (m *Model) Stats() model.TaskStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Begin records a dispatch and returns its start time.
func (m *Model) Begin() time.Time {
	now := time.Now()
	m.mu.Lock()
	m.stats.LastStarted = now
	m.mu.Unlock()
	return now
}

// Complete folds the call started at started into the running mean.
func (m *Model) Complete(started time.Time) time.Duration {
	d := time.Since(started)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.LastDuration = d
	n := float64(m.stats.ExecutionRounds)
	if m.stats.ExecutionRounds == 0 {
		m.stats.AverageExecutionTime = float64(d)
	} else {
		m.stats.AverageExecutionTime = (m.stats.AverageExecutionTime*n + float64(d)) / (n + 1)
	}
	m.stats.ExecutionRounds++
	return d
}

// Snapshot returns a consistent view of the task for listing.
func (m *Model) Snapshot() model.TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := model.TaskInfo{
		Name:           m.name,
		Kind:           m.kind,
		Module:         m.isModule,
		Sandboxed:      m.sandboxed,
		Remote:         m.remote,
		Permission:     m.permission,
		Priority:       m.priority,
		DefaultContext: m.defaultContext.Data(),
		Stats:          m.stats,
	}
	switch e := m.exec.(type) {
	case Source:
		info.Lang = e.Lang
	case Compiled:
		info.Lang = e.Lang
		info.Compiled = true
	}
	if len(info.DefaultContext) == 0 {
		info.DefaultContext = nil
	}
	return info
}
