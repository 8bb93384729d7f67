package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/me/supertask/pkg/model"
)

// ErrEmptyName is returned when registering a task without a name.
var ErrEmptyName = errors.New("task name is required")

// Registry maps task names to their models. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*Model
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tasks:  make(map[string]*Model),
		logger: logger.With("component", "task-registry"),
	}
}

// Register adds a task under name. It fails with model.ErrDuplicateTask when
// the name is taken, leaving the existing task untouched.
func (r *Registry) Register(name string, exec Executable, handler Handler, kind model.Kind) (*Model, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("register %s: unknown kind %q", name, kind)
	}
	if exec == nil {
		return nil, fmt.Errorf("register %s: no executable", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; ok {
		return nil, fmt.Errorf("register %s: %w", name, model.ErrDuplicateTask)
	}
	m := newModel(name, exec, handler, kind)
	r.tasks[name] = m
	r.logger.Debug("task registered", "name", name, "kind", kind)
	return m, nil
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.tasks[name]
	return m, ok
}

// Remove deletes name and reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; !ok {
		return false
	}
	delete(r.tasks, name)
	r.logger.Debug("task removed", "name", name)
	return true
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
