package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/engine"
	"github.com/me/supertask/internal/remote"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// Report lists what one Apply changed.
type Report struct {
	Added     []string
	Updated   []string
	Removed   []string
	Unchanged []string
}

// Applier registers manifest tasks on an engine. It owns the tasks it
// registered: re-applying updates them in place and removes the ones no
// longer declared. Tasks registered by anything else are never touched.
type Applier struct {
	mu      sync.Mutex
	eng     *engine.Engine
	logger  *slog.Logger
	applied map[string]TaskSpec
	clients map[string]*remote.Client
}

// NewApplier creates an Applier for eng.
func NewApplier(eng *engine.Engine, logger *slog.Logger) *Applier {
	return &Applier{
		eng:     eng,
		logger:  logger.With("component", "manifest"),
		applied: make(map[string]TaskSpec),
		clients: make(map[string]*remote.Client),
	}
}

// Apply brings the engine in line with m. Tasks that fail are reported in
// the returned error; the others are still applied.
func (a *Applier) Apply(m *Manifest) (Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var rep Report
	var errs []error
	declared := make(map[string]bool, len(m.Tasks))

	for _, ts := range m.Tasks {
		declared[ts.Name] = true
		prev, owned := a.applied[ts.Name]
		switch {
		case owned && reflect.DeepEqual(prev, ts) && a.eng.Exists(ts.Name):
			rep.Unchanged = append(rep.Unchanged, ts.Name)
		case owned && a.eng.Exists(ts.Name):
			if err := a.update(prev, ts); err != nil {
				errs = append(errs, err)
				continue
			}
			rep.Updated = append(rep.Updated, ts.Name)
		case a.eng.Exists(ts.Name):
			errs = append(errs, fmt.Errorf("task %s: %w", ts.Name, model.ErrDuplicateTask))
		default:
			if err := a.add(ts); err != nil {
				errs = append(errs, err)
				continue
			}
			rep.Added = append(rep.Added, ts.Name)
		}
	}

	for name := range a.applied {
		if declared[name] {
			continue
		}
		a.eng.Remove(name)
		delete(a.applied, name)
		rep.Removed = append(rep.Removed, name)
	}
	sort.Strings(rep.Removed)

	a.logger.Info("manifest applied",
		"added", len(rep.Added),
		"updated", len(rep.Updated),
		"removed", len(rep.Removed),
		"unchanged", len(rep.Unchanged),
		"errors", len(errs),
	)
	return rep, errors.Join(errs...)
}

// Owned returns the names of the tasks the Applier registered, sorted.
func (a *Applier) Owned() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.applied))
	for n := range a.applied {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (a *Applier) add(ts TaskSpec) error {
	kind, _ := ts.kind()

	var (
		h   *engine.Handle
		err error
	)
	switch kind {
	case model.KindForeign:
		h, err = a.eng.RegisterForeign(ts.Name, task.Source{Lang: ts.lang(), Text: ts.Source})
	case model.KindShared:
		var exec task.Executable
		if ts.Source != "" {
			exec = task.Source{Lang: ts.lang(), Text: ts.Source}
		}
		handler := a.client(ts.Remote).Handler()
		h, err = a.eng.RegisterShared(ts.Name, exec, handler)
		if err == nil {
			h.MarkRemote(handler)
		}
	default:
		err = fmt.Errorf("task %s: kind %s cannot be declared in a manifest", ts.Name, kind)
	}
	if err != nil {
		return err
	}
	if err := a.settle(h, ts); err != nil {
		a.eng.Remove(ts.Name)
		return err
	}
	a.applied[ts.Name] = ts
	return nil
}

func (a *Applier) update(prev, ts TaskSpec) error {
	prevKind, _ := prev.kind()
	kind, _ := ts.kind()
	if prevKind != kind {
		a.eng.Remove(ts.Name)
		delete(a.applied, ts.Name)
		return a.add(ts)
	}

	h := a.eng.Get(ts.Name)
	if h == nil {
		return fmt.Errorf("task %s: %w", ts.Name, model.ErrTaskNotFound)
	}
	if ts.Source != "" && (prev.Source != ts.Source || prev.lang() != ts.lang()) {
		h.SetSource(task.Source{Lang: ts.lang(), Text: ts.Source})
	}
	if prev.Remote != ts.Remote {
		h.MarkRemote(a.client(ts.Remote).Handler())
	}
	if err := a.settle(h, ts); err != nil {
		return err
	}
	a.applied[ts.Name] = ts
	return nil
}

// settle applies the declared settings and precompiles foreign source so a
// broken file is reported at load time.
func (a *Applier) settle(h *engine.Handle, ts TaskSpec) error {
	perm, err := ts.permission()
	if err != nil {
		return fmt.Errorf("task %s: %w", ts.Name, err)
	}
	u := model.UpdateRequest{
		Permission: perm,
		Module:     ts.Module,
		Sandboxed:  ts.Sandboxed,
		Priority:   ts.Priority,
		Context:    ts.Context,
	}
	if u.Context == nil {
		u.Context = map[string]any{}
	}
	// Omitted settings fall back to registration defaults so that deleting
	// a line from the manifest undoes it.
	if u.Permission == nil {
		def := model.PermMinimal
		u.Permission = &def
	}
	if u.Module == nil {
		def := true
		u.Module = &def
	}
	if u.Sandboxed == nil {
		def := h.Kind() == model.KindForeign
		u.Sandboxed = &def
	}
	if u.Priority == nil {
		def := model.NoPriority
		u.Priority = &def
	}
	if err := h.Update(u); err != nil {
		return err
	}
	if h.Kind() == model.KindForeign {
		if err := h.Precompile(capability.Context{}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) client(baseURL string) *remote.Client {
	c, ok := a.clients[baseURL]
	if !ok {
		c = remote.NewClient(baseURL, a.logger)
		a.clients[baseURL] = c
	}
	return c
}
