package capability

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/me/supertask/internal/capability/modules"
	"github.com/me/supertask/pkg/model"
)

// Module allow-lists per tier. PermUnrestricted resolves every module.
var (
	restrictedModules = []string{"stream"}
	minimalModules    = []string{"http", "https", "util", "os", "path", "events", "stream", "string_decoder", "url", "zlib"}
)

// Capability keys granted per tier, cumulative.
var (
	restrictedKeys = []string{
		KeyRequire, KeySetTimeout, KeySetInterval, KeySetImmediate,
		KeyClearTimeout, KeyClearInterval, KeyClearImmediate, KeyBuffer,
		KeyRecurse,
	}
	minimalKeys      = append(slices.Clone(restrictedKeys), KeyDirname, KeyFilename, KeyConsole)
	unrestrictedKeys = append(slices.Clone(minimalKeys), KeyProcess)
)

// Grants lists the capability keys tier injects.
func Grants(tier model.Permission) []string {
	switch tier {
	case model.PermRestricted:
		return slices.Clone(restrictedKeys)
	case model.PermMinimal:
		return slices.Clone(minimalKeys)
	case model.PermUnrestricted:
		return slices.Clone(unrestrictedKeys)
	}
	return nil
}

// AllowedModules lists the module names a tier's loader resolves. A nil
// result with ok=true means every module is allowed.
func AllowedModules(tier model.Permission) (names []string, ok bool) {
	switch tier {
	case model.PermRestricted:
		return slices.Clone(restrictedModules), true
	case model.PermMinimal:
		return slices.Clone(minimalModules), true
	case model.PermUnrestricted:
		return nil, true
	}
	return nil, false
}

// Env is the host environment capabilities are drawn from.
type Env struct {
	Timers   Timers
	Modules  modules.Table
	Console  *Console
	Process  *Process
	Dirname  string
	Filename string
}

// DefaultEnv builds an Env for the running executable. Timer callbacks run on
// timer goroutines; the engine replaces Timers with its loop-backed set.
func DefaultEnv(logger *slog.Logger) Env {
	filename, err := os.Executable()
	if err != nil {
		filename = os.Args[0]
	}
	return Env{
		Timers:   NewPostTimers(nil),
		Modules:  modules.Builtin(logger),
		Console:  NewConsole(logger.With("component", "task-console")),
		Process:  NewProcess(),
		Dirname:  filepath.Dir(filename),
		Filename: filename,
	}
}

// Builder extends contexts with tiered capabilities. Safe for concurrent use.
type Builder struct {
	env     Env
	loaders [model.PermUnrestricted + 1]Loader
	timers  map[string]any
}

// NewBuilder returns a Builder drawing capabilities from env.
func NewBuilder(env Env) *Builder {
	if env.Timers == nil {
		env.Timers = NewPostTimers(nil)
	}
	if env.Modules == nil {
		env.Modules = modules.Table{}
	}
	b := &Builder{env: env}
	b.loaders[model.PermRestricted] = newLoader(env.Modules, restrictedModules)
	b.loaders[model.PermMinimal] = newLoader(env.Modules, minimalModules)
	b.loaders[model.PermUnrestricted] = newLoader(env.Modules, nil)

	stop := ClearFunc(func(t Timer) {
		if t != nil {
			t.Stop()
		}
	})
	b.timers = map[string]any{
		KeySetTimeout:     SetTimeoutFunc(env.Timers.SetTimeout),
		KeySetInterval:    SetTimeoutFunc(env.Timers.SetInterval),
		KeySetImmediate:   SetImmediateFunc(env.Timers.SetImmediate),
		KeyClearTimeout:   stop,
		KeyClearInterval:  stop,
		KeyClearImmediate: stop,
	}
	return b
}

// Loader returns the module loader of tier, or nil for PermNone.
func (b *Builder) Loader(tier model.Permission) Loader {
	if !tier.Valid() {
		return nil
	}
	return b.loaders[tier]
}

// Extend returns base augmented with the capabilities tier grants. Keys
// already present in base are never overwritten. PermNone returns base
// itself; every other tier returns a new Context and leaves base untouched.
// recurse is installed when non-nil.
func (b *Builder) Extend(base Context, tier model.Permission, recurse RecurseFunc) Context {
	if tier <= model.PermNone || !tier.Valid() {
		return base
	}
	out := base.Clone()
	set := func(k string, v any) {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}

	set(KeyRequire, b.loaders[tier])
	for k, v := range b.timers {
		set(k, v)
	}
	set(KeyBuffer, Buffer{})
	if recurse != nil {
		set(KeyRecurse, recurse)
	}
	if tier == model.PermRestricted {
		return out
	}

	set(KeyDirname, b.env.Dirname)
	set(KeyFilename, b.env.Filename)
	if b.env.Console != nil {
		set(KeyConsole, b.env.Console)
	}
	if tier == model.PermMinimal {
		return out
	}

	if b.env.Process != nil {
		set(KeyProcess, b.env.Process)
	}
	return out
}

func newLoader(table modules.Table, allow []string) Loader {
	return func(name string) any {
		if allow != nil && !slices.Contains(allow, name) {
			return nil
		}
		return table[name]
	}
}
