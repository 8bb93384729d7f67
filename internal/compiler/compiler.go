// Package compiler turns task source into callable task bodies. Language
// backends live in subpackages and are selected by Source.Lang.
package compiler

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// Options controls a single compilation.
type Options struct {
	// Name is the task name, used in diagnostics.
	Name string
	// IsModule requires the source to export a callable. Otherwise the
	// source is a script whose completion value is the call result.
	IsModule bool
	// Tier is the permission tier the context was extended with.
	Tier model.Permission
	// Post delivers callbacks that re-enter a runtime from outside a call,
	// such as timer and recurse callbacks. Nil runs them on a new goroutine.
	Post capability.Post
}

// Compiler compiles task source for one language.
type Compiler interface {
	Compile(src task.Source, ctx capability.Context, opts Options) (task.Func, error)
}

// Error reports source that did not produce an invocable task. It matches
// model.ErrCompile with errors.Is.
type Error struct {
	Task   string
	Lang   string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("compile %s (%s): %s", e.Task, e.Lang, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes every compile error match model.ErrCompile.
func (e *Error) Is(target error) bool { return target == model.ErrCompile }

// Registry dispatches compilation by language name. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	compilers map[string]Compiler
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		compilers: make(map[string]Compiler),
		logger:    logger.With("component", "compiler-registry"),
	}
}

// Register binds c to lang and any aliases. Names are case-insensitive.
func (r *Registry) Register(c Compiler, lang string, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range append([]string{lang}, aliases...) {
		r.compilers[strings.ToLower(name)] = c
	}
	r.logger.Info("compiler registered", "lang", lang, "aliases", aliases)
}

// Languages returns the registered language names, aliases included.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.compilers))
	for k := range r.compilers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether lang has a compiler.
func (r *Registry) Supports(lang string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.compilers[strings.ToLower(lang)]
	return ok
}

// Compile implements Compiler by delegating on src.Lang.
func (r *Registry) Compile(src task.Source, ctx capability.Context, opts Options) (task.Func, error) {
	r.mu.RLock()
	c, ok := r.compilers[strings.ToLower(src.Lang)]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Task: opts.Name, Lang: src.Lang, Reason: "unsupported language"}
	}
	fn, err := c.Compile(src, ctx, opts)
	if err != nil {
		r.logger.Debug("compile failed", "task", opts.Name, "lang", src.Lang, "error", err)
		return nil, err
	}
	return fn, nil
}
