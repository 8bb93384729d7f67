// Package gosrc compiles Go tasks with the yaegi interpreter.
//
// Module sources are package main and define
//
//	func Run(ctx map[string]any, args []any, done func(error, ...any))
//
// Script sources are statement lists evaluated once per call; the value of
// the last expression is the result. Scripts read their arguments from the
// "supertask/job" package (job.Args, job.Context).
//
// The permission tier selects which standard library packages an
// interpreter may import.
package gosrc

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/compiler"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

// Lang is the language name the compiler registers under.
const Lang = "go"

// Standard library packages importable per tier, cumulative.
var (
	restrictedPackages = []string{
		"bufio", "bytes", "encoding/base64", "encoding/hex", "encoding/json",
		"errors", "fmt", "io", "math", "sort", "strconv", "strings", "time",
		"unicode", "unicode/utf8",
	}
	minimalPackages = append(append([]string(nil), restrictedPackages...),
		"compress/gzip", "compress/zlib", "context", "crypto/md5", "crypto/sha256",
		"encoding/csv", "hash", "net/http", "net/url", "path", "path/filepath",
		"regexp", "sync", "sync/atomic",
	)
)

// Packages returns the importable standard library packages for tier. A nil
// result with ok=true means every package is importable.
func Packages(tier model.Permission) (pkgs []string, ok bool) {
	switch tier {
	case model.PermNone:
		return []string{}, true
	case model.PermRestricted:
		return append([]string(nil), restrictedPackages...), true
	case model.PermMinimal:
		return append([]string(nil), minimalPackages...), true
	case model.PermUnrestricted:
		return nil, true
	}
	return nil, false
}

// Symbols filters stdlib.Symbols down to what tier may import.
func Symbols(tier model.Permission) interp.Exports {
	allow, ok := Packages(tier)
	if !ok {
		return interp.Exports{}
	}
	if allow == nil {
		return stdlib.Symbols
	}
	set := make(map[string]bool, len(allow))
	for _, p := range allow {
		set[p] = true
	}
	out := make(interp.Exports, len(allow))
	for key, syms := range stdlib.Symbols {
		// Keys are "import/path/pkgname".
		i := strings.LastIndex(key, "/")
		if i < 0 {
			continue
		}
		if set[key[:i]] {
			out[key] = syms
		}
	}
	return out
}

// capabilitySymbols lets interpreted code name the capability types found in
// its context, e.g. ctx["setTimeout"].(capability.SetTimeoutFunc).
var capabilitySymbols = interp.Exports{
	"supertask/capability/capability": {
		"Context":          reflect.ValueOf((*capability.Context)(nil)),
		"Loader":           reflect.ValueOf((*capability.Loader)(nil)),
		"SetTimeoutFunc":   reflect.ValueOf((*capability.SetTimeoutFunc)(nil)),
		"SetImmediateFunc": reflect.ValueOf((*capability.SetImmediateFunc)(nil)),
		"ClearFunc":        reflect.ValueOf((*capability.ClearFunc)(nil)),
		"RecurseFunc":      reflect.ValueOf((*capability.RecurseFunc)(nil)),
		"Console":          reflect.ValueOf((*capability.Console)(nil)),
		"Buffer":           reflect.ValueOf((*capability.Buffer)(nil)),
		"Process":          reflect.ValueOf((*capability.Process)(nil)),
		"Merge":            reflect.ValueOf(capability.Merge),
	},
}

// RunFunc is the signature a module must export as Run.
type RunFunc = func(ctx map[string]any, args []any, done func(error, ...any))

// Compiler compiles Go source.
type Compiler struct {
	logger *slog.Logger
}

// New creates a Go compiler.
func New(logger *slog.Logger) *Compiler {
	return &Compiler{logger: logger.With("component", "gosrc")}
}

func (c *Compiler) newInterpreter(tier model.Permission) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{Unrestricted: tier == model.PermUnrestricted})
	if err := i.Use(Symbols(tier)); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}
	if err := i.Use(capabilitySymbols); err != nil {
		return nil, fmt.Errorf("load capability symbols: %w", err)
	}
	return i, nil
}

// Compile implements compiler.Compiler. The compile-time context is not
// visible to Go modules; they receive the call context as ctx.
func (c *Compiler) Compile(src task.Source, _ capability.Context, opts compiler.Options) (task.Func, error) {
	fail := func(reason string, err error) error {
		return &compiler.Error{Task: opts.Name, Lang: src.Lang, Reason: reason, Cause: err}
	}
	if !opts.IsModule {
		return c.script(src, opts, fail)
	}

	i, err := c.newInterpreter(opts.Tier)
	if err != nil {
		return nil, fail("init interpreter", err)
	}
	if _, err := i.Eval(src.Text); err != nil {
		return nil, fail("evaluate module", err)
	}
	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fail("Run is not defined", err)
	}
	run, ok := v.Interface().(RunFunc)
	if !ok {
		return nil, fail(fmt.Sprintf("Run has type %s, want func(map[string]any, []any, func(error, ...any))", v.Type()), nil)
	}
	c.logger.Debug("module compiled", "task", opts.Name, "tier", opts.Tier)

	return func(ctx capability.Context, args []any, done task.Callback) {
		run(map[string]any(ctx), args, done)
	}, nil
}

func (c *Compiler) script(src task.Source, opts compiler.Options, fail func(string, error) error) (task.Func, error) {
	// Compile once against placeholder job values to surface errors early.
	i, err := c.newInterpreter(opts.Tier)
	if err != nil {
		return nil, fail("init interpreter", err)
	}
	if err := i.Use(jobSymbols(nil, nil)); err != nil {
		return nil, fail("init interpreter", err)
	}
	if _, err := i.Compile(src.Text); err != nil {
		return nil, fail("syntax error", err)
	}

	return func(ctx capability.Context, args []any, done task.Callback) {
		i, err := c.newInterpreter(opts.Tier)
		if err == nil {
			err = i.Use(jobSymbols(ctx, args))
		}
		if err != nil {
			done(err)
			return
		}
		v, err := i.Eval(src.Text)
		if err != nil {
			panic(err)
		}
		if !v.IsValid() {
			done(nil)
			return
		}
		done(nil, v.Interface())
	}, nil
}

func jobSymbols(ctx capability.Context, args []any) interp.Exports {
	data := map[string]any(ctx)
	return interp.Exports{
		"supertask/job/job": {
			"Args":    reflect.ValueOf(&args).Elem(),
			"Context": reflect.ValueOf(&data).Elem(),
		},
	}
}
