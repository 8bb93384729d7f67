// Package jsvm compiles JavaScript tasks with goja.
//
// A goja runtime is not safe for concurrent use. Every entry into a runtime
// holds that runtime's mutex, and JS functions handed to Go (timer and
// recurse callbacks) are delivered through Options.Post so they never
// re-enter a runtime that is already executing.
package jsvm

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/compiler"
	"github.com/me/supertask/internal/task"
)

// Lang is the language name the compiler registers under.
const Lang = "js"

// Compiler compiles JavaScript source.
type Compiler struct {
	logger *slog.Logger
}

// New creates a JavaScript compiler.
func New(logger *slog.Logger) *Compiler {
	return &Compiler{logger: logger.With("component", "jsvm")}
}

// Compile implements compiler.Compiler.
//
// Module sources run once in a runtime whose globals are ctx plus module and
// exports; module.exports must then be a function, called per invocation as
// fn.call(callContext, ...args, done). The runtime persists across calls.
//
// Script sources are compiled once and run in a fresh runtime per call with
// the call context as globals and the arguments bound to args. The
// completion value is passed to done.
func (c *Compiler) Compile(src task.Source, ctx capability.Context, opts compiler.Options) (task.Func, error) {
	prg, err := goja.Compile(opts.Name, src.Text, false)
	if err != nil {
		return nil, &compiler.Error{Task: opts.Name, Lang: src.Lang, Reason: "syntax error", Cause: err}
	}
	if !opts.IsModule {
		return c.script(prg, opts), nil
	}

	r := c.newRuntime(opts)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.setGlobals(ctx); err != nil {
		return nil, &compiler.Error{Task: opts.Name, Lang: src.Lang, Reason: "install context", Cause: err}
	}
	module := r.vm.NewObject()
	exports := r.vm.NewObject()
	_ = module.Set("exports", exports)
	_ = r.vm.Set("module", module)
	_ = r.vm.Set("exports", exports)

	if _, err := r.vm.RunProgram(prg); err != nil {
		return nil, &compiler.Error{Task: opts.Name, Lang: src.Lang, Reason: "evaluate module", Cause: err}
	}
	fn, ok := goja.AssertFunction(module.Get("exports"))
	if !ok {
		return nil, &compiler.Error{Task: opts.Name, Lang: src.Lang, Reason: "module.exports is not a function"}
	}

	return func(callCtx capability.Context, args []any, done task.Callback) {
		r.mu.Lock()
		defer r.mu.Unlock()

		this := r.object(callCtx)
		vals := make([]goja.Value, 0, len(args)+1)
		for _, a := range args {
			vals = append(vals, r.vm.ToValue(a))
		}
		vals = append(vals, r.vm.ToValue(r.doneFunc(done)))
		if _, err := fn(this, vals...); err != nil {
			panic(err)
		}
	}, nil
}

func (c *Compiler) script(prg *goja.Program, opts compiler.Options) task.Func {
	return func(callCtx capability.Context, args []any, done task.Callback) {
		r := c.newRuntime(opts)
		r.mu.Lock()
		defer r.mu.Unlock()

		if err := r.setGlobals(callCtx); err != nil {
			panic(err)
		}
		_ = r.vm.Set("args", args)
		v, err := r.vm.RunProgram(prg)
		if err != nil {
			panic(err)
		}
		done(nil, export(v))
	}
}

// runtime is one goja VM and the lock guarding it.
type runtime struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	post   capability.Post
	name   string
	logger *slog.Logger
}

func (c *Compiler) newRuntime(opts compiler.Options) *runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	post := opts.Post
	if post == nil {
		post = func(fn func()) { go fn() }
	}
	return &runtime{vm: vm, post: post, name: opts.Name, logger: c.logger}
}

func (r *runtime) setGlobals(ctx capability.Context) error {
	for k, v := range ctx {
		if err := r.vm.Set(k, r.value(v)); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func (r *runtime) object(ctx capability.Context) *goja.Object {
	obj := r.vm.NewObject()
	for k, v := range ctx {
		_ = obj.Set(k, r.value(v))
	}
	return obj
}

// value converts a context entry into a JS value, bridging the capability
// function types so that JS callbacks are posted and durations are in ms.
func (r *runtime) value(v any) goja.Value {
	switch f := v.(type) {
	case capability.Loader:
		return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			m := f(name)
			if m == nil {
				panic(r.vm.NewGoError(fmt.Errorf("Cannot find module '%s'", name)))
			}
			return r.vm.ToValue(m)
		})
	case capability.SetTimeoutFunc:
		return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			cb := r.callback(call.Argument(0))
			extra := rest(call.Arguments, 2)
			return r.vm.ToValue(f(func() { cb(extra...) }, millis(call.Argument(1))))
		})
	case capability.SetImmediateFunc:
		return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			cb := r.callback(call.Argument(0))
			extra := rest(call.Arguments, 1)
			return r.vm.ToValue(f(func() { cb(extra...) }))
		})
	case capability.ClearFunc:
		return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if t, ok := call.Argument(0).Export().(capability.Timer); ok {
				f(t)
			}
			return goja.Undefined()
		})
	case capability.RecurseFunc:
		return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			n := len(call.Arguments)
			if n == 0 {
				panic(r.vm.NewTypeError("recurse requires a callback"))
			}
			cb := r.callback(call.Arguments[n-1])
			args := make([]any, 0, n-1)
			for _, a := range call.Arguments[:n-1] {
				args = append(args, export(a))
			}
			f(args, func(err error, results ...any) {
				cb(append([]any{errValue(err)}, results...)...)
			})
			return goja.Undefined()
		})
	case capability.Context:
		return r.object(f)
	}
	return r.vm.ToValue(v)
}

// callback wraps a JS function for delivery from Go. Calls are posted and
// take the runtime lock; exceptions are logged since no caller can see them.
func (r *runtime) callback(v goja.Value) func(args ...any) {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return func(...any) {}
	}
	return func(args ...any) {
		r.post(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			vals := make([]goja.Value, len(args))
			for i, a := range args {
				vals[i] = r.vm.ToValue(a)
			}
			if _, err := fn(goja.Undefined(), vals...); err != nil {
				r.logger.Warn("uncaught exception in callback", "task", r.name, "error", err)
			}
		})
	}
}

// doneFunc exposes a task callback to JS as done(err, ...results).
func (r *runtime) doneFunc(done task.Callback) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		err := toError(call.Argument(0))
		var results []any
		if len(call.Arguments) > 1 {
			results = make([]any, 0, len(call.Arguments)-1)
			for _, a := range call.Arguments[1:] {
				results = append(results, export(a))
			}
		}
		done(err, results...)
		return goja.Undefined()
	}
}

func rest(args []goja.Value, from int) []any {
	if len(args) <= from {
		return nil
	}
	out := make([]any, 0, len(args)-from)
	for _, a := range args[from:] {
		out = append(out, a)
	}
	return out
}

func millis(v goja.Value) time.Duration {
	ms := v.ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func errValue(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

// toError converts the first argument of done into a Go error.
func toError(v goja.Value) error {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if err, ok := obj.Export().(error); ok {
			return err
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return errors.New(msg.String())
		}
	}
	if b, ok := v.Export().(bool); ok && !b {
		return nil
	}
	return errors.New(v.String())
}
