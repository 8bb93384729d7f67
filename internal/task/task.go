// Package task holds the registry of named tasks and their per-task state.
package task

import "github.com/me/supertask/internal/capability"

// Callback receives the outcome of an invocation. A nil err means success.
type Callback func(err error, results ...any)

// Func is the body of a compiled or natively provided task. It must call
// done exactly once, possibly later from another goroutine.
type Func func(ctx capability.Context, args []any, done Callback)

// Handler serves Shared tasks. It receives the task name in addition to the
// arguments a Func would get.
type Handler func(name string, ctx capability.Context, args []any, done Callback)

// Executable is either Source awaiting compilation or a Compiled callable.
type Executable interface {
	isExecutable()
}

// Source is task code in a compiler-supported language.
type Source struct {
	Lang string
	Text string
}

// Compiled is a ready-to-call task body. Lang records the source language,
// empty for natively provided functions.
type Compiled struct {
	Fn   Func
	Lang string
}

func (Source) isExecutable()   {}
func (Compiled) isExecutable() {}

// Noop is the callback substituted when a caller supplies none.
func Noop(error, ...any) {}
