package loop

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Invocation is what work and hooks receive on every call.
type Invocation struct {
	// Task is the task name.
	Task string
	// Receiver is the bound host for tasks produced by Bind, nil otherwise.
	Receiver any
	Args     []any
	Kwargs   map[string]any
	// Iteration counts work invocations within the current run, from 1.
	// It is 0 for hooks and for Call.
	Iteration uint64
}

// Arg returns Args[i], or nil when out of range.
func (inv Invocation) Arg(i int) any {
	if i < 0 || i >= len(inv.Args) {
		return nil
	}
	return inv.Args[i]
}

// String returns Kwargs[key] if it is a string.
func (inv Invocation) String(key string) (string, bool) {
	s, ok := inv.Kwargs[key].(string)
	return s, ok
}

func (inv Invocation) clone() Invocation {
	inv.Args = slices.Clone(inv.Args)
	inv.Kwargs = maps.Clone(inv.Kwargs)
	return inv
}

// WorkFunc is an asynchronous unit of work. It runs on the task's execution
// unit and must honor ctx.
type WorkFunc func(ctx context.Context, inv Invocation) error

// AsWork adapts a dynamically typed callable. Accepted shapes are WorkFunc,
// func(context.Context, Invocation) error and func(context.Context) error.
// Anything else, including context-less funcs, fails with ErrNotAsyncCallable.
func AsWork(fn any) (WorkFunc, error) {
	switch f := fn.(type) {
	case WorkFunc:
		if f != nil {
			return f, nil
		}
	case func(context.Context, Invocation) error:
		if f != nil {
			return f, nil
		}
	case func(context.Context) error:
		if f != nil {
			return func(ctx context.Context, _ Invocation) error { return f(ctx) }, nil
		}
	}
	return nil, fmt.Errorf("%w: got %T", ErrNotAsyncCallable, fn)
}
