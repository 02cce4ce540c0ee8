package namespace

import (
	"acpievt/device/acpi/mutex"
	"acpievt/device/acpi/state"
	"acpievt/kernel"
	"context"
)

// FindMethods invokes fn for every control method in the subtree rooted at
// the scope at scopePath, including methods nested in devices or scopes
// below it. The handle passed to fn can be used with Evaluate,
// AcquireHandle and ReleaseHandle.
//
// Matches are collected while the namespace mutex is held and fn is invoked
// after the mutex is released so that callers are free to acquire any other
// mutex from within fn.
func (ns *Namespace) FindMethods(ctx context.Context, scopePath string, fn func(name string, handle interface{})) *kernel.Error {
	if fn == nil {
		return ErrBadParameter
	}

	scope, err := ns.Lookup(ctx, scopePath)
	if err != nil {
		return err
	}

	var found []*Node
	if err = ns.Walk(ctx, scope, TypeMethod, 0, func(_ int, n *Node) bool {
		found = append(found, n)
		return true
	}); err != nil {
		return err
	}

	for _, n := range found {
		fn(n.name, n)
	}
	return nil
}

// Evaluate runs the control method referenced by handle while holding the
// interpreter mutex. Methods without a body evaluate successfully.
func (ns *Namespace) Evaluate(ctx context.Context, handle interface{}) *kernel.Error {
	node, ok := handle.(*Node)
	if !ok || node == nil || node.typ != TypeMethod {
		return ErrNotFound
	}

	if err := ns.mutexes.Acquire(ctx, mutex.Interpreter); err != nil {
		return err
	}

	var err *kernel.Error
	if node.method != nil {
		err = node.method(ctx)
	}

	if relErr := ns.mutexes.Release(ctx, mutex.Interpreter); err == nil {
		err = relErr
	}
	return err
}

// AcquireHandle takes a reference on the node referenced by handle.
func (ns *Namespace) AcquireHandle(ctx context.Context, handle interface{}) *kernel.Error {
	node, ok := handle.(*Node)
	if !ok || node == nil {
		return ErrNotFound
	}
	return ns.Reference(ctx, node, state.Increment)
}

// ReleaseHandle drops a reference previously obtained via AcquireHandle.
func (ns *Namespace) ReleaseHandle(ctx context.Context, handle interface{}) *kernel.Error {
	node, ok := handle.(*Node)
	if !ok || node == nil {
		return ErrNotFound
	}
	return ns.Reference(ctx, node, state.Decrement)
}
