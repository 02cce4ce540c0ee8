package namespace

import (
	"acpievt/device/acpi/mutex"
	"acpievt/device/acpi/state"
	"acpievt/kernel"
	"context"
	"strings"
)

var (
	ErrNotFound      = &kernel.Error{Module: "acpi_ns", Message: "namespace node not found"}
	ErrAlreadyExists = &kernel.Error{Module: "acpi_ns", Message: "namespace node already exists"}
	ErrBadParameter  = &kernel.Error{Module: "acpi_ns", Message: "bad parameter"}
	ErrNotMethod     = &kernel.Error{Module: "acpi_ns", Message: "node is not a control method"}
)

// Visitor is invoked by Walk for each node that matches the requested type.
// The return value controls whether the children of the node are visited.
type Visitor func(depth int, node *Node) (keepRecursing bool)

// Namespace is a tree of named ACPI objects. Structural changes and reference
// count updates are serialized by the mutex.Namespace ordered mutex.
type Namespace struct {
	root    *Node
	mutexes *mutex.Set
	cache   *state.Cache
}

// New creates a namespace populated with the predefined scopes contained in
// the ACPI specification. Walks and reference updates obtain their working
// state objects from cache.
func New(mutexes *mutex.Set, cache *state.Cache) *Namespace {
	root := &Node{name: `\`, typ: TypeScope}
	for _, name := range []string{
		"_GPE", // General events in GPE register block
		"_PR_", // ACPI 1.0 processor namespace
		"_SB_", // System bus with all device objects
		"_SI_", // System indicators
		"_TZ_", // ACPI 1.0 thermal zone namespace
	} {
		root.children = append(root.children, &Node{name: name, typ: TypeScope, parent: root})
	}

	return &Namespace{root: root, mutexes: mutexes, cache: cache}
}

// Root returns the root node of the namespace.
func (ns *Namespace) Root() *Node {
	return ns.root
}

// Add creates a node called name below the node at parentPath. The body
// argument is only used for TypeMethod nodes.
func (ns *Namespace) Add(ctx context.Context, parentPath, name string, typ Type, body MethodFunc) (*Node, *kernel.Error) {
	if len(name) == 0 || len(name) > 4 || strings.ContainsAny(name, `\.^`) {
		return nil, ErrBadParameter
	}

	// Names are padded with underscores to 4 characters.
	name += "____"[:4-len(name)]

	if err := ns.mutexes.Acquire(ctx, mutex.Namespace); err != nil {
		return nil, err
	}
	defer ns.mutexes.Release(ctx, mutex.Namespace)

	parent := ns.lookup(parentPath)
	if parent == nil {
		return nil, ErrNotFound
	}

	if parent.child(name) != nil {
		return nil, ErrAlreadyExists
	}

	node := &Node{name: name, typ: typ, parent: parent}
	if typ == TypeMethod {
		node.method = body
	}
	parent.children = append(parent.children, node)
	return node, nil
}

// Lookup returns the node reachable via the absolute path (e.g. `\_GPE._L02`)
// or nil if no such node exists.
func (ns *Namespace) Lookup(ctx context.Context, path string) (*Node, *kernel.Error) {
	if err := ns.mutexes.Acquire(ctx, mutex.Namespace); err != nil {
		return nil, err
	}
	defer ns.mutexes.Release(ctx, mutex.Namespace)

	if node := ns.lookup(path); node != nil {
		return node, nil
	}
	return nil, ErrNotFound
}

func (ns *Namespace) lookup(path string) *Node {
	if path == "" || path[0] != '\\' {
		return nil
	}

	cur := ns.root
	if path = path[1:]; path == "" {
		return cur
	}

	for _, segment := range strings.Split(path, ".") {
		if cur = cur.child(segment); cur == nil {
			return nil
		}
	}
	return cur
}

// Walk visits the descendants of start in depth-first order, invoking fn for
// each node whose type matches typ. A positive maxDepth limits how far below
// start the walk descends; zero or a negative value means unbounded.
//
// The walk is iterative: each level of the descent is tracked by a package
// cursor obtained from the state cache. The namespace mutex is held for the
// duration of the walk so fn must not call back into the namespace.
func (ns *Namespace) Walk(ctx context.Context, start *Node, typ Type, maxDepth int, fn Visitor) *kernel.Error {
	if start == nil || fn == nil {
		return ErrBadParameter
	}

	if err := ns.mutexes.Acquire(ctx, mutex.Namespace); err != nil {
		return err
	}

	err := ns.walk(ctx, start, typ, maxDepth, fn)
	if relErr := ns.mutexes.Release(ctx, mutex.Namespace); err == nil {
		err = relErr
	}
	return err
}

func (ns *Namespace) walk(ctx context.Context, start *Node, typ Type, maxDepth int, fn Visitor) (err *kernel.Error) {
	var stack state.Stack

	defer func() {
		for s := stack.Pop(); s != nil; s = stack.Pop() {
			if relErr := ns.cache.Release(ctx, s); err == nil {
				err = relErr
			}
		}
	}()

	if err = ns.pushCursor(ctx, &stack, start); err != nil {
		return err
	}

	for stack.Len() != 0 {
		top := stack.Peek()
		cursor, _ := top.Package()
		node := cursor.Source.(*Node)

		if cursor.Index >= cursor.Count {
			stack.Pop()
			if err = ns.cache.Release(ctx, top); err != nil {
				return err
			}
			continue
		}

		child := node.children[cursor.Index]
		cursor.Index++

		depth := stack.Len()
		descend := true
		if typ == TypeAny || child.typ == typ {
			descend = fn(depth, child)
		}

		if descend && len(child.children) != 0 && (maxDepth <= 0 || depth < maxDepth) {
			if err = ns.pushCursor(ctx, &stack, child); err != nil {
				return err
			}
		}
	}

	return nil
}

func (ns *Namespace) pushCursor(ctx context.Context, stack *state.Stack, node *Node) *kernel.Error {
	s, err := ns.cache.Acquire(ctx, state.KindPackage)
	if err != nil {
		return err
	}

	cursor, _ := s.Package()
	cursor.Source = node
	cursor.Count = uint32(len(node.children))
	stack.Push(s)
	return nil
}

// Reference applies action to the reference count of node and all of its
// descendants. Each pending update is tracked by an update state obtained
// from the state cache.
func (ns *Namespace) Reference(ctx context.Context, node *Node, action state.UpdateAction) (err *kernel.Error) {
	if node == nil {
		return ErrBadParameter
	}

	if err = ns.mutexes.Acquire(ctx, mutex.Namespace); err != nil {
		return err
	}

	var stack state.Stack
	defer func() {
		for s := stack.Pop(); s != nil; s = stack.Pop() {
			if relErr := ns.cache.Release(ctx, s); err == nil {
				err = relErr
			}
		}
		if relErr := ns.mutexes.Release(ctx, mutex.Namespace); err == nil {
			err = relErr
		}
	}()

	if err = ns.pushUpdate(ctx, &stack, node, action); err != nil {
		return err
	}

	for stack.Len() != 0 {
		s := stack.Pop()
		upd, _ := s.Update()
		target := upd.Object.(*Node)

		switch upd.Action {
		case state.Increment:
			target.refs++
		case state.Decrement:
			if target.refs > 0 {
				target.refs--
			}
		case state.Force:
			target.refs = 0
		}

		if err = ns.cache.Release(ctx, s); err != nil {
			return err
		}

		for _, child := range target.children {
			if err = ns.pushUpdate(ctx, &stack, child, action); err != nil {
				return err
			}
		}
	}

	return nil
}

func (ns *Namespace) pushUpdate(ctx context.Context, stack *state.Stack, node *Node, action state.UpdateAction) *kernel.Error {
	s, err := ns.cache.Acquire(ctx, state.KindUpdate)
	if err != nil {
		return err
	}

	upd, _ := s.Update()
	upd.Object = node
	upd.Action = action
	upd.Value = 1
	stack.Push(s)
	return nil
}

// RefCount returns the number of references held on node.
func (ns *Namespace) RefCount(ctx context.Context, node *Node) (int, *kernel.Error) {
	if err := ns.mutexes.Acquire(ctx, mutex.Namespace); err != nil {
		return 0, err
	}
	refs := node.refs
	return refs, ns.mutexes.Release(ctx, mutex.Namespace)
}
