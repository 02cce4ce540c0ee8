// Package namespace provides the subset of the ACPI namespace that the event
// core depends on: a tree of named nodes, a walker that locates control
// methods below a scope, per-node reference counting and a hook for
// evaluating control methods.
package namespace

import (
	"context"
	"strings"

	"acpievt/kernel"
)

// Type describes the kind of object that a Node represents.
type Type uint8

// The list of supported node types. TypeAny works as a wildcard allowing
// visitors to inspect all nodes in the tree.
const (
	TypeAny Type = iota
	TypeScope
	TypeDevice
	TypeProcessor
	TypePowerResource
	TypeThermalZone
	TypeMethod
	TypeMutex
	TypeEvent
)

// MethodFunc implements the body of a control method. Method bodies are
// supplied by the AML interpreter; the namespace only knows how to call them.
type MethodFunc func(ctx context.Context) *kernel.Error

// Node is an object in the namespace tree.
type Node struct {
	name     string
	typ      Type
	parent   *Node
	children []*Node
	method   MethodFunc

	// refs is the number of external references to the node. It is only
	// modified while holding the namespace mutex.
	refs int
}

// Name returns the 4-character name of the node.
func (n *Node) Name() string { return n.name }

// Type returns the node type.
func (n *Node) Type() Type { return n.typ }

// Parent returns the parent node or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes.
func (n *Node) Children() []*Node { return n.children }

// Path returns the absolute path of the node, e.g. `\_GPE._L02`.
func (n *Node) Path() string {
	if n.parent == nil {
		return `\`
	}

	var segments []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segments = append(segments, cur.name)
	}

	var b strings.Builder
	b.WriteByte('\\')
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteString(segments[i])
		if i != 0 {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// child returns the direct child of n with the given name.
func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}
