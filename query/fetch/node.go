// Package fetch describes which relations of a root entity type a query
// eagerly loads, and derives the canonical signature used to cache the
// materializer compiled for that shape.
package fetch

import (
	"fmt"
	"strings"
)

// Cardinality is the multiplicity of a navigation edge.
type Cardinality int

const (
	// ToOne navigates to at most one related entity (many-to-one, one-to-one).
	ToOne Cardinality = iota
	// ToMany navigates to a collection of related entities (one-to-many).
	ToMany
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	switch c {
	case ToOne:
		return "ToOne"
	case ToMany:
		return "ToMany"
	default:
		return fmt.Sprintf("Cardinality(%d)", int(c))
	}
}

// Node is one navigation edge in a fetch tree.
type Node struct {
	// Type is the target entity type. It may be empty until the tree is
	// resolved against metadata.
	Type string

	// Navigation is the relation name on the owning type.
	Navigation string

	// Cardinality tells whether the edge loads one entity or a collection.
	Cardinality Cardinality

	// Children are the edges fetched beneath this one, in declaration order.
	Children []*Node
}

// Child returns the direct child with the given navigation, if any.
func (n *Node) Child(navigation string) *Node {
	return findChild(n.Children, navigation)
}

// clone deep-copies the node so that trees never share nodes.
func (n *Node) clone() *Node {
	c := &Node{
		Type:        n.Type,
		Navigation:  n.Navigation,
		Cardinality: n.Cardinality,
	}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.clone()
		}
	}
	return c
}

func findChild(nodes []*Node, navigation string) *Node {
	for _, n := range nodes {
		if n.Navigation == navigation {
			return n
		}
	}
	return nil
}

// IsIdent reports whether s is usable as a type or navigation identifier.
// Identifiers must be safe to embed in a signature without escaping.
func IsIdent(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, "{}[],:. \t\r\n#")
}
