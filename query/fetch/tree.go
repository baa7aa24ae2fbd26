package fetch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidTree is returned when a tree is malformed (bad identifiers,
	// conflicting cardinalities for the same navigation).
	ErrInvalidTree = errors.New("invalid fetch tree")

	// ErrUnknownNavigation is returned when a navigation does not exist on
	// its owning type.
	ErrUnknownNavigation = errors.New("unknown navigation")

	// ErrCardinalityMismatch is returned when a node declares a cardinality
	// that differs from the relation's mapped cardinality.
	ErrCardinalityMismatch = errors.New("cardinality mismatch")

	// ErrTypeMismatch is returned when a node names a target type that
	// differs from the relation's mapped target.
	ErrTypeMismatch = errors.New("target type mismatch")
)

// Tree is a root entity type plus the relations eagerly loaded with it.
//
// A tree owns its nodes exclusively; Clone produces an independent copy.
// Trees are not safe for concurrent mutation, but an unmodified tree may
// be shared by concurrent queries.
type Tree struct {
	Root     string
	Children []*Node

	err error
}

// New starts a fetch tree for the given root type.
func New(root string) *Tree {
	t := &Tree{Root: root}
	if !IsIdent(root) {
		t.err = fmt.Errorf("%w: invalid root type %q", ErrInvalidTree, root)
	}
	return t
}

// Err returns the first error recorded while building the tree.
func (t *Tree) Err() error {
	return t.err
}

// Fetch eagerly loads a chain of to-one relations given as a dotted path,
// e.g. "Author" or "Post.Blog.Owner". Existing nodes along the path are reused.
func (t *Tree) Fetch(path string) *Tree {
	children := &t.Children
	for _, nav := range strings.Split(path, ".") {
		n := t.ensure(children, nav, ToOne)
		if n == nil {
			return t
		}
		children = &n.Children
	}
	return t
}

// FetchMany eagerly loads a collection relation of the root type. The
// returned Chain continues below that collection.
func (t *Tree) FetchMany(navigation string) *Chain {
	return &Chain{tree: t, node: t.ensure(&t.Children, navigation, ToMany)}
}

// Chain continues a fetch below a previously fetched node.
type Chain struct {
	tree *Tree
	node *Node
}

// ThenFetch loads a to-one relation of the chained node.
func (c *Chain) ThenFetch(navigation string) *Chain {
	return c.then(navigation, ToOne)
}

// ThenFetchMany loads a collection relation of the chained node.
func (c *Chain) ThenFetchMany(navigation string) *Chain {
	return c.then(navigation, ToMany)
}

// Tree returns the tree the chain belongs to.
func (c *Chain) Tree() *Tree {
	return c.tree
}

func (c *Chain) then(navigation string, card Cardinality) *Chain {
	if c.node == nil {
		return c
	}
	return &Chain{tree: c.tree, node: c.tree.ensure(&c.node.Children, navigation, card)}
}

// ensure returns the child with the given navigation, creating it when
// missing. A cardinality conflict records an error and returns nil.
func (t *Tree) ensure(children *[]*Node, navigation string, card Cardinality) *Node {
	if t.err != nil {
		return nil
	}
	if !IsIdent(navigation) {
		t.err = fmt.Errorf("%w: invalid navigation %q", ErrInvalidTree, navigation)
		return nil
	}
	if n := findChild(*children, navigation); n != nil {
		if n.Cardinality != card {
			t.err = fmt.Errorf("%w: %s fetched as both %s and %s", ErrInvalidTree, navigation, n.Cardinality, card)
			return nil
		}
		return n
	}
	n := &Node{Navigation: navigation, Cardinality: card}
	*children = append(*children, n)
	return n
}

// Add appends an already built node (deep-copied) beneath the root.
func (t *Tree) Add(n *Node) *Tree {
	if t.err != nil {
		return t
	}
	if findChild(t.Children, n.Navigation) != nil {
		t.err = fmt.Errorf("%w: duplicate navigation %q", ErrInvalidTree, n.Navigation)
		return t
	}
	t.Children = append(t.Children, n.clone())
	return t
}

// HasFetches reports whether any relation is eagerly loaded.
func (t *Tree) HasFetches() bool {
	return len(t.Children) > 0
}

// Collections returns the number of to-many nodes anywhere in the tree,
// i.e. the number of collection branches the merge must undo.
func (t *Tree) Collections() int {
	count := 0
	t.Walk(func(_ string, n *Node) bool {
		if n.Cardinality == ToMany {
			count++
		}
		return true
	})
	return count
}

// Walk visits every node depth-first in declaration order. path is the
// dotted navigation path of the node. Returning false skips the node's
// children.
func (t *Tree) Walk(fn func(path string, n *Node) bool) {
	walk(t.Children, "", fn)
}

func walk(nodes []*Node, prefix string, fn func(string, *Node) bool) {
	for _, n := range nodes {
		path := n.Navigation
		if prefix != "" {
			path = prefix + "." + n.Navigation
		}
		if fn(path, n) {
			walk(n.Children, path, fn)
		}
	}
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{Root: t.Root, err: t.err}
	if len(t.Children) > 0 {
		c.Children = make([]*Node, len(t.Children))
		for i, n := range t.Children {
			c.Children[i] = n.clone()
		}
	}
	return c
}

// Normalize returns a copy whose sibling nodes are sorted by navigation at
// every level. Signatures are sensitive to sibling order; normalizing makes
// trees that differ only in the order independent branches were declared
// share one signature (and one column layout).
func (t *Tree) Normalize() *Tree {
	c := t.Clone()
	sortNodes(c.Children)
	return c
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Navigation < nodes[j].Navigation
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Resolver answers relation questions about mapped entity types.
type Resolver interface {
	// HasType reports whether the type is mapped.
	HasType(name string) bool

	// Relation returns the target type and cardinality of a navigation.
	Relation(owner, navigation string) (target string, card Cardinality, ok bool)
}

// Resolve returns a copy of the tree with every node's Type filled in from
// r, checking that navigations exist and that declared cardinalities and
// types agree with the mapping.
func (t *Tree) Resolve(r Resolver) (*Tree, error) {
	if t.err != nil {
		return nil, t.err
	}
	c := t.Clone()
	if err := resolveNodes(r, c.Root, c.Root, c.Children); err != nil {
		return nil, err
	}
	return c, nil
}

func resolveNodes(r Resolver, owner, prefix string, nodes []*Node) error {
	for _, n := range nodes {
		path := prefix + "." + n.Navigation
		target, card, ok := r.Relation(owner, n.Navigation)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNavigation, path)
		}
		if card != n.Cardinality {
			return fmt.Errorf("%w: %s is mapped %s but fetched %s", ErrCardinalityMismatch, path, card, n.Cardinality)
		}
		if n.Type != "" && n.Type != target {
			return fmt.Errorf("%w: %s targets %s, not %s", ErrTypeMismatch, path, target, n.Type)
		}
		n.Type = target
		if err := resolveNodes(r, target, path, n.Children); err != nil {
			return err
		}
	}
	return nil
}
