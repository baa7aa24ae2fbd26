package fetch

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Signature is the canonical rendering of a tree's structure. Two trees are
// shape-equivalent iff their signatures are equal. The rendering uses the
// fetch DSL syntax, so Parse(sig.String()) rebuilds an equivalent tree.
//
// Sibling order is significant: it also fixes the column layout the SQL
// writer emits. Use Tree.Normalize to compare trees regardless of order.
type Signature struct {
	text string
	hash uint64
}

// Signature computes the tree's signature. It depends only on structure:
// root type, navigation names, cardinalities, declared target types and
// children, never on predicates, parameters or row data.
func (t *Tree) Signature() Signature {
	var b strings.Builder
	b.Grow(len(t.Root) + 16*len(t.Children))
	b.WriteString(t.Root)
	writeNodes(&b, t.Children)
	text := b.String()
	return Signature{text: text, hash: xxhash.Sum64String(text)}
}

func writeNodes(b *strings.Builder, nodes []*Node) {
	if len(nodes) == 0 {
		return
	}
	b.WriteByte('{')
	for i, n := range nodes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(n.Navigation)
		if n.Cardinality == ToMany {
			b.WriteString("[]")
		}
		if n.Type != "" {
			b.WriteByte(':')
			b.WriteString(n.Type)
		}
		writeNodes(b, n.Children)
	}
	b.WriteByte('}')
}

// String returns the canonical text.
func (s Signature) String() string {
	return s.text
}

// Hash returns a 64-bit xxhash of the canonical text. It is meant for logs
// and display; equality must be decided on the text.
func (s Signature) Hash() uint64 {
	return s.hash
}

// HashHex returns Hash as a fixed-width hex string.
func (s Signature) HashHex() string {
	return fmt.Sprintf("%016x", s.hash)
}

// IsZero reports whether the signature was never computed.
func (s Signature) IsZero() bool {
	return s.text == ""
}
