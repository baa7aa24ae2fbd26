package mapper

import (
	"fmt"
	"strings"

	"github.com/dashing-go/dashing/query/fetch"
)

// Explain renders the plan as markdown: shape, column layout, collection
// branches and the row cost of fetching them in one statement.
func (p *Plan) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Signature)
	fmt.Fprintf(&b, "- **Shape**: %s (%d collection branches)\n", p.Shape, len(p.Branches))
	fmt.Fprintf(&b, "- **Signature hash**: `%s`\n", p.Signature.HashHex())
	fmt.Fprintf(&b, "- **Tracked**: %t\n", p.Tracked)
	fmt.Fprintf(&b, "- **Row width**: %d columns\n\n", p.Width())

	b.WriteString("## Layout\n\n")
	b.WriteString("| Path | Type | Cardinality | Columns | Key |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range p.Segments {
		path, card := s.Path, s.Cardinality.String()
		if s.IsRoot() {
			path, card = "(root)", "-"
		}
		key := s.Map.PrimaryKey
		if key == "" {
			key = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d..%d | %s |\n", path, s.Type, card, s.Span.Offset, s.Span.End()-1, key)
	}

	if len(p.Branches) == 0 {
		b.WriteString("\n## Cost\n\nEvery row maps to exactly one root entity; no deduplication is needed.\n")
		return b.String()
	}

	names := make([]string, len(p.Branches))
	for i, br := range p.Branches {
		names[i] = "c(" + p.Segments[br].Path + ")"
	}
	b.WriteString("\n## Cost\n\n")
	fmt.Fprintf(&b, "Rows per root grow as the product of branch fan-outs, O(%s), while the objects built grow as their sum, O(%s).",
		strings.Join(names, " × "), strings.Join(names, " + "))
	if p.Shape == MultiCollection {
		b.WriteString(" Rows are deduplicated per parent and per branch.")
	}
	b.WriteString("\n")
	return b.String()
}

// Collections returns the paths of the collection branches.
func (p *Plan) Collections() []string {
	paths := make([]string, len(p.Branches))
	for i, br := range p.Branches {
		paths[i] = p.Segments[br].Path
	}
	return paths
}

// ToMany reports whether segment seg is a collection branch.
func (p *Plan) ToMany(seg int) bool {
	return p.Segments[seg].Cardinality == fetch.ToMany && !p.Segments[seg].IsRoot()
}
