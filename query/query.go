// Package query holds the data shared by the materialization pipeline: the
// query handed over by the SQL writer, the raw rows returned by the driver,
// the column layout binding the two, and the error taxonomy.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/dashing-go/dashing/query/fetch"
)

// RawRow is one flattened result row, one value per selected column.
type RawRow []any

// Source retrieves raw rows for a SQL statement. It is the only blocking
// point of a query execution.
type Source interface {
	Rows(ctx context.Context, sql string, args []any) ([]RawRow, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, sql string, args []any) ([]RawRow, error)

// Rows calls f.
func (f SourceFunc) Rows(ctx context.Context, sql string, args []any) ([]RawRow, error) {
	return f(ctx, sql, args)
}

// Query is a statement produced by the SQL writer, paired 1:1 with the fetch
// tree that produced it.
type Query struct {
	SQL     string
	Args    []any
	Tree    *fetch.Tree
	Tracked bool

	// Layout is the column layout the statement was written with. When nil
	// the default depth-first layout is assumed.
	Layout *Layout
}

// New creates a query for a fetch tree.
func New(tree *fetch.Tree, sql string, args ...any) *Query {
	return &Query{SQL: sql, Args: args, Tree: tree}
}

// WithTracking marks the query as tracked.
func (q *Query) WithTracking() *Query {
	q.Tracked = true
	return q
}

// WithLayout sets an explicit column layout.
func (q *Query) WithLayout(l *Layout) *Query {
	q.Layout = l
	return q
}

// Root returns the root entity type of the query.
func (q *Query) Root() string {
	if q.Tree == nil {
		return ""
	}
	return q.Tree.Root
}

// Span is the contiguous column range holding one fetched type's columns.
type Span struct {
	// Path is the dotted navigation path; empty for the root.
	Path   string
	Offset int
	Width  int
}

// End returns the first column after the span.
func (s Span) End() int {
	return s.Offset + s.Width
}

// Layout maps every node of a fetch tree to its column span. Spans are listed
// in depth-first pre-order: the root first, then each child followed by its
// own descendants.
type Layout struct {
	Spans []Span
}

// Width returns the total number of columns a row must carry.
func (l *Layout) Width() int {
	if l == nil || len(l.Spans) == 0 {
		return 0
	}
	last := l.Spans[len(l.Spans)-1]
	return last.End()
}

// Span returns the span for a path.
func (l *Layout) Span(path string) (Span, bool) {
	for _, s := range l.Spans {
		if s.Path == path {
			return s, true
		}
	}
	return Span{}, false
}

// SplitOn returns the offset of every span after the root, the column
// positions where one type's columns end and the next begin.
func (l *Layout) SplitOn() []int {
	if l == nil || len(l.Spans) < 2 {
		return nil
	}
	offsets := make([]int, 0, len(l.Spans)-1)
	for _, s := range l.Spans[1:] {
		offsets = append(offsets, s.Offset)
	}
	return offsets
}

// Equal reports whether two layouts assign identical spans.
func (l *Layout) Equal(o *Layout) bool {
	if l == nil || o == nil {
		return l == o
	}
	if len(l.Spans) != len(o.Spans) {
		return false
	}
	for i := range l.Spans {
		if l.Spans[i] != o.Spans[i] {
			return false
		}
	}
	return true
}

// String renders the layout as "root[0:3] Posts[3:6] ...".
func (l *Layout) String() string {
	if l == nil {
		return "<nil>"
	}
	parts := make([]string, len(l.Spans))
	for i, s := range l.Spans {
		name := s.Path
		if name == "" {
			name = "root"
		}
		parts[i] = fmt.Sprintf("%s[%d:%d]", name, s.Offset, s.End())
	}
	return strings.Join(parts, " ")
}

// Page is one page of root entities together with the total match count.
type Page struct {
	TotalResults int
	Items        []any
	Skipped      int
	Taken        int
}
