// Package sqlgen writes the SELECT statement for a compiled fetch plan: the
// mapped columns of every node in layout order, one LEFT JOIN per fetched
// relation, and an optional filter, order and page on the root entities.
package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/query/mapper"
)

// ErrNoForeignKey is returned for a fetched relation whose mapping names no
// joining column.
var ErrNoForeignKey = errors.New("relation has no foreign key")

// Dialect renders identifiers and placeholders for one database provider.
type Dialect struct {
	Name        string
	quote       func(string) string
	placeholder func(int) string
}

// Quote quotes an identifier.
func (d Dialect) Quote(name string) string {
	return d.quote(name)
}

// Placeholder returns the bind marker of the n-th argument, counting from 1.
func (d Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

var (
	// Postgres quotes with double quotes and binds $1, $2, ...
	Postgres = Dialect{
		Name:        "postgresql",
		quote:       func(s string) string { return `"` + s + `"` },
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	// MySQL quotes with backticks and binds ?.
	MySQL = Dialect{
		Name:        "mysql",
		quote:       func(s string) string { return "`" + s + "`" },
		placeholder: func(int) string { return "?" },
	}
	// SQLite quotes with double quotes and binds ?.
	SQLite = Dialect{
		Name:        "sqlite",
		quote:       func(s string) string { return `"` + s + `"` },
		placeholder: func(int) string { return "?" },
	}
)

// NewDialect returns the dialect of a provider name.
func NewDialect(provider string) (Dialect, error) {
	switch provider {
	case "postgresql", "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// OrderBy represents an ORDER BY clause on a root column.
type OrderBy struct {
	Field     string
	Direction string // "ASC" or "DESC"
}

// Options restrict the root entities a statement selects. Limit and Offset
// count roots, not rows; Offset requires Limit.
type Options struct {
	Where   *WhereClause
	OrderBy []OrderBy
	Limit   int
	Offset  int
}

// Statement is generated SQL with its arguments.
type Statement struct {
	SQL  string
	Args []interface{}
}

// Query wraps the statement for execution with plan's fetch tree.
func (s *Statement) Query(tree *fetch.Tree) *query.Query {
	return query.New(tree, s.SQL, s.Args...)
}

type writer struct {
	plan    *mapper.Plan
	dialect Dialect
	args    []interface{}
}

func alias(seg int) string {
	return fmt.Sprintf("t%d", seg)
}

func (w *writer) column(seg int, name string) string {
	return alias(seg) + "." + w.dialect.Quote(name)
}

// checkRootColumns verifies that filter and order columns are mapped on the
// root type.
func (w *writer) checkRootColumns(opts Options) error {
	root := w.plan.Segments[0].Map
	fields := opts.Where.fields()
	for _, o := range opts.OrderBy {
		fields = append(fields, o.Field)
	}
	for _, f := range fields {
		if root.ColumnIndex(f) < 0 {
			return fmt.Errorf("%s has no mapped column %q", root.Type, f)
		}
	}
	return nil
}

func (w *writer) orderBy(opts Options, quoter func(string) string) []string {
	var parts []string
	for _, o := range opts.OrderBy {
		direction := "ASC"
		if strings.EqualFold(o.Direction, "DESC") {
			direction = "DESC"
		}
		parts = append(parts, quoter(o.Field)+" "+direction)
	}
	root := w.plan.Segments[0].Map
	if len(opts.OrderBy) == 0 && root.PrimaryKey != "" {
		parts = append(parts, quoter(root.PrimaryKey)+" ASC")
	}
	return parts
}

// Select writes the statement retrieving the rows of plan. Its columns match
// plan.Layout exactly.
func Select(plan *mapper.Plan, dialect Dialect, opts Options) (*Statement, error) {
	w := &writer{plan: plan, dialect: dialect}
	root := plan.Segments[0].Map
	if root.Table == "" {
		return nil, fmt.Errorf("%s is not mapped to a table", root.Type)
	}
	if opts.Offset > 0 && opts.Limit <= 0 {
		return nil, errors.New("offset requires a limit")
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, errors.New("limit and offset must not be negative")
	}
	if err := w.checkRootColumns(opts); err != nil {
		return nil, err
	}

	var columns []string
	for i, seg := range plan.Segments {
		for _, c := range seg.Map.Columns {
			columns = append(columns, w.column(i, c))
		}
	}
	parts := []string{"SELECT " + strings.Join(columns, ", ")}

	paged := opts.Limit > 0
	outer := func(c string) string { return w.column(0, c) }
	if paged {
		// The page is cut on the root table so collections stay complete.
		inner := []string{"SELECT * FROM " + dialect.Quote(root.Table)}
		where, err := buildWhere(opts.Where, &w.args, dialect.Placeholder, dialect.Quote)
		if err != nil {
			return nil, err
		}
		if where != "" {
			inner = append(inner, "WHERE "+where)
		}
		if order := w.orderBy(opts, dialect.Quote); len(order) > 0 {
			inner = append(inner, "ORDER BY "+strings.Join(order, ", "))
		}
		w.args = append(w.args, opts.Limit)
		inner = append(inner, "LIMIT "+dialect.Placeholder(len(w.args)))
		if opts.Offset > 0 {
			w.args = append(w.args, opts.Offset)
			inner = append(inner, "OFFSET "+dialect.Placeholder(len(w.args)))
		}
		parts = append(parts, fmt.Sprintf("FROM (%s) AS %s", strings.Join(inner, " "), alias(0)))
	} else {
		parts = append(parts, fmt.Sprintf("FROM %s AS %s", dialect.Quote(root.Table), alias(0)))
	}

	for i, seg := range plan.Segments[1:] {
		join, err := w.join(i+1, seg)
		if err != nil {
			return nil, err
		}
		parts = append(parts, join)
	}

	if !paged {
		where, err := buildWhere(opts.Where, &w.args, dialect.Placeholder, outer)
		if err != nil {
			return nil, err
		}
		if where != "" {
			parts = append(parts, "WHERE "+where)
		}
	}

	order := w.orderBy(opts, outer)
	for _, b := range plan.Branches {
		seg := plan.Segments[b]
		order = append(order, w.column(b, seg.Map.PrimaryKey)+" ASC")
	}
	if len(order) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(order, ", "))
	}

	return &Statement{SQL: strings.Join(parts, " "), Args: w.args}, nil
}

func (w *writer) join(i int, seg *mapper.Segment) (string, error) {
	parent := w.plan.Segments[seg.Parent].Map
	rel, ok := parent.Relation(seg.Navigation)
	if !ok || rel.ForeignKey == "" {
		return "", fmt.Errorf("%w: %s.%s", ErrNoForeignKey, parent.Type, seg.Navigation)
	}
	if seg.Map.Table == "" {
		return "", fmt.Errorf("%s is not mapped to a table", seg.Type)
	}

	var on string
	if seg.Cardinality == fetch.ToMany {
		on = fmt.Sprintf("%s = %s", w.column(i, rel.ForeignKey), w.column(seg.Parent, parent.PrimaryKey))
	} else {
		on = fmt.Sprintf("%s = %s", w.column(i, seg.Map.PrimaryKey), w.column(seg.Parent, rel.ForeignKey))
	}
	return fmt.Sprintf("LEFT JOIN %s AS %s ON %s", w.dialect.Quote(seg.Map.Table), alias(i), on), nil
}

// Count writes the statement counting the root entities matching where.
func Count(plan *mapper.Plan, dialect Dialect, where *WhereClause) (*Statement, error) {
	root := plan.Segments[0].Map
	if root.Table == "" {
		return nil, fmt.Errorf("%s is not mapped to a table", root.Type)
	}
	w := &writer{plan: plan, dialect: dialect}
	if err := w.checkRootColumns(Options{Where: where}); err != nil {
		return nil, err
	}
	sql := "SELECT COUNT(*) FROM " + dialect.Quote(root.Table)
	cond, err := buildWhere(where, &w.args, dialect.Placeholder, dialect.Quote)
	if err != nil {
		return nil, err
	}
	if cond != "" {
		sql += " WHERE " + cond
	}
	return &Statement{SQL: sql, Args: w.args}, nil
}
