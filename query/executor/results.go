package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/mapper"
)

// Get runs a query selecting one root entity, typically by primary key, and
// returns it. It fails with query.ErrNotFound when no root matches.
func (e *Engine) Get(ctx context.Context, src query.Source, q *query.Query) (any, error) {
	out, err := e.Execute(ctx, src, q)
	if err != nil {
		return nil, err
	}
	switch len(out) {
	case 0:
		return nil, fmt.Errorf("%w: %s", query.ErrNotFound, q.Root())
	case 1:
		return out[0], nil
	default:
		return nil, fmt.Errorf("get %s: query returned %d entities", q.Root(), len(out))
	}
}

// GetMany runs a query selecting root entities by primary key and returns
// them in the order of ids. Ids without a match are skipped.
func (e *Engine) GetMany(ctx context.Context, src query.Source, q *query.Query, ids ...any) ([]any, error) {
	m, err := e.prepare(q)
	if err != nil {
		return nil, err
	}
	out, err := run(ctx, src, q, m)
	if err != nil {
		return nil, err
	}

	root := m.Plan().Segments[0].Map
	keyIndex := root.KeyIndex()
	if keyIndex < 0 {
		return nil, fmt.Errorf("get %s: type has no primary key", root.Type)
	}
	byKey := make(map[any]any, len(out))
	for _, entity := range out {
		v, err := root.Accessor.Field(entity, keyIndex)
		if err != nil {
			return nil, err
		}
		key, _, err := mapper.NormalizeKey(v)
		if err != nil {
			return nil, err
		}
		byKey[key] = entity
	}

	ordered := make([]any, 0, len(ids))
	for _, id := range ids {
		key, present, err := mapper.NormalizeKey(id)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		if entity, ok := byKey[key]; ok {
			ordered = append(ordered, entity)
		}
	}
	return ordered, nil
}

// Count runs a statement returning a single count column.
func (e *Engine) Count(ctx context.Context, src query.Source, sql string, args ...any) (int, error) {
	if _, err := e.configured(); err != nil {
		return 0, err
	}
	rows, err := src.Rows(ctx, sql, args)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("count: expected one row with one column, got %d rows", len(rows))
	}
	n, err := metadata.AsInt64(rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(n), nil
}

// ExecutePaged runs the count statement, then the page query, and returns
// the page. q must already select the page described by skip and take.
func (e *Engine) ExecutePaged(ctx context.Context, src query.Source, q *query.Query, skip, take int, countSQL string, countArgs ...any) (*query.Page, error) {
	if skip < 0 || take < 0 {
		return nil, errors.New("skip and take must not be negative")
	}
	m, err := e.prepare(q)
	if err != nil {
		return nil, err
	}
	total, err := e.Count(ctx, src, countSQL, countArgs...)
	if err != nil {
		return nil, err
	}
	items, err := run(ctx, src, q, m)
	if err != nil {
		return nil, err
	}
	return &query.Page{TotalResults: total, Items: items, Skipped: skip, Taken: take}, nil
}

// Collect converts materialized entities to T. It is meant to wrap an
// execution directly:
//
//	blogs, err := executor.Collect[*Blog](engine.Execute(ctx, src, q))
func Collect[T any](items []any, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	out := make([]T, len(items))
	for i, item := range items {
		v, ok := item.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("collect: item %d is %T, not %T", i, item, zero)
		}
		out[i] = v
	}
	return out, nil
}
