// Package materializer assembles the object graph of one query execution
// from its flattened rows.
//
// A single SQL statement that eagerly loads collections returns one row per
// combination of children: with independent branches of sizes c1..cn a root
// comes back in c1*...*cn rows. The merge undoes this with an identity map:
// roots are kept in first-seen order, and every parent keeps one seen-set per
// collection branch, so a child is materialized and appended once no matter
// how many rows repeat it.
package materializer

import (
	"errors"
	"fmt"

	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/query/mapper"
)

// Materializer converts rows into ordered, deduplicated root entities for one
// fetch shape. It holds no per-execution state and is safe for concurrent use.
type Materializer struct {
	plan  *mapper.Plan
	merge func(p *mapper.Plan, rows []query.RawRow) ([]any, error)
}

// Compile selects the merge strategy for a plan.
func Compile(plan *mapper.Plan) *Materializer {
	m := &Materializer{plan: plan}
	switch {
	case plan.Shape == mapper.NoCollection:
		m.merge = flatten
	case plan.Shape == mapper.SingleCollection && plan.Segments[plan.Branches[0]].Parent == 0:
		m.merge = mergeSingle
	default:
		m.merge = mergeGraph
	}
	return m
}

// Plan returns the row mapper the materializer was compiled from.
func (m *Materializer) Plan() *mapper.Plan {
	return m.plan
}

// Materialize merges rows into root entities in the order their identity
// was first seen. Any error aborts the whole call and no entities are
// returned.
func (m *Materializer) Materialize(rows []query.RawRow) ([]any, error) {
	return m.merge(m.plan, rows)
}

// rowError attributes err to a row.
func rowError(row int, err error) error {
	var fe *mapper.FieldError
	if errors.As(err, &fe) {
		return &query.MaterializeError{Row: row, Path: fe.Path, Cause: fe.Cause}
	}
	return &query.MaterializeError{Row: row, Cause: err}
}

// flatten maps every row to one root entity.
func flatten(p *mapper.Plan, rows []query.RawRow) ([]any, error) {
	out := make([]any, 0, len(rows))
	for i, row := range rows {
		t, err := p.MapRow(row)
		if err != nil {
			return nil, rowError(i, err)
		}
		out = append(out, t.Root)
	}
	return out, nil
}

// rootKey reads the identity of the root in row. Roots are never absent.
func rootKey(p *mapper.Plan, row query.RawRow) (any, error) {
	if err := p.CheckRow(row); err != nil {
		return nil, err
	}
	key, present, err := p.Identity(0, row)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, &mapper.FieldError{Cause: errors.New("root identity is NULL")}
	}
	return key, nil
}

// mergeSingle handles one collection branch directly beneath the root.
func mergeSingle(p *mapper.Plan, rows []query.RawRow) ([]any, error) {
	type entry struct {
		root any
		seen map[any]struct{}
	}
	branch := p.Branches[0]
	roots := make(map[any]*entry)
	order := make([]any, 0)

	for i, row := range rows {
		key, err := rootKey(p, row)
		if err != nil {
			return nil, rowError(i, err)
		}
		e, ok := roots[key]
		if !ok {
			root, err := p.NewWithRelations(0, row)
			if err != nil {
				return nil, rowError(i, err)
			}
			e = &entry{root: root, seen: make(map[any]struct{})}
			roots[key] = e
			order = append(order, root)
		}

		childKey, present, err := p.Identity(branch, row)
		if err != nil {
			return nil, rowError(i, err)
		}
		if !present {
			continue
		}
		if _, dup := e.seen[childKey]; dup {
			continue
		}
		child, err := p.NewWithRelations(branch, row)
		if err != nil {
			return nil, rowError(i, err)
		}
		if err := p.Attach(branch, e.root, child); err != nil {
			return nil, rowError(i, err)
		}
		e.seen[childKey] = struct{}{}
	}
	return order, nil
}

// instance is one materialized entity of a graph merge with the state needed
// to keep merging rows beneath it.
type instance struct {
	value any
	// ones holds the to-one child instances, indexed like the segment's
	// children; nil where absent or where the child is a collection.
	ones []*instance
	// many holds the per-branch seen-sets, indexed like the segment's
	// children; nil where the child is a to-one.
	many []map[any]*instance
}

// graph merges rows of one execution into instance trees.
type graph struct {
	p *mapper.Plan
}

// mergeGraph handles any number of collection branches, independent or
// chained, including collections beneath to-one relations.
func mergeGraph(p *mapper.Plan, rows []query.RawRow) ([]any, error) {
	g := graph{p: p}
	roots := make(map[any]*instance)
	order := make([]any, 0)

	for i, row := range rows {
		key, err := rootKey(p, row)
		if err != nil {
			return nil, rowError(i, err)
		}
		root, ok := roots[key]
		if !ok {
			if root, err = g.newInstance(0, row); err != nil {
				return nil, rowError(i, err)
			}
			roots[key] = root
			order = append(order, root.value)
		}
		if err := g.merge(root, 0, row); err != nil {
			return nil, rowError(i, err)
		}
	}
	return order, nil
}

// newInstance materializes segment seg from row together with its to-one
// relations. To-one relations are resolved once, on the row that first
// produced their parent.
func (g graph) newInstance(seg int, row query.RawRow) (*instance, error) {
	value, err := g.p.New(seg, row)
	if err != nil {
		return nil, err
	}
	s := g.p.Segments[seg]
	inst := &instance{value: value}
	if len(s.Children) == 0 {
		return inst, nil
	}
	inst.ones = make([]*instance, len(s.Children))
	inst.many = make([]map[any]*instance, len(s.Children))
	for i, c := range s.Children {
		if g.p.Segments[c].Cardinality == fetch.ToMany {
			inst.many[i] = make(map[any]*instance)
			continue
		}
		_, present, err := g.p.Identity(c, row)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		one, err := g.newInstance(c, row)
		if err != nil {
			return nil, err
		}
		if err := g.p.Attach(c, value, one.value); err != nil {
			return nil, err
		}
		inst.ones[i] = one
	}
	return inst, nil
}

// merge applies one row to the subtree rooted at inst: every collection
// beneath it gains the row's child unless that child was already seen for
// this parent and branch.
func (g graph) merge(inst *instance, seg int, row query.RawRow) error {
	s := g.p.Segments[seg]
	if !s.HasCollections {
		return nil
	}
	for i, c := range s.Children {
		child := g.p.Segments[c]
		if child.Cardinality == fetch.ToOne {
			if one := inst.ones[i]; one != nil {
				if err := g.merge(one, c, row); err != nil {
					return err
				}
			}
			continue
		}

		key, present, err := g.p.Identity(c, row)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		seen := inst.many[i]
		existing, ok := seen[key]
		if !ok {
			if existing, err = g.newInstance(c, row); err != nil {
				return err
			}
			if err := g.p.Attach(c, inst.value, existing.value); err != nil {
				return err
			}
			seen[key] = existing
		}
		if err := g.merge(existing, c, row); err != nil {
			return err
		}
	}
	return nil
}

// String describes the materializer.
func (m *Materializer) String() string {
	return fmt.Sprintf("materializer(%s, %s, tracked=%t)", m.plan.Signature, m.plan.Shape, m.plan.Tracked)
}
