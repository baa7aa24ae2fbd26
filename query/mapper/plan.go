// Package mapper builds, for one fetch shape, the routine that turns a single
// flattened row into entities: the root, its to-one relations assigned in
// place, and the immediate child of every collection branch.
package mapper

import (
	"database/sql/driver"
	"fmt"
	"reflect"

	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/fetch"
)

// Shape classifies a fetch tree by its number of collection branches.
type Shape int

const (
	// NoCollection trees map every row to exactly one root entity.
	NoCollection Shape = iota
	// SingleCollection trees carry one to-many branch.
	SingleCollection
	// MultiCollection trees carry two or more to-many branches, either
	// independent or chained, and their rows are a cartesian product.
	MultiCollection
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case NoCollection:
		return "NoCollection"
	case SingleCollection:
		return "SingleCollection"
	case MultiCollection:
		return "MultiCollection"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ShapeOf returns the shape for a number of collection branches.
func ShapeOf(collections int) Shape {
	switch {
	case collections == 0:
		return NoCollection
	case collections == 1:
		return SingleCollection
	default:
		return MultiCollection
	}
}

// Segment is one node of the fetch tree bound to its mapping and columns.
type Segment struct {
	// Path is the dotted navigation path, empty for the root.
	Path        string
	Navigation  string
	Type        string
	Cardinality fetch.Cardinality
	Span        query.Span
	Map         *metadata.Map

	// Parent is the index of the owning segment, -1 for the root.
	Parent int
	// Children are the indexes of the segments fetched beneath this one.
	Children []int
	// HasCollections reports whether a to-many segment exists beneath.
	HasCollections bool

	keyIndex int
}

// IsRoot reports whether the segment is the root.
func (s *Segment) IsRoot() bool {
	return s.Parent < 0
}

// HasKey reports whether the segment's type has a primary key.
func (s *Segment) HasKey() bool {
	return s.keyIndex >= 0
}

// FieldError reports a segment whose row data could not be read or assigned.
type FieldError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	path := e.Path
	if path == "" {
		path = "root"
	}
	return fmt.Sprintf("%s: %v", path, e.Cause)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Cause
}

// Plan is the compiled row mapper for one fetch shape. It is immutable and
// safe for concurrent use.
type Plan struct {
	Root      string
	Signature fetch.Signature
	Tracked   bool
	Shape     Shape
	Layout    *query.Layout

	// Segments lists every node in depth-first pre-order; Segments[0] is
	// the root.
	Segments []*Segment
	// Branches are the indexes of the to-many segments, in pre-order.
	Branches []int
}

// Tuple is the result of mapping one row.
type Tuple struct {
	Root any
	// Children holds one entity per collection branch, in Plan.Branches
	// order, nil where the row carries no child for that branch.
	Children []any
}

// Width returns the number of columns a row must carry.
func (p *Plan) Width() int {
	return p.Layout.Width()
}

// CheckRow verifies that a row is wide enough for the layout.
func (p *Plan) CheckRow(row query.RawRow) error {
	if len(row) < p.Width() {
		return fmt.Errorf("row has %d columns, layout needs %d", len(row), p.Width())
	}
	return nil
}

// Identity returns the normalized primary key of segment seg in row.
// present is false when the key is NULL, i.e. the entity is absent from an
// outer join.
func (p *Plan) Identity(seg int, row query.RawRow) (key any, present bool, err error) {
	s := p.Segments[seg]
	if s.keyIndex < 0 {
		return nil, false, &FieldError{Path: s.Path, Cause: fmt.Errorf("%s has no primary key", s.Type)}
	}
	key, present, err = NormalizeKey(row[s.Span.Offset+s.keyIndex])
	if err != nil {
		return nil, false, &FieldError{Path: s.Path, Cause: err}
	}
	return key, present, nil
}

// New allocates the entity of segment seg and assigns its columns from row.
// Collections fetched beneath it are initialized empty; relations are left
// for the caller.
func (p *Plan) New(seg int, row query.RawRow) (any, error) {
	s := p.Segments[seg]
	acc := s.Map.Accessor
	entity := acc.New()
	for i := 0; i < s.Span.Width; i++ {
		if err := acc.SetField(entity, i, row[s.Span.Offset+i]); err != nil {
			return nil, &FieldError{Path: s.Path, Cause: err}
		}
	}
	for _, c := range s.Children {
		child := p.Segments[c]
		if child.Cardinality != fetch.ToMany {
			continue
		}
		if err := acc.InitCollection(entity, child.Navigation); err != nil {
			return nil, &FieldError{Path: child.Path, Cause: err}
		}
	}
	return entity, nil
}

// NewWithRelations is New followed by the recursive assignment of every
// to-one relation fetched beneath seg. Absent (NULL) relations stay unset.
func (p *Plan) NewWithRelations(seg int, row query.RawRow) (any, error) {
	entity, err := p.New(seg, row)
	if err != nil {
		return nil, err
	}
	for _, c := range p.Segments[seg].Children {
		if p.Segments[c].Cardinality != fetch.ToOne {
			continue
		}
		_, present, err := p.Identity(c, row)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		related, err := p.NewWithRelations(c, row)
		if err != nil {
			return nil, err
		}
		if err := p.Attach(c, entity, related); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

// Attach links child, an entity of segment seg, to its parent entity:
// assigning a to-one relation or appending to a collection.
func (p *Plan) Attach(seg int, parent, child any) error {
	s := p.Segments[seg]
	acc := p.Segments[s.Parent].Map.Accessor
	var err error
	if s.Cardinality == fetch.ToMany {
		err = acc.AppendRelation(parent, s.Navigation, child)
	} else {
		err = acc.SetRelation(parent, s.Navigation, child)
	}
	if err != nil {
		return &FieldError{Path: s.Path, Cause: err}
	}
	return nil
}

// MapRow maps one row into the root entity, with its to-one relations, and
// the immediate child of every collection branch. Collections themselves are
// left empty; assembling them is the merge engine's job.
func (p *Plan) MapRow(row query.RawRow) (*Tuple, error) {
	if err := p.CheckRow(row); err != nil {
		return nil, err
	}
	root, err := p.NewWithRelations(0, row)
	if err != nil {
		return nil, err
	}
	t := &Tuple{Root: root}
	if len(p.Branches) == 0 {
		return t, nil
	}
	t.Children = make([]any, len(p.Branches))
	for i, b := range p.Branches {
		_, present, err := p.Identity(b, row)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		if t.Children[i], err = p.NewWithRelations(b, row); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NormalizeKey turns a driver value into a comparable identity; present is
// false for NULL. Byte slices become strings and integers become int64 so
// that the same key read through different drivers compares equal.
func NormalizeKey(v any) (key any, present bool, err error) {
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return nil, false, err
		}
		v = dv
	}
	switch x := v.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return string(x), true, nil
	case int64, string:
		return x, true, nil
	case int, int32, int16, int8, uint32, uint16, uint8:
		i, err := metadata.AsInt64(x)
		return i, true, err
	case uint, uint64:
		if i, err := metadata.AsInt64(x); err == nil {
			return i, true, nil
		}
		return x, true, nil
	}
	if !reflect.TypeOf(v).Comparable() {
		return nil, false, fmt.Errorf("identity of type %T is not comparable", v)
	}
	return v, true, nil
}
