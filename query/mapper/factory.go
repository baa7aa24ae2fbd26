package mapper

import (
	"errors"
	"fmt"

	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/tracking"
)

var (
	errNoPrimaryKey = errors.New("type has no primary key")
	errNotTrackable = errors.New("type does not support change tracking")
)

// Factory builds plans from fetch trees against one configuration.
type Factory struct {
	cfg *metadata.Configuration
}

// NewFactory creates a factory.
func NewFactory(cfg *metadata.Configuration) *Factory {
	return &Factory{cfg: cfg}
}

// Build compiles the row mapper for a fetch tree. The tree is resolved
// against the configuration; the receiver's tree is not modified.
//
// Every fetched relation must target a mapped type with a primary key, as
// must the root when the tree has collections. A tracked plan requires the
// root type to implement tracking.Tracked.
func (f *Factory) Build(tree *fetch.Tree, tracked bool) (*Plan, error) {
	sig := tree.Signature()
	fail := func(path string, cause error) error {
		return &query.BuildError{Root: tree.Root, Signature: sig.String(), Path: path, Cause: cause}
	}

	if err := tree.Err(); err != nil {
		return nil, fail("", err)
	}
	rootMap, ok := f.cfg.Map(tree.Root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", query.ErrUnknownType, tree.Root)
	}
	resolved, err := tree.Resolve(f.cfg)
	if err != nil {
		return nil, fail("", err)
	}

	p := &Plan{
		Root:      tree.Root,
		Signature: sig,
		Tracked:   tracked,
		Segments: []*Segment{{
			Type:     tree.Root,
			Map:      rootMap,
			Parent:   -1,
			keyIndex: rootMap.KeyIndex(),
		}},
	}
	if err := f.addSegments(p, 0, resolved.Children); err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			return nil, fail(fe.Path, fe.Cause)
		}
		return nil, fail("", err)
	}
	p.Shape = ShapeOf(len(p.Branches))
	p.Layout = layoutOf(p.Segments)

	if p.Shape != NoCollection && !p.Segments[0].HasKey() {
		return nil, fail("", fmt.Errorf("%w: %s", errNoPrimaryKey, tree.Root))
	}
	if tracked && !tracking.Supports(rootMap.Accessor.New()) {
		return nil, fail("", fmt.Errorf("%w: %s", errNotTrackable, tree.Root))
	}
	return p, nil
}

// addSegments appends the segments for nodes, in pre-order, beneath parent.
func (f *Factory) addSegments(p *Plan, parent int, nodes []*fetch.Node) error {
	for _, n := range nodes {
		path := n.Navigation
		if pp := p.Segments[parent].Path; pp != "" {
			path = pp + "." + n.Navigation
		}
		m, ok := f.cfg.Map(n.Type)
		if !ok {
			return &FieldError{Path: path, Cause: fmt.Errorf("%w: %s", query.ErrUnknownType, n.Type)}
		}
		if m.KeyIndex() < 0 {
			return &FieldError{Path: path, Cause: fmt.Errorf("%w: %s", errNoPrimaryKey, n.Type)}
		}

		idx := len(p.Segments)
		p.Segments = append(p.Segments, &Segment{
			Path:        path,
			Navigation:  n.Navigation,
			Type:        n.Type,
			Cardinality: n.Cardinality,
			Map:         m,
			Parent:      parent,
			keyIndex:    m.KeyIndex(),
		})
		p.Segments[parent].Children = append(p.Segments[parent].Children, idx)
		if n.Cardinality == fetch.ToMany {
			p.Branches = append(p.Branches, idx)
			for a := parent; a >= 0; a = p.Segments[a].Parent {
				p.Segments[a].HasCollections = true
			}
		}
		if err := f.addSegments(p, idx, n.Children); err != nil {
			return err
		}
	}
	return nil
}

// layoutOf assigns contiguous column spans to segments in pre-order and
// records them on the segments.
func layoutOf(segments []*Segment) *query.Layout {
	l := &query.Layout{Spans: make([]query.Span, len(segments))}
	offset := 0
	for i, s := range segments {
		s.Span = query.Span{Path: s.Path, Offset: offset, Width: len(s.Map.Columns)}
		l.Spans[i] = s.Span
		offset += s.Span.Width
	}
	return l
}

// DefaultLayout returns the column layout a SQL writer must follow for tree:
// the root's mapped columns first, then each fetched node's columns in
// depth-first pre-order.
func DefaultLayout(tree *fetch.Tree, cfg *metadata.Configuration) (*query.Layout, error) {
	root, ok := cfg.Map(tree.Root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", query.ErrUnknownType, tree.Root)
	}
	resolved, err := tree.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	l := &query.Layout{Spans: []query.Span{{Width: len(root.Columns)}}}
	offset := len(root.Columns)
	var walkErr error
	resolved.Walk(func(path string, n *fetch.Node) bool {
		if walkErr != nil {
			return false
		}
		m, ok := cfg.Map(n.Type)
		if !ok {
			walkErr = fmt.Errorf("%w: %s at %s", query.ErrUnknownType, n.Type, path)
			return false
		}
		l.Spans = append(l.Spans, query.Span{Path: path, Offset: offset, Width: len(m.Columns)})
		offset += len(m.Columns)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return l, nil
}
