// Package metadata describes how entity types map onto result columns and
// relations. The materialization engine reads it through the Configuration
// registry and never reflects on entity types itself: every type supplies an
// Accessor that allocates instances and assigns fields and relations.
package metadata

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dashing-go/dashing/query/fetch"
)

var (
	// ErrInvalidMap is returned when an entity map is inconsistent.
	ErrInvalidMap = errors.New("invalid entity map")

	// ErrUnknownField is returned when an accessor is asked for a field or
	// relation it does not map.
	ErrUnknownField = errors.New("unknown field")
)

// Accessor is the per-type capability used to build entities. Field indexes
// refer to Map.Columns.
type Accessor interface {
	// New allocates an empty entity.
	New() any

	// SetField assigns the value of column index. A nil value stores the
	// field's zero value.
	SetField(entity any, index int, value any) error

	// Field returns the value of column index.
	Field(entity any, index int) (any, error)

	// SetRelation assigns a to-one relation. A nil related entity clears it.
	SetRelation(entity any, navigation string, related any) error

	// InitCollection installs an empty, non-nil collection.
	InitCollection(entity any, navigation string) error

	// AppendRelation appends to a to-many relation.
	AppendRelation(entity any, navigation string, related any) error
}

// Relation is a navigation from one entity type to another.
type Relation struct {
	Navigation  string
	Target      string
	Cardinality fetch.Cardinality
	// ForeignKey is the joining column: on the owner's table for to-one
	// relations, on the target's table for to-many relations.
	ForeignKey string
}

// Map is the mapping of one entity type.
type Map struct {
	Type       string
	Table      string
	PrimaryKey string
	Columns    []string
	Relations  []Relation
	Accessor   Accessor
}

// KeyIndex returns the column index of the primary key, or -1 when the type
// has no primary key.
func (m *Map) KeyIndex() int {
	if m.PrimaryKey == "" {
		return -1
	}
	return m.ColumnIndex(m.PrimaryKey)
}

// ColumnIndex returns the index of a column, or -1.
func (m *Map) ColumnIndex(column string) int {
	for i, c := range m.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Relation returns the relation with the given navigation.
func (m *Map) Relation(navigation string) (Relation, bool) {
	for _, r := range m.Relations {
		if r.Navigation == navigation {
			return r, true
		}
	}
	return Relation{}, false
}

func (m *Map) validate() error {
	if m.Type == "" {
		return fmt.Errorf("%w: missing type name", ErrInvalidMap)
	}
	if !fetch.IsIdent(m.Type) {
		return fmt.Errorf("%w: invalid type name %q", ErrInvalidMap, m.Type)
	}
	if m.Accessor == nil {
		return fmt.Errorf("%w: %s has no accessor", ErrInvalidMap, m.Type)
	}
	if len(m.Columns) == 0 {
		return fmt.Errorf("%w: %s maps no columns", ErrInvalidMap, m.Type)
	}
	seen := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		if seen[c] {
			return fmt.Errorf("%w: %s maps column %q twice", ErrInvalidMap, m.Type, c)
		}
		seen[c] = true
	}
	if m.PrimaryKey != "" && m.KeyIndex() < 0 {
		return fmt.Errorf("%w: %s primary key %q is not a mapped column", ErrInvalidMap, m.Type, m.PrimaryKey)
	}
	navs := make(map[string]bool, len(m.Relations))
	for _, r := range m.Relations {
		if r.Navigation == "" || r.Target == "" {
			return fmt.Errorf("%w: %s has a relation without navigation or target", ErrInvalidMap, m.Type)
		}
		if !fetch.IsIdent(r.Navigation) || !fetch.IsIdent(r.Target) {
			return fmt.Errorf("%w: %s relation %q -> %q has an invalid name", ErrInvalidMap, m.Type, r.Navigation, r.Target)
		}
		if navs[r.Navigation] {
			return fmt.Errorf("%w: %s maps navigation %q twice", ErrInvalidMap, m.Type, r.Navigation)
		}
		navs[r.Navigation] = true
	}
	return nil
}

// Configuration is the registry of entity maps. It is immutable once built
// and safe for concurrent use.
type Configuration struct {
	maps map[string]*Map
}

// NewConfiguration validates and registers maps.
func NewConfiguration(maps ...*Map) (*Configuration, error) {
	c := &Configuration{maps: make(map[string]*Map, len(maps))}
	for _, m := range maps {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.maps[m.Type]; dup {
			return nil, fmt.Errorf("%w: type %s registered twice", ErrInvalidMap, m.Type)
		}
		c.maps[m.Type] = m
	}
	return c, nil
}

// MustConfiguration is like NewConfiguration but panics on error.
func MustConfiguration(maps ...*Map) *Configuration {
	c, err := NewConfiguration(maps...)
	if err != nil {
		panic(err)
	}
	return c
}

// Map returns the map of a type.
func (c *Configuration) Map(typ string) (*Map, bool) {
	m, ok := c.maps[typ]
	return m, ok
}

// Types returns the registered type names, sorted.
func (c *Configuration) Types() []string {
	names := make([]string, 0, len(c.maps))
	for name := range c.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasType implements fetch.Resolver.
func (c *Configuration) HasType(name string) bool {
	_, ok := c.maps[name]
	return ok
}

// Relation implements fetch.Resolver.
func (c *Configuration) Relation(owner, navigation string) (string, fetch.Cardinality, bool) {
	m, ok := c.maps[owner]
	if !ok {
		return "", 0, false
	}
	r, ok := m.Relation(navigation)
	if !ok {
		return "", 0, false
	}
	return r.Target, r.Cardinality, true
}

var _ fetch.Resolver = (*Configuration)(nil)
