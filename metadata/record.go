package metadata

import (
	"fmt"

	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/tracking"
)

// Record is a dynamically typed entity for types mapped without a Go struct,
// e.g. loaded from a YAML mapping. Records support change tracking.
type Record struct {
	tracking.State

	schema *recordSchema
	values []any
	one    map[string]*Record
	many   map[string][]*Record
}

type recordSchema struct {
	typ     string
	columns []string
	index   map[string]int
	rels    map[string]fetch.Cardinality
	navs    []string
}

// Type returns the entity type name.
func (r *Record) Type() string {
	return r.schema.typ
}

// Columns returns the mapped column names.
func (r *Record) Columns() []string {
	return r.schema.columns
}

// Get returns the value of a column, nil when unset or unmapped.
func (r *Record) Get(column string) any {
	i, ok := r.schema.index[column]
	if !ok {
		return nil
	}
	return r.values[i]
}

// Set assigns a column. Once tracking is enabled the column is recorded as
// changed.
func (r *Record) Set(column string, value any) error {
	i, ok := r.schema.index[column]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.schema.typ, column)
	}
	r.values[i] = value
	r.MarkDirty(column)
	return nil
}

// One returns a to-one relation, nil when absent or not fetched.
func (r *Record) One(navigation string) *Record {
	return r.one[navigation]
}

// Many returns a to-many relation, nil when not fetched.
func (r *Record) Many(navigation string) []*Record {
	return r.many[navigation]
}

// Relations returns the navigations that were loaded, to-one first, in
// mapping order.
func (r *Record) Relations() []string {
	var navs []string
	for _, nav := range r.schema.navs {
		if _, ok := r.one[nav]; ok {
			navs = append(navs, nav)
		}
	}
	for _, nav := range r.schema.navs {
		if _, ok := r.many[nav]; ok {
			navs = append(navs, nav)
		}
	}
	return navs
}

// NewRecordMap builds a Map whose entities are *Record values.
func NewRecordMap(typ, table, primaryKey string, columns []string, relations ...Relation) *Map {
	schema := &recordSchema{
		typ:     typ,
		columns: columns,
		index:   make(map[string]int, len(columns)),
		rels:    make(map[string]fetch.Cardinality, len(relations)),
	}
	for i, c := range columns {
		schema.index[c] = i
	}
	for _, rel := range relations {
		schema.rels[rel.Navigation] = rel.Cardinality
		schema.navs = append(schema.navs, rel.Navigation)
	}
	return &Map{
		Type:       typ,
		Table:      table,
		PrimaryKey: primaryKey,
		Columns:    columns,
		Relations:  relations,
		Accessor:   recordAccessor{schema: schema},
	}
}

type recordAccessor struct {
	schema *recordSchema
}

func (a recordAccessor) New() any {
	return &Record{schema: a.schema, values: make([]any, len(a.schema.columns))}
}

func (a recordAccessor) record(entity any) (*Record, error) {
	r, ok := entity.(*Record)
	if !ok || r == nil || r.schema != a.schema {
		return nil, fmt.Errorf("expected %s record, got %T", a.schema.typ, entity)
	}
	return r, nil
}

func (a recordAccessor) SetField(entity any, index int, value any) error {
	r, err := a.record(entity)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(a.schema.columns) {
		return fmt.Errorf("%w: %s column %d", ErrUnknownField, a.schema.typ, index)
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	return r.Set(a.schema.columns[index], value)
}

func (a recordAccessor) Field(entity any, index int) (any, error) {
	r, err := a.record(entity)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(r.values) {
		return nil, fmt.Errorf("%w: %s column %d", ErrUnknownField, a.schema.typ, index)
	}
	return r.values[index], nil
}

func (a recordAccessor) checkRelation(navigation string, card fetch.Cardinality) error {
	if c, ok := a.schema.rels[navigation]; !ok || c != card {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, a.schema.typ, navigation)
	}
	return nil
}

func (a recordAccessor) SetRelation(entity any, navigation string, related any) error {
	r, err := a.record(entity)
	if err != nil {
		return err
	}
	if err := a.checkRelation(navigation, fetch.ToOne); err != nil {
		return err
	}
	if r.one == nil {
		r.one = make(map[string]*Record)
	}
	if related == nil {
		r.one[navigation] = nil
		return nil
	}
	rel, ok := related.(*Record)
	if !ok {
		return fmt.Errorf("cannot assign %T to %s.%s", related, a.schema.typ, navigation)
	}
	r.one[navigation] = rel
	return nil
}

func (a recordAccessor) InitCollection(entity any, navigation string) error {
	r, err := a.record(entity)
	if err != nil {
		return err
	}
	if err := a.checkRelation(navigation, fetch.ToMany); err != nil {
		return err
	}
	if r.many == nil {
		r.many = make(map[string][]*Record)
	}
	r.many[navigation] = []*Record{}
	return nil
}

func (a recordAccessor) AppendRelation(entity any, navigation string, related any) error {
	r, err := a.record(entity)
	if err != nil {
		return err
	}
	if err := a.checkRelation(navigation, fetch.ToMany); err != nil {
		return err
	}
	rel, ok := related.(*Record)
	if !ok {
		return fmt.Errorf("cannot append %T to %s.%s", related, a.schema.typ, navigation)
	}
	if r.many == nil {
		r.many = make(map[string][]*Record)
	}
	r.many[navigation] = append(r.many[navigation], rel)
	return nil
}
