package metadata

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dashing-go/dashing/query/fetch"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// For derives the map of struct type T. Reflection happens once, here; the
// returned accessor only replays precomputed field indexes.
//
// Exported fields map to columns named by their `db` tag, or the snake_case
// field name. The `pk` tag option marks the primary key; without it a column
// named "id" is used. Fields of type *S or []*S for a struct S are relations
// whose target type is S's name, overridable with a `rel` tag:
//
//	type Post struct {
//		ID     int64   `db:"id,pk"`
//		Title  string  `db:"title"`
//		Author *User   `rel:"User,fk=author_id"`
//		Tags   []*Tag
//	}
func For[T any](table string) (*Map, error) {
	var zero T
	return FromStruct(zero, table)
}

// MustFor is like For but panics on error.
func MustFor[T any](table string) *Map {
	m, err := For[T](table)
	if err != nil {
		panic(err)
	}
	return m
}

// FromStruct derives the map of sample's struct type.
func FromStruct(sample any, table string) (*Map, error) {
	typ := reflect.TypeOf(sample)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrInvalidMap, sample)
	}

	acc := &structAccessor{typ: typ, relations: make(map[string]relationField)}
	m := &Map{Type: typ.Name(), Table: table, Accessor: acc}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.Anonymous || !field.IsExported() {
			continue
		}
		dbTag := field.Tag.Get("db")
		if dbTag == "-" {
			continue
		}

		if target, many, ok := relationTarget(field.Type); ok && dbTag == "" {
			rel := Relation{Navigation: field.Name, Target: target, Cardinality: fetch.ToOne}
			if many {
				rel.Cardinality = fetch.ToMany
			}
			if relTag := field.Tag.Get("rel"); relTag != "" {
				parts := strings.Split(relTag, ",")
				if parts[0] != "" {
					rel.Target = parts[0]
				}
				for _, opt := range parts[1:] {
					if fk, ok := strings.CutPrefix(opt, "fk="); ok {
						rel.ForeignKey = fk
					}
				}
			}
			m.Relations = append(m.Relations, rel)
			acc.relations[field.Name] = relationField{index: field.Index, many: many}
			continue
		}

		column := toSnakeCase(field.Name)
		pk := false
		if dbTag != "" {
			parts := strings.Split(dbTag, ",")
			if parts[0] != "" {
				column = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "pk" {
					pk = true
				}
			}
		}
		if pk {
			if m.PrimaryKey != "" {
				return nil, fmt.Errorf("%w: %s declares more than one primary key", ErrInvalidMap, m.Type)
			}
			m.PrimaryKey = column
		}
		m.Columns = append(m.Columns, column)
		acc.fields = append(acc.fields, field.Index)
	}

	if m.PrimaryKey == "" && m.ColumnIndex("id") >= 0 {
		m.PrimaryKey = "id"
	}
	return m, nil
}

// relationTarget reports whether t is *S or []*S for a non-time struct S.
func relationTarget(t reflect.Type) (string, bool, bool) {
	many := false
	if t.Kind() == reflect.Slice {
		many = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Ptr {
		return "", false, false
	}
	elem := t.Elem()
	if elem.Kind() != reflect.Struct || elem == timeType || reflect.PointerTo(elem).Implements(scannerType) {
		return "", false, false
	}
	return elem.Name(), many, true
}

type relationField struct {
	index []int
	many  bool
}

// structAccessor is the Accessor for a reflected struct type. Entities are
// pointers to the struct.
type structAccessor struct {
	typ       reflect.Type
	fields    [][]int
	relations map[string]relationField
}

func (a *structAccessor) New() any {
	return reflect.New(a.typ).Interface()
}

func (a *structAccessor) elem(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Type() != a.typ {
		return reflect.Value{}, fmt.Errorf("expected *%s, got %T", a.typ.Name(), entity)
	}
	return v.Elem(), nil
}

func (a *structAccessor) column(entity any, index int) (reflect.Value, error) {
	v, err := a.elem(entity)
	if err != nil {
		return reflect.Value{}, err
	}
	if index < 0 || index >= len(a.fields) {
		return reflect.Value{}, fmt.Errorf("%w: %s column %d", ErrUnknownField, a.typ.Name(), index)
	}
	return v.FieldByIndex(a.fields[index]), nil
}

func (a *structAccessor) SetField(entity any, index int, value any) error {
	f, err := a.column(entity, index)
	if err != nil {
		return err
	}
	if err := setValue(f, value); err != nil {
		return fmt.Errorf("failed to set field %s.%s: %w", a.typ.Name(), a.typ.FieldByIndex(a.fields[index]).Name, err)
	}
	return nil
}

func (a *structAccessor) Field(entity any, index int) (any, error) {
	f, err := a.column(entity, index)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

func (a *structAccessor) relation(entity any, navigation string, many bool) (reflect.Value, error) {
	v, err := a.elem(entity)
	if err != nil {
		return reflect.Value{}, err
	}
	rf, ok := a.relations[navigation]
	if !ok || rf.many != many {
		return reflect.Value{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, a.typ.Name(), navigation)
	}
	return v.FieldByIndex(rf.index), nil
}

func (a *structAccessor) SetRelation(entity any, navigation string, related any) error {
	f, err := a.relation(entity, navigation, false)
	if err != nil {
		return err
	}
	if related == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	rv := reflect.ValueOf(related)
	if !rv.Type().AssignableTo(f.Type()) {
		return fmt.Errorf("cannot assign %s to %s.%s", rv.Type(), a.typ.Name(), navigation)
	}
	f.Set(rv)
	return nil
}

func (a *structAccessor) InitCollection(entity any, navigation string) error {
	f, err := a.relation(entity, navigation, true)
	if err != nil {
		return err
	}
	f.Set(reflect.MakeSlice(f.Type(), 0, 0))
	return nil
}

func (a *structAccessor) AppendRelation(entity any, navigation string, related any) error {
	f, err := a.relation(entity, navigation, true)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(related)
	if !rv.IsValid() || !rv.Type().AssignableTo(f.Type().Elem()) {
		return fmt.Errorf("cannot append %T to %s.%s", related, a.typ.Name(), navigation)
	}
	f.Set(reflect.Append(f, rv))
	return nil
}

// setValue assigns a driver value to a struct field.
func setValue(dst reflect.Value, value any) error {
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(value)
	}

	t := dst.Type()
	if value == nil {
		dst.Set(reflect.Zero(t))
		return nil
	}

	if t.Kind() == reflect.Ptr {
		elem := reflect.New(t.Elem())
		if err := setValue(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(t) {
		dst.Set(src)
		return nil
	}

	switch {
	case t == timeType:
		tm, err := AsTime(value)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(tm))
	case t.Kind() == reflect.String:
		s, err := AsString(value)
		if err != nil {
			return err
		}
		dst.SetString(s)
	case t.Kind() == reflect.Bool:
		b, err := AsBool(value)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case dst.CanInt():
		i, err := AsInt64(value)
		if err != nil {
			return err
		}
		if dst.OverflowInt(i) {
			return fmt.Errorf("value %d overflows %s", i, t)
		}
		dst.SetInt(i)
	case dst.CanUint():
		i, err := AsInt64(value)
		if err != nil {
			return err
		}
		if i < 0 || dst.OverflowUint(uint64(i)) {
			return fmt.Errorf("value %d overflows %s", i, t)
		}
		dst.SetUint(uint64(i))
	case dst.CanFloat():
		f, err := AsFloat64(value)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case src.Type().ConvertibleTo(t):
		dst.Set(src.Convert(t))
	default:
		return fmt.Errorf("cannot convert %s to %s", src.Type(), t)
	}
	return nil
}

// toSnakeCase converts PascalCase to snake_case. Runs of capitals stay
// together, so AuthorID becomes author_id.
func toSnakeCase(s string) string {
	var result strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' && !(prev >= 'A' && prev <= 'Z') {
			result.WriteRune('_')
		}
		result.WriteRune(r)
		prev = r
	}
	return strings.ToLower(result.String())
}
