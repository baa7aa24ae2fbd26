package sqlgen

import (
	"fmt"
	"strings"
)

// WhereClause represents a WHERE condition (can be nested)
type WhereClause struct {
	Conditions []Condition
	Groups     []*WhereClause // Nested WHERE clauses for AND/OR/NOT
	Operator   string         // "AND" or "OR"
	IsNot      bool           // true for NOT conditions
}

// Condition filters on one column of the root entity.
type Condition struct {
	Field    string
	Operator string // "=", "!=", ">", "<", ">=", "<=", "IN", "NOT IN", "LIKE", "IS NULL", "IS NOT NULL"
	Value    interface{}
}

// Where returns an AND clause of conditions.
func Where(conditions ...Condition) *WhereClause {
	return &WhereClause{Conditions: conditions, Operator: "AND"}
}

// Eq is the condition field = value.
func Eq(field string, value interface{}) Condition {
	return Condition{Field: field, Operator: "=", Value: value}
}

// In is the condition field IN (values...).
func In(field string, values ...interface{}) Condition {
	return Condition{Field: field, Operator: "IN", Value: values}
}

// AddGroup adds a nested WHERE clause
func (w *WhereClause) AddGroup(group *WhereClause) *WhereClause {
	w.Groups = append(w.Groups, group)
	return w
}

// IsEmpty returns true if the WHERE clause is empty
func (w *WhereClause) IsEmpty() bool {
	return w == nil || len(w.Conditions) == 0 && len(w.Groups) == 0
}

// fields returns every column the clause filters on.
func (w *WhereClause) fields() []string {
	if w == nil {
		return nil
	}
	var out []string
	for _, c := range w.Conditions {
		out = append(out, c.Field)
	}
	for _, g := range w.Groups {
		out = append(out, g.fields()...)
	}
	return out
}

// buildWhere renders a clause; args continue the statement's argument list.
func buildWhere(where *WhereClause, args *[]interface{}, placeholder func(int) string, quoter func(string) string) (string, error) {
	if where.IsEmpty() {
		return "", nil
	}

	var parts []string
	for _, cond := range where.Conditions {
		condSQL, err := buildCondition(cond, args, placeholder, quoter)
		if err != nil {
			return "", err
		}
		parts = append(parts, condSQL)
	}
	for _, group := range where.Groups {
		groupSQL, err := buildWhere(group, args, placeholder, quoter)
		if err != nil {
			return "", err
		}
		if groupSQL != "" {
			parts = append(parts, fmt.Sprintf("(%s)", groupSQL))
		}
	}

	op := "AND"
	if strings.EqualFold(where.Operator, "OR") {
		op = "OR"
	}
	result := strings.Join(parts, " "+op+" ")
	if where.IsNot {
		result = "NOT (" + result + ")"
	}
	return result, nil
}

func buildCondition(cond Condition, args *[]interface{}, placeholder func(int) string, quoter func(string) string) (string, error) {
	bind := func(v interface{}) string {
		*args = append(*args, v)
		return placeholder(len(*args))
	}

	switch cond.Operator {
	case "=", "!=", ">", "<", ">=", "<=", "LIKE":
		return fmt.Sprintf("%s %s %s", quoter(cond.Field), cond.Operator, bind(cond.Value)), nil

	case "IN", "NOT IN":
		values, ok := cond.Value.([]interface{})
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("%s on %s needs a non-empty value list", cond.Operator, cond.Field)
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = bind(v)
		}
		return fmt.Sprintf("%s %s (%s)", quoter(cond.Field), cond.Operator, strings.Join(placeholders, ", ")), nil

	case "IS NULL", "IS NOT NULL":
		return fmt.Sprintf("%s %s", quoter(cond.Field), cond.Operator), nil
	}
	return "", fmt.Errorf("unsupported operator %q", cond.Operator)
}
