package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Operator is a supported `where` comparison.
type Operator int

const (
	OpEquals Operator = iota
	OpIn
	OpIsNull
)

// Condition restricts a listing to rows whose column matches Values.
type Condition struct {
	Column string
	Op     Operator
	Values []any
}

// SortSpec orders a listing by a single column.
type SortSpec struct {
	Column string
	Desc   bool
}

// UserQuery describes a filtered, sorted, paginated read of users.
// OwnerID > 0 restricts the result to that single user id.
type UserQuery struct {
	OwnerID    int64
	Conditions []Condition
	Search     string
	Sort       SortSpec
	Limit      int
	Offset     int
}

// filterColumns maps accepted `where` keys to qualified columns.
var filterColumns = map[string]string{
	"id":         "users.id",
	"level_id":   "users.level_id",
	"username":   "users.username",
	"email":      "users.email",
	"name":       "users.name",
	"picture":    "users.picture",
	"last_login": "users.last_login",
	"created_at": "users.created_at",
	"updated_at": "users.updated_at",
}

func sortColumn(key string) (string, bool) {
	if key == "level_name" {
		return "user_levels.name", true
	}
	col, ok := filterColumns[key]
	return col, ok
}

func normalizeColumn(key string) string {
	return strings.TrimPrefix(strings.TrimSpace(key), "users.")
}

var defaultSort = SortSpec{Column: "id"}

// ParseSort reads "column:asc|desc". Empty input yields id ascending.
func ParseSort(raw string) (SortSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultSort, nil
	}
	col, dir, _ := strings.Cut(raw, ":")
	spec := SortSpec{Column: normalizeColumn(col)}
	if _, ok := sortColumn(spec.Column); !ok {
		return SortSpec{}, newFieldError("sort", fmt.Sprintf("The sort column %q is not supported.", spec.Column))
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
	case "desc":
		spec.Desc = true
	default:
		return SortSpec{}, newFieldError("sort", "The sort direction must be asc or desc.")
	}
	return spec, nil
}

// ParseWhere decodes a JSON object of column -> scalar | array | null.
// Single quotes are accepted in place of double quotes.
func ParseWhere(raw string) ([]Condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	raw = strings.ReplaceAll(raw, "'", `"`)

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, newFieldError("where", "The where field must be a valid JSON object.")
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, k := range keys {
		col := normalizeColumn(k)
		if _, ok := filterColumns[col]; !ok {
			return nil, newFieldError("where", fmt.Sprintf("The where column %q is not supported.", col))
		}
		switch v := obj[k].(type) {
		case nil:
			conds = append(conds, Condition{Column: col, Op: OpIsNull})
		case []any:
			values := make([]any, 0, len(v))
			for _, item := range v {
				s, ok := scalarValue(item)
				if !ok {
					return nil, newFieldError("where", fmt.Sprintf("The where values for %q must be scalars.", col))
				}
				values = append(values, s)
			}
			conds = append(conds, Condition{Column: col, Op: OpIn, Values: values})
		default:
			s, ok := scalarValue(v)
			if !ok {
				return nil, newFieldError("where", fmt.Sprintf("The where value for %q must be a scalar or an array.", col))
			}
			conds = append(conds, Condition{Column: col, Op: OpEquals, Values: []any{s}})
		}
	}
	return conds, nil
}

func scalarValue(v any) (any, bool) {
	switch t := v.(type) {
	case string, bool:
		return t, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// whereSQL renders the predicate with $n placeholders starting at $1.
func (q UserQuery) whereSQL() (string, []any, error) {
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	parts := []string{"users.id > 0"}
	if q.OwnerID > 0 {
		parts = append(parts, "users.id = "+bind(q.OwnerID))
	}
	for _, c := range q.Conditions {
		col, ok := filterColumns[c.Column]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter column %q", c.Column)
		}
		switch c.Op {
		case OpEquals:
			if len(c.Values) != 1 {
				return "", nil, fmt.Errorf("equals on %q needs exactly one value", c.Column)
			}
			parts = append(parts, col+" = "+bind(c.Values[0]))
		case OpIn:
			if len(c.Values) == 0 {
				parts = append(parts, "FALSE")
				continue
			}
			ph := make([]string, len(c.Values))
			for i, v := range c.Values {
				ph[i] = bind(v)
			}
			parts = append(parts, col+" IN ("+strings.Join(ph, ", ")+")")
		case OpIsNull:
			parts = append(parts, col+" IS NULL")
		default:
			return "", nil, fmt.Errorf("unsupported operator %d", c.Op)
		}
	}
	if q.Search != "" {
		p := bind("%" + q.Search + "%")
		parts = append(parts, fmt.Sprintf("(users.username ILIKE %[1]s OR users.name ILIKE %[1]s OR users.email ILIKE %[1]s)", p))
	}
	return strings.Join(parts, " AND "), args, nil
}

func (q UserQuery) orderSQL() (string, error) {
	s := q.Sort
	if s.Column == "" {
		s = defaultSort
	}
	col, ok := sortColumn(s.Column)
	if !ok {
		return "", fmt.Errorf("unsupported sort column %q", s.Column)
	}
	if s.Desc {
		return col + " DESC", nil
	}
	return col + " ASC", nil
}
