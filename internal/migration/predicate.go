package migration

import (
	"fmt"
	"strconv"
	"strings"
)

// Predicate is a boolean expression over a table's columns, used for check
// constraints. It renders to SQL understood by both PostgreSQL and SQLite.
type Predicate struct {
	op       string
	column   string
	value    any
	values   []any
	children []Predicate
}

func IsNull(column string) Predicate  { return Predicate{op: "isnull", column: column} }
func NotNull(column string) Predicate { return Predicate{op: "notnull", column: column} }

// Cmp compares a column with a literal. op is one of = <> < <= > >=.
func Cmp(column, op string, value any) Predicate {
	return Predicate{op: op, column: column, value: value}
}

func Eq(column string, value any) Predicate  { return Cmp(column, "=", value) }
func Lte(column string, value any) Predicate { return Cmp(column, "<=", value) }
func Gte(column string, value any) Predicate { return Cmp(column, ">=", value) }

func In(column string, values ...any) Predicate {
	return Predicate{op: "in", column: column, values: values}
}

func And(ps ...Predicate) Predicate { return Predicate{op: "and", children: ps} }
func Or(ps ...Predicate) Predicate  { return Predicate{op: "or", children: ps} }
func Not(p Predicate) Predicate     { return Predicate{op: "not", children: []Predicate{p}} }

// SQL renders the predicate.
func (p Predicate) SQL() string {
	switch p.op {
	case "isnull":
		return quoteIdent(p.column) + " IS NULL"
	case "notnull":
		return quoteIdent(p.column) + " IS NOT NULL"
	case "in":
		lits := make([]string, len(p.values))
		for i, v := range p.values {
			lits[i] = literal(v)
		}
		return quoteIdent(p.column) + " IN (" + strings.Join(lits, ", ") + ")"
	case "and", "or":
		parts := make([]string, len(p.children))
		for i, c := range p.children {
			parts[i] = "(" + c.SQL() + ")"
		}
		return strings.Join(parts, " "+strings.ToUpper(p.op)+" ")
	case "not":
		return "NOT (" + p.children[0].SQL() + ")"
	case "":
		return ""
	}
	return quoteIdent(p.column) + " " + p.op + " " + literal(p.value)
}

func (p Predicate) String() string { return p.SQL() }

func (p Predicate) columns() []string {
	if p.column != "" {
		return []string{p.column}
	}
	var out []string
	for _, c := range p.children {
		out = append(out, c.columns()...)
	}
	return out
}

func (p Predicate) rename(from, to string) Predicate {
	if p.column == from {
		p.column = to
	}
	if len(p.children) > 0 {
		children := make([]Predicate, len(p.children))
		for i, c := range p.children {
			children[i] = c.rename(from, to)
		}
		p.children = children
	}
	return p
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
}
