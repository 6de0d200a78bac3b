package migration

import (
	"fmt"
	"sort"
)

// Type is the abstract column type; each schema editor maps it onto its
// database's native type.
type Type int

const (
	TypeAutoID Type = iota + 1
	TypeBigInt
	TypeInt
	TypeSmallInt
	TypeBool
	TypeText
	TypeVarchar
	TypeTimestamp
	TypeDecimal
	TypeJSON
)

func (t Type) String() string {
	switch t {
	case TypeAutoID:
		return "auto_id"
	case TypeBigInt:
		return "bigint"
	case TypeInt:
		return "int"
	case TypeSmallInt:
		return "smallint"
	case TypeBool:
		return "bool"
	case TypeText:
		return "text"
	case TypeVarchar:
		return "varchar"
	case TypeTimestamp:
		return "timestamp"
	case TypeDecimal:
		return "decimal"
	case TypeJSON:
		return "json"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// OnDelete is the foreign key deletion policy.
type OnDelete string

const (
	Cascade OnDelete = "CASCADE"
	Protect OnDelete = "RESTRICT"
	SetNull OnDelete = "SET NULL"
)

// Reference makes a column a foreign key.
type Reference struct {
	Table    string
	Column   string
	OnDelete OnDelete
}

// Now is a default value rendered as the database's current timestamp.
type nowDefault struct{}

var Now = nowDefault{}

// Column is one attribute of a table at some point in history.
type Column struct {
	Name       string
	Type       Type
	Size       int
	Precision  int
	Scale      int
	Null       bool
	Default    any
	Unique     bool
	PrimaryKey bool
	References *Reference
	MaxValue   *int64
	MinValue   *int64
}

func ID() Column {
	return Column{Name: "id", Type: TypeAutoID, PrimaryKey: true}
}

func Varchar(name string, size int) Column {
	return Column{Name: name, Type: TypeVarchar, Size: size}
}

func Text(name string) Column {
	return Column{Name: name, Type: TypeText}
}

func Bool(name string, def bool) Column {
	return Column{Name: name, Type: TypeBool, Default: def}
}

func Int(name string) Column {
	return Column{Name: name, Type: TypeInt}
}

func SmallInt(name string) Column {
	return Column{Name: name, Type: TypeSmallInt}
}

func BigInt(name string) Column {
	return Column{Name: name, Type: TypeBigInt}
}

func Timestamp(name string) Column {
	return Column{Name: name, Type: TypeTimestamp}
}

func Decimal(name string, precision, scale int) Column {
	return Column{Name: name, Type: TypeDecimal, Precision: precision, Scale: scale}
}

func JSON(name string) Column {
	return Column{Name: name, Type: TypeJSON}
}

// ForeignKey is a bigint column referencing table.id.
func ForeignKey(name, table string, onDelete OnDelete) Column {
	return Column{
		Name:       name,
		Type:       TypeBigInt,
		References: &Reference{Table: table, Column: "id", OnDelete: onDelete},
	}
}

func (c Column) Nullable() Column {
	c.Null = true
	return c
}

func (c Column) NotNull() Column {
	c.Null = false
	return c
}

func (c Column) WithDefault(v any) Column {
	c.Default = v
	return c
}

func (c Column) WithoutDefault() Column {
	c.Default = nil
	return c
}

func (c Column) AsUnique() Column {
	c.Unique = true
	return c
}

// Max adds a max-value validator, installed as a check constraint.
func (c Column) Max(v int64) Column {
	c.MaxValue = &v
	return c
}

// Min adds a min-value validator, installed as a check constraint.
func (c Column) Min(v int64) Column {
	c.MinValue = &v
	return c
}

func (c Column) clone() Column {
	if c.References != nil {
		ref := *c.References
		c.References = &ref
	}
	if c.MaxValue != nil {
		v := *c.MaxValue
		c.MaxValue = &v
	}
	if c.MinValue != nil {
		v := *c.MinValue
		c.MinValue = &v
	}
	return c
}

// ConstraintKind distinguishes table-level constraints.
type ConstraintKind int

const (
	UniqueKind ConstraintKind = iota + 1
	CheckKind
)

// Constraint is a named table-level rule.
type Constraint struct {
	Name    string
	Kind    ConstraintKind
	Columns []string
	Check   Predicate
}

func Unique(name string, columns ...string) Constraint {
	return Constraint{Name: name, Kind: UniqueKind, Columns: columns}
}

func Check(name string, p Predicate) Constraint {
	return Constraint{Name: name, Kind: CheckKind, Check: p}
}

func (c Constraint) references(column string) bool {
	switch c.Kind {
	case UniqueKind:
		for _, col := range c.Columns {
			if col == column {
				return true
			}
		}
	case CheckKind:
		for _, col := range c.Check.columns() {
			if col == column {
				return true
			}
		}
	}
	return false
}

func (c Constraint) renameColumn(from, to string) Constraint {
	switch c.Kind {
	case UniqueKind:
		cols := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			if col == from {
				col = to
			}
			cols[i] = col
		}
		c.Columns = cols
	case CheckKind:
		c.Check = c.Check.rename(from, to)
	}
	return c
}

// Index is a secondary index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table is the shape of one table at some point in history.
type Table struct {
	Name        string
	Columns     []Column
	Constraints []Constraint
	Indexes     []Index
}

// Column looks a column up by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t *Table) columnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) constraintIndex(name string) int {
	for i, c := range t.Constraints {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) indexIndex(name string) int {
	for i, idx := range t.Indexes {
		if idx.Name == name {
			return i
		}
	}
	return -1
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// checks returns explicit check constraints followed by the ones derived
// from column validators.
func (t *Table) checks() []Constraint {
	var out []Constraint
	for _, c := range t.Constraints {
		if c.Kind == CheckKind {
			out = append(out, c)
		}
	}
	for _, col := range t.Columns {
		out = append(out, validatorChecks(t.Name, col)...)
	}
	return out
}

func validatorChecks(table string, col Column) []Constraint {
	var out []Constraint
	if col.MinValue != nil {
		out = append(out, Check(minCheckName(table, col.Name), Gte(col.Name, *col.MinValue)))
	}
	if col.MaxValue != nil {
		out = append(out, Check(maxCheckName(table, col.Name), Lte(col.Name, *col.MaxValue)))
	}
	return out
}

func foreignKeyName(table, column string) string { return table + "_" + column + "_fk" }
func uniqueKeyName(table, column string) string  { return table + "_" + column + "_key" }
func maxCheckName(table, column string) string   { return table + "_" + column + "_max" }
func minCheckName(table, column string) string   { return table + "_" + column + "_min" }

func (t *Table) clone() *Table {
	out := &Table{Name: t.Name}
	out.Columns = make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		out.Columns[i] = c.clone()
	}
	out.Constraints = make([]Constraint, len(t.Constraints))
	for i, c := range t.Constraints {
		c.Columns = append([]string(nil), c.Columns...)
		out.Constraints[i] = c
	}
	out.Indexes = make([]Index, len(t.Indexes))
	for i, idx := range t.Indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		out.Indexes[i] = idx
	}
	return out
}

// State is the schema as of one point in the migration history.
type State struct {
	tables map[string]*Table
}

func NewState() *State {
	return &State{tables: make(map[string]*Table)}
}

func (s *State) Clone() *State {
	out := NewState()
	for name, t := range s.tables {
		out.tables[name] = t.clone()
	}
	return out
}

// Table returns a copy of the named table.
func (s *State) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// TableNames returns every table name in lexical order.
func (s *State) TableNames() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *State) mustTable(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q does not exist", name)
	}
	return t, nil
}
