package migration

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// SchemaEditor turns state transitions into DDL for one database engine.
// Methods that take before and after receive the table as it is in the
// database and as it must be once the call returns.
type SchemaEditor interface {
	Dialect() string

	CreateTable(tx *gorm.DB, t *Table) error
	DropTable(tx *gorm.DB, t *Table) error
	AddColumn(tx *gorm.DB, before, after *Table, column string) error
	RemoveColumn(tx *gorm.DB, before, after *Table, column string) error
	AlterColumn(tx *gorm.DB, before, after *Table, column string) error
	RenameColumn(tx *gorm.DB, before, after *Table, from, to string) error
	AddConstraint(tx *gorm.DB, before, after *Table, c Constraint) error
	RemoveConstraint(tx *gorm.DB, before, after *Table, c Constraint) error
	AddIndex(tx *gorm.DB, t *Table, idx Index) error
	RemoveIndex(tx *gorm.DB, t *Table, idx Index) error

	// Prepare runs before a migration's transaction opens and returns the
	// function that undoes it once the transaction is finished.
	Prepare(db *gorm.DB) (restore func() error, err error)
	// Verify runs inside the transaction right before commit.
	Verify(tx *gorm.DB) error
}

// NewEditor picks the editor matching the gorm dialector.
func NewEditor(db *gorm.DB) (SchemaEditor, error) {
	switch name := db.Dialector.Name(); name {
	case "postgres":
		return PostgresEditor{}, nil
	case "sqlite":
		return SQLiteEditor{}, nil
	default:
		return nil, fmt.Errorf("no schema editor for dialect %q", name)
	}
}

type typeMapper func(Column) string

func columnDefinition(col Column, typeOf typeMapper) string {
	var b strings.Builder
	b.WriteString(quoteIdent(col.Name))
	b.WriteByte(' ')
	b.WriteString(typeOf(col))
	if col.Type == TypeAutoID {
		return b.String()
	}
	if col.Null {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(defaultSQL(col.Default))
	}
	return b.String()
}

func defaultSQL(v any) string {
	if _, ok := v.(nowDefault); ok {
		return "CURRENT_TIMESTAMP"
	}
	return literal(v)
}

func foreignKeySQL(table string, col Column) string {
	ref := col.References
	onDelete := ref.OnDelete
	if onDelete == "" {
		onDelete = Protect
	}
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		quoteIdent(foreignKeyName(table, col.Name)), quoteIdent(col.Name),
		quoteIdent(ref.Table), quoteIdent(ref.Column), onDelete)
}

func constraintSQL(c Constraint) string {
	switch c.Kind {
	case UniqueKind:
		return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", quoteIdent(c.Name), identList(c.Columns))
	case CheckKind:
		return fmt.Sprintf("CONSTRAINT %s CHECK (%s)", quoteIdent(c.Name), c.Check.SQL())
	}
	return ""
}

// tableElements renders the body of CREATE TABLE for t.
func tableElements(t *Table, typeOf typeMapper) []string {
	var parts []string
	for _, col := range t.Columns {
		parts = append(parts, columnDefinition(col, typeOf))
	}
	for _, col := range t.Columns {
		if col.Unique && !col.PrimaryKey {
			parts = append(parts, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
				quoteIdent(uniqueKeyName(t.Name, col.Name)), quoteIdent(col.Name)))
		}
	}
	for _, c := range t.Constraints {
		if c.Kind == UniqueKind {
			parts = append(parts, constraintSQL(c))
		}
	}
	for _, c := range t.checks() {
		parts = append(parts, constraintSQL(c))
	}
	for _, col := range t.Columns {
		if col.References != nil {
			parts = append(parts, foreignKeySQL(t.Name, col))
		}
	}
	return parts
}

func createTableSQL(name string, t *Table, typeOf typeMapper) string {
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quoteIdent(name),
		strings.Join(tableElements(t, typeOf), ",\n\t"))
}

func createIndexSQL(table string, idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique,
		quoteIdent(idx.Name), quoteIdent(table), identList(idx.Columns))
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func exec(tx *gorm.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
