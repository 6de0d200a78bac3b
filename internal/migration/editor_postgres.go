package migration

import (
	"fmt"

	"gorm.io/gorm"
)

// PostgresEditor alters tables in place with ALTER TABLE.
type PostgresEditor struct{}

func (PostgresEditor) Dialect() string { return "postgres" }

func (PostgresEditor) typeOf(col Column) string {
	switch col.Type {
	case TypeAutoID:
		return "bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	case TypeBigInt:
		return "bigint"
	case TypeInt:
		return "integer"
	case TypeSmallInt:
		return "smallint"
	case TypeBool:
		return "boolean"
	case TypeText:
		return "text"
	case TypeVarchar:
		return fmt.Sprintf("varchar(%d)", col.Size)
	case TypeTimestamp:
		return "timestamptz"
	case TypeDecimal:
		return fmt.Sprintf("numeric(%d, %d)", col.Precision, col.Scale)
	case TypeJSON:
		return "jsonb"
	}
	return "text"
}

func (e PostgresEditor) CreateTable(tx *gorm.DB, t *Table) error {
	stmts := []string{createTableSQL(t.Name, t, e.typeOf)}
	for _, idx := range t.Indexes {
		stmts = append(stmts, createIndexSQL(t.Name, idx))
	}
	return exec(tx, stmts...)
}

func (PostgresEditor) DropTable(tx *gorm.DB, t *Table) error {
	return exec(tx, "DROP TABLE "+quoteIdent(t.Name))
}

func (e PostgresEditor) AddColumn(tx *gorm.DB, _, after *Table, column string) error {
	col, _ := after.Column(column)
	table := quoteIdent(after.Name)
	stmts := []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDefinition(col, e.typeOf))}
	stmts = append(stmts, e.columnConstraints(after.Name, col)...)
	return exec(tx, stmts...)
}

// columnConstraints returns the statements installing the constraints that a
// column's attributes imply.
func (PostgresEditor) columnConstraints(table string, col Column) []string {
	var stmts []string
	t := quoteIdent(table)
	if col.Unique && !col.PrimaryKey {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
			t, quoteIdent(uniqueKeyName(table, col.Name)), quoteIdent(col.Name)))
	}
	if col.References != nil {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", t, foreignKeySQL(table, col)))
	}
	for _, c := range validatorChecks(table, col) {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", t, constraintSQL(c)))
	}
	return stmts
}

func (PostgresEditor) RemoveColumn(tx *gorm.DB, before, _ *Table, column string) error {
	return exec(tx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(before.Name), quoteIdent(column)))
}

func (e PostgresEditor) AlterColumn(tx *gorm.DB, before, after *Table, column string) error {
	old, _ := before.Column(column)
	col, _ := after.Column(column)
	table := quoteIdent(after.Name)
	name := quoteIdent(column)
	var stmts []string

	dropIf := func(present bool, constraint string) {
		if present {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, quoteIdent(constraint)))
		}
	}
	fkChanged := !sameReference(old.References, col.References)
	dropIf(fkChanged && old.References != nil, foreignKeyName(after.Name, column))
	dropIf(old.Unique && !col.Unique, uniqueKeyName(after.Name, column))
	dropIf(old.MaxValue != nil && !sameInt(old.MaxValue, col.MaxValue), maxCheckName(after.Name, column))
	dropIf(old.MinValue != nil && !sameInt(old.MinValue, col.MinValue), minCheckName(after.Name, column))

	if e.typeOf(old) != e.typeOf(col) {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			table, name, e.typeOf(col), name, e.typeOf(col)))
	}
	if old.Default != col.Default {
		if col.Default == nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, name))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, name, defaultSQL(col.Default)))
		}
	}
	if old.Null != col.Null {
		if col.Null {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, name))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, name))
		}
	}

	added := col
	added.Unique = col.Unique && !old.Unique
	if !fkChanged {
		added.References = nil
	}
	if sameInt(old.MaxValue, col.MaxValue) {
		added.MaxValue = nil
	}
	if sameInt(old.MinValue, col.MinValue) {
		added.MinValue = nil
	}
	stmts = append(stmts, e.columnConstraints(after.Name, added)...)
	return exec(tx, stmts...)
}

func (PostgresEditor) RenameColumn(tx *gorm.DB, before, after *Table, from, to string) error {
	table := quoteIdent(after.Name)
	stmts := []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, quoteIdent(from), quoteIdent(to))}
	col, _ := before.Column(from)
	rename := func(oldName, newName string) {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s",
			table, quoteIdent(oldName), quoteIdent(newName)))
	}
	if col.References != nil {
		rename(foreignKeyName(before.Name, from), foreignKeyName(after.Name, to))
	}
	if col.Unique && !col.PrimaryKey {
		rename(uniqueKeyName(before.Name, from), uniqueKeyName(after.Name, to))
	}
	if col.MaxValue != nil {
		rename(maxCheckName(before.Name, from), maxCheckName(after.Name, to))
	}
	if col.MinValue != nil {
		rename(minCheckName(before.Name, from), minCheckName(after.Name, to))
	}
	return exec(tx, stmts...)
}

func (PostgresEditor) AddConstraint(tx *gorm.DB, _, after *Table, c Constraint) error {
	return exec(tx, fmt.Sprintf("ALTER TABLE %s ADD %s", quoteIdent(after.Name), constraintSQL(c)))
}

func (PostgresEditor) RemoveConstraint(tx *gorm.DB, before, _ *Table, c Constraint) error {
	return exec(tx, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quoteIdent(before.Name), quoteIdent(c.Name)))
}

func (PostgresEditor) AddIndex(tx *gorm.DB, t *Table, idx Index) error {
	return exec(tx, createIndexSQL(t.Name, idx))
}

func (PostgresEditor) RemoveIndex(tx *gorm.DB, _ *Table, idx Index) error {
	return exec(tx, "DROP INDEX "+quoteIdent(idx.Name))
}

func (PostgresEditor) Prepare(*gorm.DB) (func() error, error) {
	return func() error { return nil }, nil
}

func (PostgresEditor) Verify(*gorm.DB) error { return nil }

func sameReference(a, b *Reference) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
