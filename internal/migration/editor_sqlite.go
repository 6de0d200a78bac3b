package migration

import (
	"fmt"
	"strings"

	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
)

// SQLiteEditor changes tables by rebuilding them: SQLite cannot alter
// columns or constraints in place. Foreign key enforcement is switched off
// around the migration transaction and integrity is checked before commit.
type SQLiteEditor struct{}

func (SQLiteEditor) Dialect() string { return "sqlite" }

func (SQLiteEditor) typeOf(col Column) string {
	switch col.Type {
	case TypeAutoID:
		return "integer PRIMARY KEY AUTOINCREMENT"
	case TypeBigInt:
		return "bigint"
	case TypeInt:
		return "integer"
	case TypeSmallInt:
		return "smallint"
	case TypeBool:
		return "bool"
	case TypeVarchar:
		return fmt.Sprintf("varchar(%d)", col.Size)
	case TypeTimestamp:
		return "datetime"
	case TypeDecimal:
		return fmt.Sprintf("decimal(%d, %d)", col.Precision, col.Scale)
	}
	return "text"
}

func (e SQLiteEditor) CreateTable(tx *gorm.DB, t *Table) error {
	stmts := []string{createTableSQL(t.Name, t, e.typeOf)}
	for _, idx := range t.Indexes {
		stmts = append(stmts, createIndexSQL(t.Name, idx))
	}
	return exec(tx, stmts...)
}

func (SQLiteEditor) DropTable(tx *gorm.DB, t *Table) error {
	return exec(tx, "DROP TABLE "+quoteIdent(t.Name))
}

// remake copies before into a freshly created after. renamed maps new column
// names to the old ones they are filled from; columns with no source are left
// to their default.
func (e SQLiteEditor) remake(tx *gorm.DB, before, after *Table, renamed map[string]string) error {
	tmp := "new__" + after.Name
	var targets, sources []string
	for _, col := range after.Columns {
		src := col.Name
		if old, ok := renamed[col.Name]; ok {
			src = old
		}
		if _, ok := before.Column(src); !ok {
			continue
		}
		targets = append(targets, quoteIdent(col.Name))
		sources = append(sources, quoteIdent(src))
	}

	stmts := []string{
		createTableSQL(tmp, after, e.typeOf),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quoteIdent(tmp),
			strings.Join(targets, ", "), strings.Join(sources, ", "), quoteIdent(before.Name)),
		"DROP TABLE " + quoteIdent(before.Name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(after.Name)),
	}
	for _, idx := range after.Indexes {
		stmts = append(stmts, createIndexSQL(after.Name, idx))
	}
	return exec(tx, stmts...)
}

func (e SQLiteEditor) AddColumn(tx *gorm.DB, before, after *Table, _ string) error {
	return e.remake(tx, before, after, nil)
}

func (e SQLiteEditor) RemoveColumn(tx *gorm.DB, before, after *Table, _ string) error {
	return e.remake(tx, before, after, nil)
}

func (e SQLiteEditor) AlterColumn(tx *gorm.DB, before, after *Table, _ string) error {
	return e.remake(tx, before, after, nil)
}

func (e SQLiteEditor) RenameColumn(tx *gorm.DB, before, after *Table, from, to string) error {
	return e.remake(tx, before, after, map[string]string{to: from})
}

func (e SQLiteEditor) AddConstraint(tx *gorm.DB, before, after *Table, _ Constraint) error {
	return e.remake(tx, before, after, nil)
}

func (e SQLiteEditor) RemoveConstraint(tx *gorm.DB, before, after *Table, _ Constraint) error {
	return e.remake(tx, before, after, nil)
}

func (SQLiteEditor) AddIndex(tx *gorm.DB, t *Table, idx Index) error {
	return exec(tx, createIndexSQL(t.Name, idx))
}

func (SQLiteEditor) RemoveIndex(tx *gorm.DB, _ *Table, idx Index) error {
	return exec(tx, "DROP INDEX "+quoteIdent(idx.Name))
}

// Prepare turns foreign key enforcement off. The pragma is ignored inside a
// transaction, so it has to happen on the connection before BEGIN.
func (SQLiteEditor) Prepare(db *gorm.DB) (func() error, error) {
	var enabled int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&enabled).Error; err != nil {
		return nil, err
	}
	if err := db.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
		return nil, err
	}
	return func() error {
		if enabled == 0 {
			return nil
		}
		return db.Exec("PRAGMA foreign_keys = ON").Error
	}, nil
}

type foreignKeyViolation struct {
	Table  string `gorm:"column:table"`
	RowID  *int64 `gorm:"column:rowid"`
	Parent string `gorm:"column:parent"`
}

// Verify fails the migration if the rebuilt tables left dangling references.
func (SQLiteEditor) Verify(tx *gorm.DB) error {
	var violations []foreignKeyViolation
	if err := tx.Raw("PRAGMA foreign_key_check").Scan(&violations).Error; err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}
	v := violations[0]
	return &apperror.ConstraintError{
		Kind: apperror.ConstraintForeignKey,
		Err: fmt.Errorf("%s references a missing %s row (%d violations)",
			v.Table, v.Parent, len(violations)),
	}
}
