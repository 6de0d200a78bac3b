package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ErrIrreversible is returned when rolling back an operation that has no
// backward step.
var ErrIrreversible = errors.New("operation is irreversible")

// Step carries what an operation needs while it runs inside a migration's
// transaction.
type Step struct {
	Ctx    context.Context
	Tx     *gorm.DB
	Editor SchemaEditor
	Key    Key
	Log    zerolog.Logger
}

// Operation is one reversible schema or data change.
//
// StateForward mutates the in-memory state only. Apply changes the database from
// the from state to the to state; Revert undoes it, receiving the state after
// the operation as from and the state before it as to.
type Operation interface {
	Describe() string
	StateForward(s *State) error
	Apply(step *Step, from, to *State) error
	Revert(step *Step, from, to *State) error
}

// DataFunc is the body of a data operation. apps exposes the tables as they
// exist at that point in the history.
type DataFunc func(ctx context.Context, apps *Apps) error

// Noop is a backward step that does nothing.
func Noop(context.Context, *Apps) error { return nil }

// tables fetches the same table from both states.
func tables(from, to *State, name string) (*Table, *Table, error) {
	a, err := from.mustTable(name)
	if err != nil {
		return nil, nil, err
	}
	b, err := to.mustTable(name)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

type CreateTable struct {
	Name        string
	Columns     []Column
	Constraints []Constraint
	Indexes     []Index
}

func (o CreateTable) Describe() string { return "Create table " + o.Name }

func (o CreateTable) StateForward(s *State) error {
	if _, ok := s.tables[o.Name]; ok {
		return fmt.Errorf("table %q already exists", o.Name)
	}
	t := &Table{Name: o.Name, Columns: o.Columns, Constraints: o.Constraints, Indexes: o.Indexes}
	for _, col := range t.Columns {
		if col.References != nil && col.References.Table != o.Name {
			if _, ok := s.tables[col.References.Table]; !ok {
				return fmt.Errorf("column %s.%s references unknown table %q", o.Name, col.Name, col.References.Table)
			}
		}
	}
	for _, c := range t.Constraints {
		if err := checkColumns(t, c.Name, constraintColumns(c)); err != nil {
			return err
		}
	}
	for _, idx := range t.Indexes {
		if err := checkColumns(t, idx.Name, idx.Columns); err != nil {
			return err
		}
	}
	s.tables[o.Name] = t.clone()
	return nil
}

func (o CreateTable) Apply(step *Step, _, to *State) error {
	t, err := to.mustTable(o.Name)
	if err != nil {
		return err
	}
	return step.Editor.CreateTable(step.Tx, t)
}

func (o CreateTable) Revert(step *Step, from, _ *State) error {
	t, err := from.mustTable(o.Name)
	if err != nil {
		return err
	}
	return step.Editor.DropTable(step.Tx, t)
}

type DropTable struct {
	Name string
}

func (o DropTable) Describe() string { return "Drop table " + o.Name }

func (o DropTable) StateForward(s *State) error {
	if _, err := s.mustTable(o.Name); err != nil {
		return err
	}
	for _, t := range s.tables {
		if t.Name == o.Name {
			continue
		}
		for _, col := range t.Columns {
			if col.References != nil && col.References.Table == o.Name {
				return fmt.Errorf("table %q is referenced by %s.%s", o.Name, t.Name, col.Name)
			}
		}
	}
	delete(s.tables, o.Name)
	return nil
}

func (o DropTable) Apply(step *Step, from, _ *State) error {
	t, err := from.mustTable(o.Name)
	if err != nil {
		return err
	}
	return step.Editor.DropTable(step.Tx, t)
}

func (o DropTable) Revert(step *Step, _, to *State) error {
	t, err := to.mustTable(o.Name)
	if err != nil {
		return err
	}
	return step.Editor.CreateTable(step.Tx, t)
}

type AddColumn struct {
	Table  string
	Column Column
}

func (o AddColumn) Describe() string {
	return fmt.Sprintf("Add column %s to %s", o.Column.Name, o.Table)
}

func (o AddColumn) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	if t.columnIndex(o.Column.Name) >= 0 {
		return fmt.Errorf("column %s.%s already exists", o.Table, o.Column.Name)
	}
	if ref := o.Column.References; ref != nil {
		if _, ok := s.tables[ref.Table]; !ok {
			return fmt.Errorf("column %s.%s references unknown table %q", o.Table, o.Column.Name, ref.Table)
		}
	}
	t.Columns = append(t.Columns, o.Column.clone())
	return nil
}

func (o AddColumn) Apply(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.AddColumn(step.Tx, before, after, o.Column.Name)
}

func (o AddColumn) Revert(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.RemoveColumn(step.Tx, before, after, o.Column.Name)
}

type RemoveColumn struct {
	Table string
	Name  string
}

func (o RemoveColumn) Describe() string {
	return fmt.Sprintf("Remove column %s from %s", o.Name, o.Table)
}

func (o RemoveColumn) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	i := t.columnIndex(o.Name)
	if i < 0 {
		return fmt.Errorf("column %s.%s does not exist", o.Table, o.Name)
	}
	for _, c := range t.Constraints {
		if c.references(o.Name) {
			return fmt.Errorf("column %s.%s is used by constraint %s", o.Table, o.Name, c.Name)
		}
	}
	for _, idx := range t.Indexes {
		for _, col := range idx.Columns {
			if col == o.Name {
				return fmt.Errorf("column %s.%s is used by index %s", o.Table, o.Name, idx.Name)
			}
		}
	}
	t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
	return nil
}

func (o RemoveColumn) Apply(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.RemoveColumn(step.Tx, before, after, o.Name)
}

func (o RemoveColumn) Revert(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.AddColumn(step.Tx, before, after, o.Name)
}

// AlterColumn replaces a column's definition. The name must not change; use
// RenameColumn for that.
type AlterColumn struct {
	Table  string
	Column Column
}

func (o AlterColumn) Describe() string {
	return fmt.Sprintf("Alter column %s on %s", o.Column.Name, o.Table)
}

func (o AlterColumn) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	i := t.columnIndex(o.Column.Name)
	if i < 0 {
		return fmt.Errorf("column %s.%s does not exist", o.Table, o.Column.Name)
	}
	t.Columns[i] = o.Column.clone()
	return nil
}

func (o AlterColumn) Apply(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.AlterColumn(step.Tx, before, after, o.Column.Name)
}

func (o AlterColumn) Revert(step *Step, from, to *State) error {
	return o.Apply(step, from, to)
}

type RenameColumn struct {
	Table string
	From  string
	To    string
}

func (o RenameColumn) Describe() string {
	return fmt.Sprintf("Rename column %s.%s to %s", o.Table, o.From, o.To)
}

func (o RenameColumn) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	i := t.columnIndex(o.From)
	if i < 0 {
		return fmt.Errorf("column %s.%s does not exist", o.Table, o.From)
	}
	if t.columnIndex(o.To) >= 0 {
		return fmt.Errorf("column %s.%s already exists", o.Table, o.To)
	}
	t.Columns[i].Name = o.To
	for j, c := range t.Constraints {
		t.Constraints[j] = c.renameColumn(o.From, o.To)
	}
	for j, idx := range t.Indexes {
		for k, col := range idx.Columns {
			if col == o.From {
				t.Indexes[j].Columns[k] = o.To
			}
		}
	}
	return nil
}

func (o RenameColumn) Apply(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.RenameColumn(step.Tx, before, after, o.From, o.To)
}

func (o RenameColumn) Revert(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.RenameColumn(step.Tx, before, after, o.To, o.From)
}

type AddConstraint struct {
	Table      string
	Constraint Constraint
}

func (o AddConstraint) Describe() string {
	return fmt.Sprintf("Add constraint %s on %s", o.Constraint.Name, o.Table)
}

func (o AddConstraint) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	if t.constraintIndex(o.Constraint.Name) >= 0 {
		return fmt.Errorf("constraint %s already exists on %s", o.Constraint.Name, o.Table)
	}
	if err := checkColumns(t, o.Constraint.Name, constraintColumns(o.Constraint)); err != nil {
		return err
	}
	t.Constraints = append(t.Constraints, o.Constraint)
	return nil
}

func (o AddConstraint) Apply(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.AddConstraint(step.Tx, before, after, o.Constraint)
}

func (o AddConstraint) Revert(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	return step.Editor.RemoveConstraint(step.Tx, before, after, o.Constraint)
}

type RemoveConstraint struct {
	Table string
	Name  string
}

func (o RemoveConstraint) Describe() string {
	return fmt.Sprintf("Remove constraint %s from %s", o.Name, o.Table)
}

func (o RemoveConstraint) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	i := t.constraintIndex(o.Name)
	if i < 0 {
		return fmt.Errorf("constraint %s does not exist on %s", o.Name, o.Table)
	}
	t.Constraints = append(t.Constraints[:i], t.Constraints[i+1:]...)
	return nil
}

func (o RemoveConstraint) Apply(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	c := before.Constraints[before.constraintIndex(o.Name)]
	return step.Editor.RemoveConstraint(step.Tx, before, after, c)
}

func (o RemoveConstraint) Revert(step *Step, from, to *State) error {
	before, after, err := tables(from, to, o.Table)
	if err != nil {
		return err
	}
	c := after.Constraints[after.constraintIndex(o.Name)]
	return step.Editor.AddConstraint(step.Tx, before, after, c)
}

type AddIndex struct {
	Table string
	Index Index
}

func (o AddIndex) Describe() string {
	return fmt.Sprintf("Create index %s on %s", o.Index.Name, o.Table)
}

func (o AddIndex) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	if t.indexIndex(o.Index.Name) >= 0 {
		return fmt.Errorf("index %s already exists on %s", o.Index.Name, o.Table)
	}
	if err := checkColumns(t, o.Index.Name, o.Index.Columns); err != nil {
		return err
	}
	t.Indexes = append(t.Indexes, o.Index)
	return nil
}

func (o AddIndex) Apply(step *Step, _, to *State) error {
	t, err := to.mustTable(o.Table)
	if err != nil {
		return err
	}
	return step.Editor.AddIndex(step.Tx, t, o.Index)
}

func (o AddIndex) Revert(step *Step, from, _ *State) error {
	t, err := from.mustTable(o.Table)
	if err != nil {
		return err
	}
	return step.Editor.RemoveIndex(step.Tx, t, o.Index)
}

type RemoveIndex struct {
	Table string
	Name  string
}

func (o RemoveIndex) Describe() string {
	return fmt.Sprintf("Remove index %s from %s", o.Name, o.Table)
}

func (o RemoveIndex) StateForward(s *State) error {
	t, err := s.mustTable(o.Table)
	if err != nil {
		return err
	}
	i := t.indexIndex(o.Name)
	if i < 0 {
		return fmt.Errorf("index %s does not exist on %s", o.Name, o.Table)
	}
	t.Indexes = append(t.Indexes[:i], t.Indexes[i+1:]...)
	return nil
}

func (o RemoveIndex) Apply(step *Step, from, _ *State) error {
	t, err := from.mustTable(o.Table)
	if err != nil {
		return err
	}
	return step.Editor.RemoveIndex(step.Tx, t, t.Indexes[t.indexIndex(o.Name)])
}

func (o RemoveIndex) Revert(step *Step, _, to *State) error {
	t, err := to.mustTable(o.Table)
	if err != nil {
		return err
	}
	return step.Editor.AddIndex(step.Tx, t, t.Indexes[t.indexIndex(o.Name)])
}

// RunData runs Go code against the historical tables. A nil Backward makes
// the operation, and therefore its migration, irreversible.
type RunData struct {
	Description string
	Forward     DataFunc
	Backward    DataFunc
}

func (o RunData) Describe() string {
	if o.Description != "" {
		return o.Description
	}
	return "Run data migration"
}

func (o RunData) StateForward(*State) error { return nil }

func (o RunData) Apply(step *Step, _, to *State) error {
	return o.Forward(step.Ctx, newApps(step.Tx, to))
}

func (o RunData) Revert(step *Step, _, to *State) error {
	if o.Backward == nil {
		return ErrIrreversible
	}
	return o.Backward(step.Ctx, newApps(step.Tx, to))
}

func constraintColumns(c Constraint) []string {
	if c.Kind == CheckKind {
		return c.Check.columns()
	}
	return c.Columns
}

func checkColumns(t *Table, owner string, cols []string) error {
	for _, col := range cols {
		if t.columnIndex(col) < 0 {
			return fmt.Errorf("%s on %s refers to unknown column %q", owner, t.Name, col)
		}
	}
	return nil
}
