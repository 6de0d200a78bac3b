package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
)

// Apps is the view a data operation gets of the database: every table as it
// exists at that migration's point in history, not as the current code
// declares it.
type Apps struct {
	tx    *gorm.DB
	state *State
}

func newApps(tx *gorm.DB, state *State) *Apps {
	return &Apps{tx: tx, state: state}
}

// Model returns the historical accessor for table.
func (a *Apps) Model(table string) (*Model, error) {
	t, ok := a.state.Table(table)
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrUnknownColumn, table)
	}
	return &Model{tx: a.tx, table: t}, nil
}

// Row is one record keyed by column name.
type Row map[string]any

// Int64 reads an integer column regardless of how the driver scanned it.
func (r Row) Int64(column string) int64 {
	switch v := r[column].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func (r Row) Text(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Model reads and writes one historical table through plain maps.
type Model struct {
	tx    *gorm.DB
	table *Table
}

func (m *Model) Columns() []string { return m.table.ColumnNames() }

func (m *Model) check(values Row) error {
	for col := range values {
		if _, ok := m.table.Column(col); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, m.table.Name, col)
		}
	}
	return nil
}

func (m *Model) query(ctx context.Context, where Row) (*gorm.DB, error) {
	if err := m.check(where); err != nil {
		return nil, err
	}
	q := m.tx.WithContext(ctx).Table(m.table.Name)
	if len(where) > 0 {
		q = q.Where(map[string]any(where))
	}
	return q, nil
}

// Find returns the rows matching every equality in where, ordered by id.
func (m *Model) Find(ctx context.Context, where Row) ([]Row, error) {
	q, err := m.query(ctx, where)
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	err = q.Select(m.table.ColumnNames()).Order("id").Find(&raw).Error
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(raw))
	for i, r := range raw {
		rows[i] = Row(r)
	}
	return rows, nil
}

func (m *Model) All(ctx context.Context) ([]Row, error) {
	return m.Find(ctx, nil)
}

func (m *Model) First(ctx context.Context, where Row) (Row, error) {
	rows, err := m.Find(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %v", apperror.ErrNotFound, m.table.Name, where)
	}
	return rows[0], nil
}

func (m *Model) Count(ctx context.Context, where Row) (int64, error) {
	q, err := m.query(ctx, where)
	if err != nil {
		return 0, err
	}
	var n int64
	return n, q.Count(&n).Error
}

// Create inserts values and returns the new id.
func (m *Model) Create(ctx context.Context, values Row) (int64, error) {
	if err := m.check(values); err != nil {
		return 0, err
	}
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		args[i] = values[col]
		marks[i] = "?"
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdent(m.table.Name), identList(cols), strings.Join(marks, ", "), quoteIdent("id"))
	if len(cols) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", quoteIdent(m.table.Name), quoteIdent("id"))
	}
	var id int64
	if err := m.tx.WithContext(ctx).Raw(stmt, args...).Scan(&id).Error; err != nil {
		return 0, apperror.FromDB(err)
	}
	return id, nil
}

// Update sets values on the row with the given id.
func (m *Model) Update(ctx context.Context, id int64, values Row) error {
	if err := m.check(values); err != nil {
		return err
	}
	err := m.tx.WithContext(ctx).Table(m.table.Name).Where("id = ?", id).Updates(map[string]any(values)).Error
	return apperror.FromDB(err)
}

// UpdateWhere sets values on every row matching where.
func (m *Model) UpdateWhere(ctx context.Context, where, values Row) (int64, error) {
	if err := m.check(values); err != nil {
		return 0, err
	}
	q, err := m.query(ctx, where)
	if err != nil {
		return 0, err
	}
	if len(where) == 0 {
		q = q.Where("1 = 1")
	}
	res := q.Updates(map[string]any(values))
	return res.RowsAffected, apperror.FromDB(res.Error)
}

// Delete removes the rows matching where. An empty filter is refused.
func (m *Model) Delete(ctx context.Context, where Row) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("delete from %s without a filter", m.table.Name)
	}
	q, err := m.query(ctx, where)
	if err != nil {
		return 0, err
	}
	res := q.Delete(map[string]any{})
	return res.RowsAffected, apperror.FromDB(res.Error)
}

// GetOrCreate returns the id of the row matching lookup, inserting lookup
// merged with defaults when there is none.
func (m *Model) GetOrCreate(ctx context.Context, lookup, defaults Row) (int64, bool, error) {
	rows, err := m.Find(ctx, lookup)
	if err != nil {
		return 0, false, err
	}
	if len(rows) > 0 {
		return rows[0].Int64("id"), false, nil
	}
	values := Row{}
	for k, v := range defaults {
		values[k] = v
	}
	for k, v := range lookup {
		values[k] = v
	}
	id, err := m.Create(ctx, values)
	return id, err == nil, err
}
