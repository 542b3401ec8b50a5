package storage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tiagojmoraes/projeto-duimp/internal/schema"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// Table is a handle to one table with a frozen column set.
type Table struct {
	store    *Store
	name     string
	cols     []schema.Column
	index    map[string]int
	writable []schema.Column
	insert   string
}

func newTable(s *Store, name string, cols []schema.Column) *Table {
	t := &Table{
		store: s,
		name:  name,
		cols:  cols,
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		t.index[c.Name] = i
		if !c.Generated() {
			t.writable = append(t.writable, c)
		}
	}

	names := make([]string, len(t.writable))
	marks := make([]string, len(t.writable))
	for i, c := range t.writable {
		names[i] = schema.QuoteIdent(c.Name)
		marks[i] = "?"
	}
	t.insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.QuoteIdent(name), strings.Join(names, ", "), strings.Join(marks, ", "))
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the table columns in order.
func (t *Table) Columns() []schema.Column {
	return append([]schema.Column(nil), t.cols...)
}

// HasColumn reports whether the table has a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Unknown returns the record fields the table has no column for, sorted
// by name. Insert silently drops them.
func (t *Table) Unknown(rec types.Record) []string {
	var out []string
	for k := range rec {
		if !t.HasColumn(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// WRITES
// =============================================================================

// Insert writes one record over the writable columns and returns its row id.
// Columns missing from the record are written as NULL.
func (t *Table) Insert(ctx context.Context, rec types.Record) (int64, error) {
	args := make([]any, len(t.writable))
	for i, c := range t.writable {
		args[i] = rec.Get(c.Name).SQLValue()
	}

	res, err := t.store.db.ExecContext(ctx, t.insert, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.name, err)
	}
	return id, nil
}

// UpdateColumn sets one column for the given row ids inside a single
// transaction. It returns the number of rows changed.
func (t *Table) UpdateColumn(ctx context.Context, column string, values map[int64]types.Value) (int64, error) {
	if !t.HasColumn(column) {
		return 0, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.name, column)
	}
	if len(values) == 0 {
		return 0, nil
	}

	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE rowid = ?",
		schema.QuoteIdent(t.name), schema.QuoteIdent(column)))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare update of %s.%s: %w", t.name, column, err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]int64, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var changed int64
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, values[id].SQLValue(), id)
		if err != nil {
			return 0, fmt.Errorf("failed to update %s.%s for row %d: %w", t.name, column, id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to update %s.%s for row %d: %w", t.name, column, id, err)
		}
		changed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit update of %s.%s: %w", t.name, column, err)
	}
	return changed, nil
}

// SetSnapshot stores doc in column on every row of the table.
func (t *Table) SetSnapshot(ctx context.Context, column string, doc []byte) (int64, error) {
	if !t.HasColumn(column) {
		return 0, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.name, column)
	}

	res, err := t.store.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ?", schema.QuoteIdent(t.name), schema.QuoteIdent(column)),
		string(doc))
	if err != nil {
		return 0, fmt.Errorf("failed to store snapshot in %s.%s: %w", t.name, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to store snapshot in %s.%s: %w", t.name, column, err)
	}

	t.store.logger.Debug("snapshot stored",
		zap.String("table", t.name),
		zap.Int64("rows", n),
		zap.Int("bytes", len(doc)),
	)
	return n, nil
}

// =============================================================================
// READS
// =============================================================================

// SelectAll returns every row ordered by row id, every column included.
func (t *Table) SelectAll(ctx context.Context) ([]types.Row, error) {
	names := make([]string, len(t.cols))
	quoted := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
		quoted[i] = schema.QuoteIdent(c.Name)
	}

	query := fmt.Sprintf("SELECT rowid, %s FROM %s ORDER BY rowid",
		strings.Join(quoted, ", "), schema.QuoteIdent(t.name))
	rows, err := t.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Row
	for rows.Next() {
		raw := make([]any, len(t.cols)+1)
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", t.name, err)
		}

		row := types.Row{Columns: names, Values: make([]types.Value, len(t.cols))}
		if id, ok := raw[0].(int64); ok {
			row.ID = id
		}
		for i := range t.cols {
			row.Values[i] = fromSQL(raw[i+1])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", t.name, err)
	}
	return out, nil
}

// Count returns the number of rows in the table.
func (t *Table) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.QuoteIdent(t.name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", t.name, err)
	}
	return n, nil
}

// Stats summarises an item table.
type Stats struct {
	Rows                 int64
	TotalValueBRL        float64
	TotalCustomsValueBRL float64
	Additions            int64
	MaxItemsPerAddition  int64
}

// Stats computes the item table summary. The table must carry the item
// value, customs value and addition columns.
func (t *Table) Stats(ctx context.Context) (Stats, error) {
	for _, c := range []string{"valorBRL", "valorAduaneiroBRL", schema.ColumnAddition, schema.ColumnIndexInAdd} {
		if !t.HasColumn(c) {
			return Stats{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.name, c)
		}
	}

	var (
		st            Stats
		value, custom sql.NullFloat64
		maxItems      sql.NullInt64
	)
	query := fmt.Sprintf(`SELECT COUNT(*), SUM("valorBRL"), SUM("valorAduaneiroBRL"),
		COUNT(DISTINCT %s), MAX(%s) FROM %s`,
		schema.QuoteIdent(schema.ColumnAddition), schema.QuoteIdent(schema.ColumnIndexInAdd), schema.QuoteIdent(t.name))

	err := t.store.db.QueryRowContext(ctx, query).Scan(&st.Rows, &value, &custom, &st.Additions, &maxItems)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats of %s: %w", t.name, err)
	}
	st.TotalValueBRL = value.Float64
	st.TotalCustomsValueBRL = custom.Float64
	st.MaxItemsPerAddition = maxItems.Int64
	return st, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

// fromSQL converts a driver value into a tagged value.
func fromSQL(v any) types.Value {
	switch t := v.(type) {
	case nil:
		return types.Null()
	case int64:
		return types.Integer(t)
	case float64:
		return types.Real(t)
	case bool:
		if t {
			return types.Integer(1)
		}
		return types.Integer(0)
	case string:
		return types.Text(t)
	case []byte:
		return types.Blob(append([]byte(nil), t...))
	case time.Time:
		return types.Time(t)
	default:
		return types.Text(fmt.Sprint(t))
	}
}
