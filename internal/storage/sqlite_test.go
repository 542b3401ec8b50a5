package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tiagojmoraes/projeto-duimp/internal/schema"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "db", "duimp.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testColumns() []schema.Column {
	return []schema.Column{
		{Name: "id", SQLType: "INTEGER", Constraint: "PRIMARY KEY AUTOINCREMENT"},
		{Name: "dataInsercao", SQLType: "TIMESTAMP", Constraint: "DEFAULT CURRENT_TIMESTAMP"},
		{Name: "nome", SQLType: "TEXT"},
		{Name: "peso", SQLType: "REAL"},
		{Name: "ordem", SQLType: "INTEGER"},
		{Name: "II_tipoAliquota", SQLType: "TEXT"},
		{Name: "table_json", SQLType: "JSON"},
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(" ", nil)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestCreateTable_InsertAndSelect(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	table, err := store.CreateTable(ctx, "itens_data", testColumns(), true)
	require.NoError(t, err)
	assert.Equal(t, schema.Names(testColumns()), schema.Names(table.Columns()))

	id1, err := table.Insert(ctx, types.Record{"nome": types.Text("a"), "peso": types.Real(1.5), "ordem": types.Integer(1)})
	require.NoError(t, err)
	id2, err := table.Insert(ctx, types.Record{"nome": types.Text("b"), "extra": types.Text("dropped")})
	require.NoError(t, err)
	assert.Less(t, id1, id2)

	rows, err := table.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, id1, rows[0].ID)
	assert.Equal(t, types.Integer(id1), rows[0].Get("id"))
	assert.Equal(t, types.Text("a"), rows[0].Get("nome"))
	assert.Equal(t, types.Real(1.5), rows[0].Get("peso"))
	assert.Equal(t, types.Integer(1), rows[0].Get("ordem"))
	assert.Equal(t, types.KindTime, rows[0].Get("dataInsercao").Kind)

	assert.True(t, rows[1].Get("peso").IsNull())
	assert.True(t, rows[1].Get("II_tipoAliquota").IsNull())

	n, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCreateTable_ReplaceDropsRows(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	table, err := store.CreateTable(ctx, "t", testColumns(), true)
	require.NoError(t, err)
	_, err = table.Insert(ctx, types.Record{"nome": types.Text("a")})
	require.NoError(t, err)

	table, err = store.CreateTable(ctx, "t", testColumns()[:3], true)
	require.NoError(t, err)
	n, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, table.HasColumn("peso"))
}

func TestCreateTable_KeepExistingSchema(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	_, err := store.CreateTable(ctx, "t", testColumns()[:3], true)
	require.NoError(t, err)

	table, err := store.CreateTable(ctx, "t", testColumns(), false)
	require.NoError(t, err)
	assert.False(t, table.HasColumn("peso"))
	assert.Equal(t, []string{"peso"}, table.Unknown(types.Record{"nome": types.Null(), "peso": types.Real(1)}))
}

func TestCreateTable_DuplicateColumns(t *testing.T) {
	store := createTestStore(t)
	cols := append(testColumns(), schema.Column{Name: "NOME", SQLType: "TEXT"})
	_, err := store.CreateTable(context.Background(), "t", cols, true)
	assert.ErrorIs(t, err, schema.ErrDuplicateColumn)
}

func TestConstraintColumn(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)
	cols := testColumns()
	cols[2].Constraint = "NOT NULL"
	table, err := store.CreateTable(ctx, "t", cols, true)
	require.NoError(t, err)

	_, err = table.Insert(ctx, types.Record{"peso": types.Real(1)})
	require.Error(t, err)
	assert.Equal(t, "nome", ConstraintColumn(err))

	assert.Empty(t, ConstraintColumn(errors.New("nome")))
	assert.Empty(t, ConstraintColumn(nil))
}

func TestOpenTable(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	_, err := store.OpenTable(ctx, "missing")
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = store.CreateTable(ctx, "t", testColumns(), true)
	require.NoError(t, err)

	table, err := store.OpenTable(ctx, "t")
	require.NoError(t, err)
	cols := table.Columns()
	assert.True(t, cols[0].Generated())
	assert.True(t, cols[1].Generated())
	assert.False(t, cols[2].Generated())

	exists, err := store.TableExists(ctx, "t")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdateColumnAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)
	table, err := store.CreateTable(ctx, "t", testColumns(), true)
	require.NoError(t, err)

	id1, err := table.Insert(ctx, types.Record{"nome": types.Text("a")})
	require.NoError(t, err)
	id2, err := table.Insert(ctx, types.Record{"nome": types.Text("b")})
	require.NoError(t, err)

	changed, err := table.UpdateColumn(ctx, "peso", map[int64]types.Value{id1: types.Real(25), id2: types.Null()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	_, err = table.UpdateColumn(ctx, "nope", map[int64]types.Value{id1: types.Real(1)})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	n, err := table.SetSnapshot(ctx, "table_json", []byte(`{"data":[]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := table.SelectAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Real(25), rows[0].Get("peso"))
	assert.True(t, rows[1].Get("peso").IsNull())
	assert.Equal(t, types.Text(`{"data":[]}`), rows[1].Get("table_json"))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)
	table, err := store.CreateTable(ctx, "itens", schema.ItemFixedColumns("table_json"), true)
	require.NoError(t, err)

	recs := []types.Record{
		{"valorBRL": types.Real(10), "valorAduaneiroBRL": types.Real(12), "adicaoNumero": types.Integer(1), "numeroItemAdicao": types.Integer(1)},
		{"valorBRL": types.Real(5), "valorAduaneiroBRL": types.Real(6), "adicaoNumero": types.Integer(1), "numeroItemAdicao": types.Integer(2)},
		{"valorBRL": types.Real(1), "adicaoNumero": types.Integer(2), "numeroItemAdicao": types.Integer(1)},
	}
	for _, r := range recs {
		_, err := table.Insert(ctx, r)
		require.NoError(t, err)
	}

	st, err := table.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Rows)
	assert.InDelta(t, 16.0, st.TotalValueBRL, 1e-9)
	assert.InDelta(t, 18.0, st.TotalCustomsValueBRL, 1e-9)
	assert.Equal(t, int64(2), st.Additions)
	assert.Equal(t, int64(2), st.MaxItemsPerAddition)

	other, err := store.CreateTable(ctx, "other", testColumns(), true)
	require.NoError(t, err)
	_, err = other.Stats(ctx)
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestInsert_DriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, nil)
	table := newTable(store, "t", testColumns())

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "t" ("nome", "peso", "ordem", "II_tipoAliquota", "table_json") VALUES (?, ?, ?, ?, ?)`)).
		WithArgs("a", nil, nil, nil, nil).
		WillReturnError(errors.New("disk I/O error"))

	_, err = table.Insert(context.Background(), types.Record{"nome": types.Text("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateColumn_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	table := newTable(New(db, nil), "t", testColumns())

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(`UPDATE "t" SET "peso" = ? WHERE rowid = ?`))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "t" SET "peso" = ? WHERE rowid = ?`)).
		WithArgs(1.0, int64(1)).
		WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	_, err = table.UpdateColumn(context.Background(), "peso", map[int64]types.Value{1: types.Real(1)})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
