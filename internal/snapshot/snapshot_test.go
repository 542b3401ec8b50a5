package snapshot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiagojmoraes/projeto-duimp/internal/schema"
	"github.com/tiagojmoraes/projeto-duimp/internal/storage"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

type staticSource struct {
	name string
	rows []types.Row
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) SelectAll(context.Context) ([]types.Row, error) { return s.rows, nil }

func TestSnapshot_Format(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	src := staticSource{name: "itens_data", rows: []types.Row{{
		ID:      1,
		Columns: []string{"id", "dataInsercao", "descricao", "raw", "table_json"},
		Values: []types.Value{
			types.Integer(1), types.Time(ts), types.Text("Ação <A&B>"), types.Blob([]byte("bytes")), types.Text("old"),
		},
	}}}

	out, err := New("table_json").Snapshot(context.Background(), src)
	require.NoError(t, err)

	want := `{
  "metadata": {
    "table_name": "itens_data"
  },
  "data": [
    {
      "id": 1,
      "dataInsercao": "2024-05-01T10:00:00Z",
      "descricao": "Ação <A&B>",
      "raw": "bytes"
    }
  ]
}`
	assert.Equal(t, want, string(out))
}

func TestSnapshot_EmptyTable(t *testing.T) {
	out, err := New("table_json").Snapshot(context.Background(), staticSource{name: "t"})
	require.NoError(t, err)

	doc, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "t", doc.Metadata.TableName)
	assert.Empty(t, doc.Data)
	assert.Contains(t, string(out), `"data": []`)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Parse([]byte(`{"data": []}`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestSnapshot_RoundTripAgainstStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(filepath.Join(t.TempDir(), "snap.db"), nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	table, err := store.CreateTable(ctx, "itens_data", schema.BuildItemColumns("table_json", []string{"II"}), true)
	require.NoError(t, err)

	for _, rec := range []types.Record{
		{"ncmProduto": types.Text("8471"), "pesoLiquido": types.Real(10), "II_devido": types.Real(1.5)},
		{"ncmProduto": types.Text("8471"), "pesoLiquido": types.Real(30), "II_tipoAliquota": types.Text("AD_VALOREM")},
	} {
		_, err := table.Insert(ctx, rec)
		require.NoError(t, err)
	}

	ser := New("table_json")
	first, err := ser.Snapshot(ctx, table)
	require.NoError(t, err)

	_, err = table.SetSnapshot(ctx, "table_json", first)
	require.NoError(t, err)

	second, err := ser.Snapshot(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second), "snapshot must not depend on the stored snapshot")

	doc, err := Parse(second)
	require.NoError(t, err)
	rows, err := table.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Data, len(rows))

	for i, row := range rows {
		got := doc.Data[i]
		assert.NotContains(t, got, "table_json")
		assert.Len(t, got, len(row.Columns)-1)

		for j, col := range row.Columns {
			if col == "table_json" {
				continue
			}
			want, err := json.Marshal(row.Values[j])
			require.NoError(t, err)
			have, err := json.Marshal(got[col])
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(have), "column %s", col)
		}
	}
}
