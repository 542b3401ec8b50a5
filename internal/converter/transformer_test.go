package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiagojmoraes/projeto-duimp/internal/config"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

func TestApplyAction(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		action config.Action
		want   string
	}{
		{"trim", "  a b  ", config.Action{Type: "trim"}, "a b"},
		{"uppercase", "kg", config.Action{Type: "uppercase"}, "KG"},
		{"lowercase", "USD", config.Action{Type: "lowercase"}, "usd"},
		{"prepend", "123", config.Action{Type: "prepend_string", Value: "A"}, "A123"},
		{"append", "123", config.Action{Type: "append_string", Value: "X"}, "123X"},
		{"replace", "a-b-c", config.Action{Type: "replace", Find: "-", Value: "."}, "a.b.c"},
		{"replace without find", "abc", config.Action{Type: "replace", Value: "x"}, "abc"},
		{"regex", "NCM 8471.30.12", config.Action{Type: "regex_replace", Find: `\D`, Value: ""}, "84713012"},
		{"pad", "123", config.Action{Type: "pad_zeros_to_length", Value: "8"}, "00000123"},
		{"pad bad length", "123", config.Action{Type: "pad_zeros_to_length", Value: "x"}, "123"},
		{"pad already long", "123456", config.Action{Type: "pad_zeros_to_length", Value: "3"}, "123456"},
		{"digits", "85.090.033/0013-66", config.Action{Type: "extract_digits"}, "85090033001366"},
		{"lookup hit", "01", config.Action{Type: "lookup", LookupTable: map[string]string{"01": "Jan"}}, "Jan"},
		{"lookup miss", "02", config.Action{Type: "lookup", LookupTable: map[string]string{"01": "Jan"}}, "02"},
		{"lookup default hit", "OPE_2", config.Action{Type: "lookup_with_default", Value: "none", LookupTable: map[string]string{"OPE_2": "104629"}}, "104629"},
		{"lookup default miss", "OPE_9", config.Action{Type: "lookup_with_default", Value: "none", LookupTable: map[string]string{"OPE_2": "104629"}}, "none"},
		{"empty default", " ", config.Action{Type: "if_empty_use_default", Value: "N/A"}, "N/A"},
		{"not empty", "x", config.Action{Type: "if_empty_use_default", Value: "N/A"}, "x"},
		{"cnpj", "85090033001366", config.Action{Type: "format_cnpj"}, "85.090.033/0013-66"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyAction(tt.value, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyAction_Unknown(t *testing.T) {
	_, err := ApplyAction("x", config.Action{Type: "ensure_length"})
	assert.Error(t, err)
}

func TestFormatCNPJ(t *testing.T) {
	assert.Equal(t, "", FormatCNPJ(""))
	assert.Equal(t, "00.000.000/0001-23", FormatCNPJ("123"))
	assert.Equal(t, "85.090.033/0013-66", FormatCNPJ("85.090.033/0013-66"))
	assert.Equal(t, "85.090.033/0013-66", FormatCNPJ("9985090033001366"))
}

func TestNewTransformer_BadRegex(t *testing.T) {
	_, err := NewTransformer([]config.FieldRule{{
		Field:   "a",
		Actions: []config.Action{{Type: "regex_replace", Find: "("}},
	}})
	assert.Error(t, err)
}

func TestTransformer_FieldError(t *testing.T) {
	tr, err := NewTransformer([]config.FieldRule{{
		Field:   "b",
		Source:  "a",
		Actions: []config.Action{{Type: "reverse"}},
	}})
	require.NoError(t, err)

	err = tr.Apply(types.Record{"a": types.Text("x")})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "b", fe.Field)
	assert.Equal(t, "reverse", fe.Action)
}

func TestTransformer_DefaultHeaderRules(t *testing.T) {
	tr, err := NewTransformer(config.DefaultHeaderRules())
	require.NoError(t, err)

	rec := types.Record{"cnpjImportador": types.Text("85.090.033/0013-66")}
	require.NoError(t, tr.Apply(rec))
	assert.Equal(t, types.Text("18"), rec["codFilial"])
	assert.Equal(t, types.Text("85.090.033/0013-66"), rec["cnpjImportador"])

	rec = types.Record{"cnpjImportador": types.Text("11222333000181")}
	require.NoError(t, tr.Apply(rec))
	assert.Equal(t, types.Text("Cadastrar Código"), rec["codFilial"])
	assert.Equal(t, types.Text("11.222.333/0001-81"), rec["cnpjImportador"])
}

func TestTransformer_SourceAbsent(t *testing.T) {
	tr, err := NewTransformer(config.DefaultItemRules())
	require.NoError(t, err)

	rec := types.Record{"codigoProduto": types.Text("1")}
	require.NoError(t, tr.Apply(rec))
	assert.False(t, rec.Has("codigoFornLOGIX"))
}

func TestTransformer_NullSource(t *testing.T) {
	tr, err := NewTransformer([]config.FieldRule{
		{Field: "upper", Source: "a", Actions: []config.Action{{Type: "uppercase"}}},
		{Field: "fallback", Source: "a", Actions: []config.Action{{Type: "if_empty_use_default", Value: "N/A"}}},
	})
	require.NoError(t, err)

	rec := types.Record{"a": types.Null()}
	require.NoError(t, tr.Apply(rec))
	assert.True(t, rec["upper"].IsNull())
	assert.Equal(t, types.Text("N/A"), rec["fallback"])
}

func TestTransformer_RulesChain(t *testing.T) {
	tr, err := NewTransformer([]config.FieldRule{
		{Field: "a", Actions: []config.Action{{Type: "trim"}}},
		{Field: "b", Source: "a", Actions: []config.Action{{Type: "append_string", Value: "!"}}},
	})
	require.NoError(t, err)

	rec := types.Record{"a": types.Text("  hi ")}
	require.NoError(t, tr.Apply(rec))
	assert.Equal(t, types.Text("hi!"), rec["b"])
}

func TestErrorCollection(t *testing.T) {
	ec := NewErrorCollection(2)
	assert.False(t, ec.HasErrors())

	for i := 1; i <= 3; i++ {
		ec.Add(RowError{Row: i, Code: ErrCodeInsert, Message: "boom"})
	}
	assert.True(t, ec.HasErrors())
	assert.Equal(t, 2, ec.Count())
	assert.Equal(t, 3, ec.TotalCount())
	assert.True(t, ec.IsTruncated())
	assert.Equal(t, "row 1: boom", ec.Errors()[0].Error())
	assert.Equal(t, "row 4, column 'x': bad", RowError{Row: 4, Column: "x", Message: "bad"}.Error())
}
