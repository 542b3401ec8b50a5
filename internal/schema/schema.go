// =============================================================================
// DUIMP Flattener - Table Schema
// =============================================================================
//
// This module defines the column sets of the item and header tables and
// derives the dynamic part of the item table from the batch itself.
//
// SCHEMA LIFECYCLE:
//   1. DiscoverTaxTypes scans the whole batch before anything is written
//   2. BuildItemColumns appends four columns per discovered tax type
//   3. The resulting column set is frozen for the rest of the batch
//
// Tax types are emitted in sorted order so the schema does not depend on
// item order.
//
// =============================================================================

package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tiagojmoraes/projeto-duimp/internal/declaration"
	"github.com/tiagojmoraes/projeto-duimp/internal/flatten"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// ErrDuplicateColumn is returned when two column names differ only by case.
var ErrDuplicateColumn = errors.New("duplicate column")

// =============================================================================
// COLUMN
// =============================================================================

// Column describes one table column.
type Column struct {
	// Name is the column identifier, unquoted.
	Name string

	// SQLType is the declared SQLite type (TEXT, REAL, INTEGER, TIMESTAMP, JSON).
	SQLType string

	// Constraint is appended verbatim after the type, e.g. "PRIMARY KEY AUTOINCREMENT".
	Constraint string
}

// Kind returns the value kind stored in the column.
func (c Column) Kind() types.Kind {
	return KindOf(c.SQLType)
}

// Generated reports whether the database fills the column itself.
// Generated columns are never written by inserts.
func (c Column) Generated() bool {
	return strings.Contains(strings.ToUpper(c.Constraint), "PRIMARY KEY") ||
		strings.Contains(strings.ToUpper(c.Constraint), "DEFAULT")
}

// Definition returns the column definition used in CREATE TABLE.
func (c Column) Definition() string {
	def := QuoteIdent(c.Name) + " " + c.SQLType
	if c.Constraint != "" {
		def += " " + c.Constraint
	}
	return def
}

// KindOf maps a declared SQLite type to a value kind.
func KindOf(sqlType string) types.Kind {
	t := strings.ToUpper(sqlType)
	switch {
	case strings.Contains(t, "INT"):
		return types.KindInteger
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"), strings.Contains(t, "NUMERIC"):
		return types.KindReal
	case strings.Contains(t, "TIMESTAMP"), strings.Contains(t, "DATE"):
		return types.KindTime
	case strings.Contains(t, "BLOB"):
		return types.KindBlob
	default:
		return types.KindText
	}
}

// QuoteIdent quotes an SQL identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name is a plain SQL identifier.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

// =============================================================================
// FIXED COLUMNS
// =============================================================================

// Column names shared by both tables.
const (
	ColumnID             = "id"
	ColumnInsertedAt     = "dataInsercao"
	ColumnAddition       = "adicaoNumero"
	ColumnIndexInAdd     = "numeroItemAdicao"
	ColumnGlobalIndex    = "numeroItemDuimp"
	ColumnNetWeight      = "pesoLiquido"
	ColumnWeightPercent  = "pesoPercentual"
	DefaultSnapshotField = "table_json"
)

var idColumns = []Column{
	{Name: ColumnID, SQLType: "INTEGER", Constraint: "PRIMARY KEY AUTOINCREMENT"},
	{Name: ColumnInsertedAt, SQLType: "TIMESTAMP", Constraint: "DEFAULT CURRENT_TIMESTAMP"},
}

// ItemFixedColumns returns the fixed item table columns, snapshot column last.
func ItemFixedColumns(snapshotColumn string) []Column {
	cols := append([]Column{}, idColumns...)
	cols = append(cols,
		Column{Name: "duimpNumero", SQLType: "TEXT"},
		Column{Name: "duimpVersao", SQLType: "INTEGER"},
		Column{Name: "codigoProduto", SQLType: "TEXT"},
		Column{Name: "versaoProduto", SQLType: "TEXT"},
		Column{Name: "ncmProduto", SQLType: "TEXT"},
		Column{Name: "codigoExportador", SQLType: "TEXT"},
		Column{Name: "codigoFornLOGIX", SQLType: "TEXT"},
		Column{Name: "quantidadeItem", SQLType: "REAL"},
		Column{Name: ColumnNetWeight, SQLType: "REAL"},
		Column{Name: ColumnWeightPercent, SQLType: "REAL"},
		Column{Name: "moedaNegociada", SQLType: "TEXT"},
		Column{Name: "valorUnitarioMoedaNegociada", SQLType: "REAL"},
		Column{Name: "descricaoMercadoria", SQLType: "TEXT"},
		Column{Name: "incoterm", SQLType: "TEXT"},
		Column{Name: "valorBRL", SQLType: "REAL"},
		Column{Name: "valorMoedaNegociada", SQLType: "REAL"},
		Column{Name: "freteValorBRL", SQLType: "REAL"},
		Column{Name: "seguroValorBRL", SQLType: "REAL"},
		Column{Name: "numeroROF", SQLType: "TEXT"},
		Column{Name: "valorLocalEmbarqueBRL", SQLType: "REAL"},
		Column{Name: "valorAduaneiroBRL", SQLType: "REAL"},
		Column{Name: ColumnAddition, SQLType: "INTEGER"},
		Column{Name: ColumnIndexInAdd, SQLType: "INTEGER"},
		Column{Name: ColumnGlobalIndex, SQLType: "INTEGER"},
		Column{Name: snapshotColumn, SQLType: "JSON"},
	)
	return cols
}

// HeaderColumns returns the header table columns.
func HeaderColumns(snapshotColumn string) []Column {
	cols := append([]Column{}, idColumns...)
	cols = append(cols,
		Column{Name: "duimpNumero", SQLType: "TEXT"},
		Column{Name: "duimpVersao", SQLType: "TEXT"},
		Column{Name: "dataRegistro", SQLType: "TEXT"},
		Column{Name: "chaveAcesso", SQLType: "TEXT"},
		Column{Name: "cnpjImportador", SQLType: "TEXT"},
		Column{Name: "codFilial", SQLType: "TEXT"},
		Column{Name: "canalParametrizacao", SQLType: "TEXT"},
		Column{Name: "tipoIdentificacaoCarga", SQLType: "TEXT"},
		Column{Name: "cargaIdentificacao", SQLType: "TEXT"},
		Column{Name: "taxaSiscomex", SQLType: "REAL"},
		Column{Name: "dataLibDuimp", SQLType: "TEXT"},
		Column{Name: "pesoBruto", SQLType: "REAL"},
		Column{Name: snapshotColumn, SQLType: "JSON"},
	)
	return cols
}

// =============================================================================
// DYNAMIC COLUMNS
// =============================================================================

// DiscoverTaxTypes returns the sorted distinct non-empty tax type tags
// found across all items.
func DiscoverTaxTypes(items []declaration.Item) []string {
	seen := make(map[string]struct{})
	for _, it := range items {
		for _, tax := range it.TaxAssessments() {
			if t := tax.Type(); t != "" {
				seen[t] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TaxTypeColumns returns the four columns derived from one tax type.
func TaxTypeColumns(taxType string) []Column {
	names := flatten.TaxColumns(taxType)
	return []Column{
		{Name: names[0], SQLType: "REAL"},
		{Name: names[1], SQLType: "REAL"},
		{Name: names[2], SQLType: "REAL"},
		{Name: names[3], SQLType: "TEXT"},
	}
}

// BuildItemColumns returns the full item column set for a batch: the fixed
// columns followed by the tax columns of each type in sorted order.
func BuildItemColumns(snapshotColumn string, taxTypes []string) []Column {
	sorted := append([]string(nil), taxTypes...)
	sort.Strings(sorted)

	cols := ItemFixedColumns(snapshotColumn)
	for _, t := range sorted {
		cols = append(cols, TaxTypeColumns(t)...)
	}
	return cols
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// CheckUnique returns an error when two columns share a name.
func CheckUnique(cols []Column) error {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
