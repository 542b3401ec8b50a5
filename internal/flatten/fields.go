// =============================================================================
// DUIMP Flattener - Field Tables
// =============================================================================
//
// The field tables map nested declaration paths to flat column names. Each
// entry names:
//   - Column: the canonical column the value is written to
//   - Parent: the nested object that must be present for the column to exist
//   - Key:    the leaf key inside Parent
//   - Kind:   the value kind the leaf is coerced to
//   - Gate:   an optional second object that must also be present
//
// A column is emitted only when Parent (and Gate, if set) is a non-empty
// object. When it is, a missing or null leaf yields a null value.
//
// =============================================================================

package flatten

import "github.com/tiagojmoraes/projeto-duimp/internal/types"

// FieldSpec describes one fixed column extracted from a nested document.
type FieldSpec struct {
	Column string
	Parent string
	Key    string
	Kind   types.Kind
	Gate   string
}

// =============================================================================
// ITEM FIELDS
// =============================================================================

// ItemFields lists the fixed item columns in extraction order.
var ItemFields = []FieldSpec{
	// Identification
	{Column: "duimpNumero", Parent: "identificacao", Key: "numero", Kind: types.KindText},
	{Column: "duimpVersao", Parent: "identificacao", Key: "versao", Kind: types.KindInteger},

	// Product
	{Column: "codigoProduto", Parent: "produto", Key: "codigo", Kind: types.KindText},
	{Column: "versaoProduto", Parent: "produto", Key: "versao", Kind: types.KindText},
	{Column: "ncmProduto", Parent: "produto", Key: "ncm", Kind: types.KindText},

	// Exporter
	{Column: "codigoExportador", Parent: "exportador", Key: "codigo", Kind: types.KindText},

	// Goods
	{Column: "quantidadeItem", Parent: "mercadoria", Key: "quantidadeComercial", Kind: types.KindReal},
	{Column: "pesoLiquido", Parent: "mercadoria", Key: "pesoLiquido", Kind: types.KindReal},
	{Column: "descricaoMercadoria", Parent: "mercadoria", Key: "descricao", Kind: types.KindText},
	{Column: "moedaNegociada", Parent: "mercadoria.moedaNegociada", Key: "codigo", Kind: types.KindText},
	{Column: "valorUnitarioMoedaNegociada", Parent: "mercadoria", Key: "valorUnitarioMoedaNegociada", Kind: types.KindReal, Gate: "mercadoria.moedaNegociada"},

	// Sale condition
	{Column: "valorBRL", Parent: "condicaoVenda", Key: "valorBRL", Kind: types.KindReal},
	{Column: "valorMoedaNegociada", Parent: "condicaoVenda", Key: "valorMoedaNegociada", Kind: types.KindReal},
	{Column: "incoterm", Parent: "condicaoVenda.incoterm", Key: "codigo", Kind: types.KindText},
	{Column: "freteValorBRL", Parent: "condicaoVenda.frete", Key: "valorBRL", Kind: types.KindReal},
	{Column: "seguroValorBRL", Parent: "condicaoVenda.seguro", Key: "valorBRL", Kind: types.KindReal},

	// Exchange
	{Column: "numeroROF", Parent: "dadosCambiais", Key: "numeroROF", Kind: types.KindText},

	// Customs values
	{Column: "valorLocalEmbarqueBRL", Parent: "tributos.mercadoria", Key: "valorLocalEmbarqueBRL", Kind: types.KindReal},
	{Column: "valorAduaneiroBRL", Parent: "tributos.mercadoria", Key: "valorAduaneiroBRL", Kind: types.KindReal},
}

// =============================================================================
// HEADER FIELDS
// =============================================================================

// HeaderFields lists the fixed header columns in extraction order.
var HeaderFields = []FieldSpec{
	{Column: "duimpNumero", Parent: "identificacao", Key: "numero", Kind: types.KindText},
	{Column: "duimpVersao", Parent: "identificacao", Key: "versao", Kind: types.KindText},
	{Column: "dataRegistro", Parent: "identificacao", Key: "dataRegistro", Kind: types.KindText},
	{Column: "chaveAcesso", Parent: "identificacao", Key: "chaveAcesso", Kind: types.KindText},
	{Column: "cnpjImportador", Parent: "identificacao.importador", Key: "ni", Kind: types.KindText},
	{Column: "canalParametrizacao", Parent: "resultadoAnaliseRisco", Key: "canalConsolidado", Kind: types.KindText},
	{Column: "tipoIdentificacaoCarga", Parent: "carga", Key: "tipoIdentificacaoCarga", Kind: types.KindText},
	{Column: "cargaIdentificacao", Parent: "carga", Key: "identificacao", Kind: types.KindText},
}

// =============================================================================
// TAX COLUMN SUFFIXES
// =============================================================================

const (
	SuffixAmountDue       = "_devido"
	SuffixCalculationBase = "_baseCalculoBRL"
	SuffixAppliedRate     = "_valorAliquota"
	SuffixRateType        = "_tipoAliquota"
)

// TaxColumns returns the four column names derived from a tax type.
func TaxColumns(taxType string) [4]string {
	return [4]string{
		taxType + SuffixAmountDue,
		taxType + SuffixCalculationBase,
		taxType + SuffixAppliedRate,
		taxType + SuffixRateType,
	}
}

// UsageFeeTaxType is the tax type whose collected amount is reported as the
// header's taxaSiscomex.
const UsageFeeTaxType = "TAXA_UTILIZACAO"
