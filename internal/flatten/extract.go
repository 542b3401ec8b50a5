// =============================================================================
// DUIMP Flattener - Field Extractor
// =============================================================================
//
// ExtractItem and ExtractHeader turn one decoded document into a flat
// types.Record. Both are pure: they never fail and never touch storage.
//
// PRESENCE RULES:
//   - parent object absent, null or empty  -> column omitted
//   - parent present, leaf missing or null -> column set to Null
//   - leaf present but not coercible       -> column set to Null
//
// =============================================================================

package flatten

import (
	"github.com/tiagojmoraes/projeto-duimp/internal/declaration"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// ExtractItem flattens one line item, including its dynamic tax columns.
func ExtractItem(item declaration.Item) types.Record {
	rec := extractFixed(item.Object, ItemFields)

	if !present(item.Object, "tributos") {
		return rec
	}

	for _, tax := range item.TaxAssessments() {
		tipo := tax.Type()
		if tipo == "" {
			continue
		}
		cols := TaxColumns(tipo)
		rec[cols[0]] = leaf(tax.Object, "valoresBRL", "devido", types.KindReal)
		rec[cols[1]] = leaf(tax.Object, "memoriaCalculo", "baseCalculoBRL", types.KindReal)
		rec[cols[2]] = leaf(tax.Object, "memoriaCalculo", "valorAliquota", types.KindReal)
		if tax.HasRateType() {
			rec[cols[3]] = leaf(tax.Object, "memoriaCalculo", "tipoAliquota", types.KindText)
		}
	}

	return rec
}

// ExtractHeader flattens the declaration header. taxaSiscomex is always
// emitted: the collected amount of the first usage-fee assessment, or Null.
func ExtractHeader(header declaration.Header) types.Record {
	rec := extractFixed(header.Object, HeaderFields)

	rec["taxaSiscomex"] = types.Null()
	for _, tax := range header.TaxAssessments() {
		if tax.Type() == UsageFeeTaxType {
			rec["taxaSiscomex"] = leaf(tax.Object, "valoresBRL", "recolhido", types.KindReal)
			break
		}
	}

	return rec
}

// =============================================================================
// HELPERS
// =============================================================================

func extractFixed(doc declaration.Object, fields []FieldSpec) types.Record {
	rec := make(types.Record, len(fields))
	for _, f := range fields {
		if !present(doc, f.Parent) {
			continue
		}
		if f.Gate != "" && !present(doc, f.Gate) {
			continue
		}
		rec[f.Column] = leaf(doc, f.Parent, f.Key, f.Kind)
	}
	return rec
}

// present reports whether path names a non-empty object.
func present(doc declaration.Object, path string) bool {
	return len(doc.Object(path)) > 0
}

// leaf reads parent.key and coerces it to kind. A missing parent, a missing
// key and a null leaf all give Null.
func leaf(doc declaration.Object, parent, key string, kind types.Kind) types.Value {
	obj := doc.Object(parent)
	if obj == nil {
		return types.Null()
	}
	raw, ok := obj[key]
	if !ok {
		return types.Null()
	}
	return Coerce(raw, kind)
}
