// =============================================================================
// DUIMP Flattener - Percentage Aggregation
// =============================================================================
//
// This module distributes 100% over the rows of a batch in proportion to a
// weight column (net weight for the item table).
//
// ALGORITHM:
//   1. total = sum of max(weight, 0) over all rows, null counted as 0
//   2. total == 0 -> nothing is written, the result is marked Skipped
//   3. weight > 0 -> round(weight / total * 100, precision)
//      otherwise   -> null
//
// Decimal arithmetic keeps the rounding stable across platforms.
//
// =============================================================================

package aggregate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// DefaultPrecision is the number of decimal places kept in percentages.
const DefaultPrecision int32 = 8

// Source is the table view the aggregator reads from and writes to.
type Source interface {
	SelectAll(ctx context.Context) ([]types.Row, error)
	UpdateColumn(ctx context.Context, column string, values map[int64]types.Value) (int64, error)
}

// Result describes one aggregation pass.
type Result struct {
	// Total is the sum of the positive weights.
	Total float64

	// Rows is the number of rows read.
	Rows int

	// Updated is the number of rows written.
	Updated int64

	// Sum is the sum of the non-null percentages written.
	Sum float64

	// Skipped is set when the total weight was zero.
	Skipped bool
}

// Percentages computes the percentage of each row's weight. Rows without a
// positive weight map to Null. The boolean result is false when the total
// weight is zero, in which case the map is nil.
func Percentages(rows []types.Row, weightColumn string, precision int32) (map[int64]types.Value, decimal.Decimal, bool) {
	total := decimal.Zero
	weights := make(map[int64]decimal.Decimal, len(rows))

	for _, r := range rows {
		w, ok := r.Get(weightColumn).Float()
		if !ok {
			continue
		}
		d := decimal.NewFromFloat(w)
		weights[r.ID] = d
		if d.IsPositive() {
			total = total.Add(d)
		}
	}

	if total.IsZero() {
		return nil, total, false
	}

	hundred := decimal.NewFromInt(100)
	out := make(map[int64]types.Value, len(rows))
	for _, r := range rows {
		w, ok := weights[r.ID]
		if !ok || !w.IsPositive() {
			out[r.ID] = types.Null()
			continue
		}
		// multiply first so the division carries the full precision
		pct := w.Mul(hundred).DivRound(total, precision+4).Round(precision)
		f, _ := pct.Float64()
		out[r.ID] = types.Real(f)
	}
	return out, total, true
}

// Run performs the two-pass aggregation against src and writes the result
// into percentColumn.
func Run(ctx context.Context, src Source, weightColumn, percentColumn string, precision int32) (Result, error) {
	rows, err := src.SelectAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read weights: %w", err)
	}

	res := Result{Rows: len(rows)}
	values, total, ok := Percentages(rows, weightColumn, precision)
	res.Total, _ = total.Float64()
	if !ok {
		res.Skipped = true
		return res, nil
	}

	for _, v := range values {
		if f, ok := v.Float(); ok {
			res.Sum += f
		}
	}

	res.Updated, err = src.UpdateColumn(ctx, percentColumn, values)
	if err != nil {
		return res, fmt.Errorf("failed to write percentages: %w", err)
	}
	return res, nil
}
