package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// maxSheetName is the sheet name limit imposed by Excel.
const maxSheetName = 31

// WriteXLSX writes the sheet as a single-sheet workbook. The header row is
// bold and frozen.
func (s *Sheet) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	name := SheetName(s.Name)
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return fmt.Errorf("failed to name sheet %s: %w", name, err)
	}

	header := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(name, 1, 1, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = cellValue(v)
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SheetName truncates a table name to the sheet name limit.
func SheetName(table string) string {
	r := []rune(table)
	if len(r) > maxSheetName {
		r = r[:maxSheetName]
	}
	if len(r) == 0 {
		return "Sheet1"
	}
	return string(r)
}

func cellValue(v types.Value) any {
	switch v.Kind {
	case types.KindNull:
		return nil
	case types.KindReal:
		return v.Real
	case types.KindInteger:
		return v.Int
	default:
		return v.String()
	}
}
