// =============================================================================
// DUIMP Flattener - Table Export
// =============================================================================
//
// This module dumps a table to CSV or XLSX for people who open the results
// in a spreadsheet. The header row holds the column names in table order;
// excluded columns (the snapshot column) are left out of every row.
//
// VALUE RENDERING:
//   - CSV:  every value as text, null as an empty field
//   - XLSX: numbers as numeric cells, text as string cells, null as blank
//
// =============================================================================

package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tiagojmoraes/projeto-duimp/internal/schema"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// ErrUnknownFormat is returned for an export format other than csv or xlsx.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an export file format.
type Format string

// Supported formats
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a flag value or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Source is the table view exports read from.
type Source interface {
	Name() string
	Columns() []schema.Column
	SelectAll(ctx context.Context) ([]types.Row, error)
}

// Sheet is a loaded table ready to be written.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]types.Value
}

// Load reads every row of src, leaving out the excluded columns.
func Load(ctx context.Context, src Source, exclude ...string) (*Sheet, error) {
	rows, err := src.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src.Name(), err)
	}

	sheet := &Sheet{Name: src.Name()}
	for _, c := range src.Columns() {
		if !slices.Contains(exclude, c.Name) {
			sheet.Columns = append(sheet.Columns, c.Name)
		}
	}

	sheet.Rows = make([][]types.Value, len(rows))
	for i, r := range rows {
		values := make([]types.Value, len(sheet.Columns))
		for j, name := range sheet.Columns {
			values[j] = r.Get(name)
		}
		sheet.Rows[i] = values
	}
	return sheet, nil
}

// =============================================================================
// CSV
// =============================================================================

// WriteCSV writes the sheet as comma separated values.
func (s *Sheet) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(s.Columns))
	for i, row := range s.Rows {
		for j, v := range row {
			record[j] = v.String()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// Write encodes the sheet in the given format.
func (s *Sheet) Write(w io.Writer, format Format) error {
	switch format {
	case FormatCSV:
		return s.WriteCSV(w)
	case FormatXLSX:
		return s.WriteXLSX(w)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ToFile loads src and writes it to path. It returns the number of data
// rows written.
func ToFile(ctx context.Context, src Source, format Format, path string, exclude ...string) (int, error) {
	sheet, err := Load(ctx, src, exclude...)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := sheet.Write(f, format); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return len(sheet.Rows), nil
}
