// =============================================================================
// DUIMP Flattener - Table Snapshot
// =============================================================================
//
// This module serializes a whole table into one JSON document:
//
//   {
//     "metadata": {"table_name": "<name>"},
//     "data": [ {<column>: <value>, ...}, ... ]
//   }
//
// OUTPUT RULES:
//   - the snapshot column itself is excluded from every row
//   - keys follow the table's column order
//   - blobs become UTF-8 text, timestamps become RFC 3339 strings
//   - two-space indentation, no HTML escaping
//
// The document is rebuilt from the table on every call, so serializing an
// unchanged table twice gives identical bytes.
//
// =============================================================================

package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// ErrInvalidDocument is returned by Parse for a malformed snapshot.
var ErrInvalidDocument = errors.New("invalid table snapshot")

// Source is the table view a snapshot is built from.
type Source interface {
	Name() string
	SelectAll(ctx context.Context) ([]types.Row, error)
}

// Metadata is the snapshot header.
type Metadata struct {
	TableName string `json:"table_name"`
}

// Document is a decoded snapshot.
type Document struct {
	Metadata Metadata         `json:"metadata"`
	Data     []map[string]any `json:"data"`
}

type document struct {
	Metadata Metadata    `json:"metadata"`
	Data     []types.Row `json:"data"`
}

// Serializer builds table snapshots.
type Serializer struct {
	// Exclude lists the columns left out of every row.
	Exclude []string
}

// New returns a serializer that leaves out the given columns.
func New(exclude ...string) *Serializer {
	return &Serializer{Exclude: exclude}
}

// Snapshot reads every row of src and returns the encoded document.
func (s *Serializer) Snapshot(ctx context.Context, src Source) ([]byte, error) {
	rows, err := src.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src.Name(), err)
	}
	return s.Encode(src.Name(), rows)
}

// Encode builds the document for already loaded rows.
func (s *Serializer) Encode(table string, rows []types.Row) ([]byte, error) {
	doc := document{
		Metadata: Metadata{TableName: table},
		Data:     make([]types.Row, len(rows)),
	}
	for i, r := range rows {
		doc.Data[i] = r.Without(s.Exclude...)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot of %s: %w", table, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Parse decodes a stored snapshot.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Metadata.TableName == "" {
		return nil, fmt.Errorf("%w: missing table name", ErrInvalidDocument)
	}
	if doc.Data == nil {
		doc.Data = []map[string]any{}
	}
	return &doc, nil
}
