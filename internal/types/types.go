// =============================================================================
// DUIMP Flattener - Shared Types
// =============================================================================
//
// This package contains the value types shared by every stage of the batch
// pipeline. Types defined here are used by:
//   - flatten   (builds Records from declaration items)
//   - converter (applies field rules, reports per-row failures)
//   - storage   (writes Records, reads Rows back)
//   - aggregate (reads weights, writes percentages)
//   - snapshot  (serializes Rows)
//   - export    (writes Rows to CSV / XLSX)
//
// VALUE MODEL:
//   Every cell is a tagged Value: the Kind says what the payload is, and
//   KindNull is an explicit null. Records are keyed by canonical column name;
//   Rows keep the column order of the table they were read from.
//
// =============================================================================

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// =============================================================================
// VALUE KINDS
// =============================================================================

// Kind identifies the payload carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindReal
	KindInteger
	KindTime
	KindBlob
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindReal:
		return "real"
	case KindInteger:
		return "integer"
	case KindTime:
		return "time"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// =============================================================================
// VALUE
// =============================================================================

// Value is a tagged, possibly-null cell value.
type Value struct {
	Kind  Kind
	Text  string
	Real  float64
	Int   int64
	Time  time.Time
	Bytes []byte
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// Text returns a text value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Real returns a real value.
func Real(f float64) Value { return Value{Kind: KindReal, Real: f} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{Kind: KindInteger, Int: i} }

// Time returns a timestamp value.
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// Blob returns a binary value.
func Blob(b []byte) Value { return Value{Kind: KindBlob, Bytes: b} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// SQLValue converts the value into something database/sql can bind.
func (v Value) SQLValue() any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindReal:
		return v.Real
	case KindInteger:
		return v.Int
	case KindTime:
		return v.Time
	case KindBlob:
		return v.Bytes
	default:
		return nil
	}
}

// Float returns the numeric payload of a Real or Integer value.
// The second result is false for any other kind.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindReal:
		return v.Real, true
	case KindInteger:
		return float64(v.Int), true
	default:
		return 0, false
	}
}

// String renders the value as plain text. Null renders as "".
//
// FORMATTING:
//   - Real:  shortest representation that round-trips
//   - Time:  RFC 3339 with nanoseconds
//   - Blob:  UTF-8 text with invalid sequences dropped
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindReal:
		return strconv.FormatFloat(v.Real, 'f', -1, 64)
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindBlob:
		return decodeBlob(v.Bytes)
	default:
		return ""
	}
}

// JSONValue returns the value as a JSON-encodable Go value.
// Blob and Time values become strings; Null becomes nil.
func (v Value) JSONValue() any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindReal:
		return v.Real
	case KindInteger:
		return v.Int
	case KindTime, KindBlob:
		return v.String()
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.JSONValue())
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return v.Text == o.Text
	case KindReal:
		return v.Real == o.Real
	case KindInteger:
		return v.Int == o.Int
	case KindTime:
		return v.Time.Equal(o.Time)
	case KindBlob:
		return bytes.Equal(v.Bytes, o.Bytes)
	}
	return false
}

// decodeBlob converts bytes to text, dropping invalid UTF-8 sequences.
func decodeBlob(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "")
}

// =============================================================================
// RECORD
// =============================================================================

// Record is one flattened row keyed by canonical column name.
// A missing key means the field was not present in the source at all;
// a KindNull value means it was present but empty.
type Record map[string]Value

// Get returns the value stored under name, or Null when absent.
func (r Record) Get(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Null()
}

// Has reports whether the record carries a field.
func (r Record) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// =============================================================================
// ROW
// =============================================================================

// Row is one stored table row with its columns in table order.
type Row struct {
	ID      int64
	Columns []string
	Values  []Value
}

// Get returns the value for a column, or Null when the column is unknown.
func (r Row) Get(column string) Value {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i]
		}
	}
	return Null()
}

// Without returns a copy of the row with the named columns removed.
func (r Row) Without(exclude ...string) Row {
	skip := make(map[string]struct{}, len(exclude))
	for _, c := range exclude {
		skip[c] = struct{}{}
	}

	out := Row{ID: r.ID}
	for i, c := range r.Columns {
		if _, ok := skip[c]; ok {
			continue
		}
		out.Columns = append(out.Columns, c)
		out.Values = append(out.Values, r.Values[i])
	}
	return out
}

// MarshalJSON writes the row as a JSON object whose keys follow column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalNoEscape(r.Values[i].JSONValue())
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
