// =============================================================================
// DUIMP Flattener - Declaration Documents
// =============================================================================
//
// This package decodes the nested JSON documents returned by the declaration
// service and exposes read-only views over them:
//   - Item:          one entry of the items list
//   - Header:        the declaration header document
//   - TaxAssessment: one entry of tributos.tributosCalculados
//
// Numbers are decoded as json.Number so that integer identifiers and decimal
// amounts keep their original text until the flattener coerces them.
//
// =============================================================================

package declaration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDecode is returned when the input is not valid JSON.
	ErrDecode = errors.New("invalid declaration document")

	// ErrNotAList is returned when the items document is not a JSON array.
	ErrNotAList = errors.New("items document is not a list")

	// ErrNotAnObject is returned when an item or the header is not a JSON object.
	ErrNotAnObject = errors.New("declaration entry is not an object")
)

// =============================================================================
// OBJECT
// =============================================================================

// Object is a decoded JSON object.
type Object map[string]any

// Lookup walks a dotted path and returns the value found there.
// The second result is false when any segment is missing or a
// non-object is met before the last segment.
func (o Object) Lookup(path string) (any, bool) {
	if o == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(o)
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Object returns the nested object at path, or nil when it is absent,
// null or not an object.
func (o Object) Object(path string) Object {
	v, ok := o.Lookup(path)
	if !ok {
		return nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	return Object(m)
}

// Has reports whether the nested object at path exists.
func (o Object) Has(path string) bool {
	return o.Object(path) != nil
}

// String returns the value at path as a string when it is one.
func (o Object) String(path string) (string, bool) {
	v, ok := o.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// List returns the array at path, or nil.
func (o Object) List(path string) []any {
	v, ok := o.Lookup(path)
	if !ok {
		return nil
	}
	l, _ := v.([]any)
	return l
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Object:
		return m, true
	default:
		return nil, false
	}
}

// =============================================================================
// ITEM
// =============================================================================

// Item is one declaration line item.
type Item struct {
	Object
}

// ClassificationCode returns produto.ncm in the text form it is stored
// under, or nil when it is missing, null or not a scalar.
func (it Item) ClassificationCode() *string {
	v, ok := it.Lookup("produto.ncm")
	if !ok {
		return nil
	}
	var s string
	switch c := v.(type) {
	case string:
		s = c
	case json.Number:
		s = c.String()
	case bool:
		s = strconv.FormatBool(c)
	default:
		return nil
	}
	return &s
}

// TaxAssessments returns the entries of tributos.tributosCalculados that
// are objects. Entries of any other shape are skipped.
func (it Item) TaxAssessments() []TaxAssessment {
	return taxAssessments(it.Object)
}

// =============================================================================
// HEADER
// =============================================================================

// Header is the declaration header document.
type Header struct {
	Object
}

// TaxAssessments returns the header level tax assessments.
func (h Header) TaxAssessments() []TaxAssessment {
	return taxAssessments(h.Object)
}

// =============================================================================
// TAX ASSESSMENT
// =============================================================================

// TaxAssessment is one computed tax of an item or header.
type TaxAssessment struct {
	Object
}

// Type returns the tax type tag ("" when missing or not a string).
func (t TaxAssessment) Type() string {
	s, _ := t.String("tipo")
	return s
}

// HasRateType reports whether the calculation memo carries the
// tipoAliquota key, regardless of its value.
func (t TaxAssessment) HasRateType() bool {
	memo := t.Object.Object("memoriaCalculo")
	if memo == nil {
		return false
	}
	_, ok := memo["tipoAliquota"]
	return ok
}

func taxAssessments(o Object) []TaxAssessment {
	var out []TaxAssessment
	for _, e := range o.List("tributos.tributosCalculados") {
		m, ok := asMap(e)
		if !ok {
			continue
		}
		out = append(out, TaxAssessment{Object: Object(m)})
	}
	return out
}

// =============================================================================
// DECODING
// =============================================================================

// DecodeItems reads a JSON array of item objects.
//
// ERRORS:
//   - ErrDecode      when the input is not valid JSON
//   - ErrNotAList    when the top-level value is not an array
//   - ErrNotAnObject when an element is not an object (index reported)
func DecodeItems(r io.Reader) ([]Item, error) {
	doc, err := decode(r)
	if err != nil {
		return nil, err
	}

	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNotAList, jsonKind(doc))
	}

	items := make([]Item, 0, len(list))
	for i, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %s", ErrNotAnObject, i+1, jsonKind(e))
		}
		items = append(items, Item{Object: Object(m)})
	}
	return items, nil
}

// DecodeHeader reads a single header object.
func DecodeHeader(r io.Reader) (Header, error) {
	doc, err := decode(r)
	if err != nil {
		return Header{}, err
	}

	m, ok := doc.(map[string]any)
	if !ok {
		return Header{}, fmt.Errorf("%w: header is %s", ErrNotAnObject, jsonKind(doc))
	}
	return Header{Object: Object(m)}, nil
}

func decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%w: unexpected data after the top-level value", ErrDecode)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return doc, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
