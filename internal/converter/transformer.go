// =============================================================================
// DUIMP Flattener - Field Rules
// =============================================================================
//
// Field rules derive or rewrite record fields after extraction. A rule reads
// its source field, runs its actions in order and writes the result to its
// target field.
//
// RULE SEMANTICS:
//   - a rule whose source field is absent from the record does nothing
//   - a null source is read as ""
//   - an empty result computed from a null source stays null
//
// TRANSFORMATION TYPES:
//   - String manipulations (trim, case, prepend, append, replace, regex)
//   - Padding and digit extraction
//   - Lookup tables, with or without a default
//   - CNPJ formatting (XX.XXX.XXX/XXXX-XX)
//
// =============================================================================

package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tiagojmoraes/projeto-duimp/internal/config"
	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// =============================================================================
// TRANSFORMER
// =============================================================================

// Transformer applies a list of field rules to records.
type Transformer struct {
	rules []config.FieldRule
}

// NewTransformer checks the rules and returns a Transformer. Invalid
// regular expressions are reported here rather than per row.
func NewTransformer(rules []config.FieldRule) (*Transformer, error) {
	for _, r := range rules {
		for _, a := range r.Actions {
			if a.Type != "regex_replace" {
				continue
			}
			if _, err := compile(a.Find); err != nil {
				return nil, fmt.Errorf("rule for %s: invalid regex pattern: %w", r.Field, err)
			}
		}
	}
	return &Transformer{rules: rules}, nil
}

// Apply runs every rule against rec in order. Later rules see the output
// of earlier ones.
func (t *Transformer) Apply(rec types.Record) error {
	for _, rule := range t.rules {
		src, ok := rec[rule.SourceField()]
		if !ok {
			continue
		}

		value := src.String()
		for _, action := range rule.Actions {
			var err error
			value, err = ApplyAction(value, action)
			if err != nil {
				return &FieldError{Field: rule.Field, Action: action.Type, Err: err}
			}
		}

		if src.IsNull() && value == "" {
			rec[rule.Field] = types.Null()
			continue
		}
		rec[rule.Field] = types.Text(value)
	}
	return nil
}

// =============================================================================
// ACTIONS
// =============================================================================

// ApplyAction applies a single transformation action to a value.
func ApplyAction(value string, action config.Action) (string, error) {
	switch action.Type {

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case "trim":
		return strings.TrimSpace(value), nil

	case "uppercase":
		return strings.ToUpper(value), nil

	case "lowercase":
		return strings.ToLower(value), nil

	case "prepend_string":
		return action.Value + value, nil

	case "append_string":
		return value + action.Value, nil

	case "replace":
		if action.Find == "" {
			return value, nil
		}
		return strings.ReplaceAll(value, action.Find, action.Value), nil

	case "regex_replace":
		if action.Find == "" {
			return value, nil
		}
		re, err := compile(action.Find)
		if err != nil {
			return "", fmt.Errorf("invalid regex pattern: %w", err)
		}
		return re.ReplaceAllString(value, action.Value), nil

	// =========================================================================
	// NUMERIC FORMATTING
	// =========================================================================

	case "pad_zeros_to_length":
		// "123" with value "8" becomes "00000123"
		n, err := strconv.Atoi(action.Value)
		if err != nil || n <= 0 {
			return value, nil
		}
		return PadLeft(value, n, '0'), nil

	case "extract_digits":
		// "85.090.033/0013-66" becomes "85090033001366"
		return digitsOnly(value), nil

	// =========================================================================
	// LOOKUP TABLES
	// =========================================================================

	case "lookup":
		if replacement, ok := action.LookupTable[value]; ok {
			return replacement, nil
		}
		return value, nil

	case "lookup_with_default":
		if replacement, ok := action.LookupTable[value]; ok {
			return replacement, nil
		}
		return action.Value, nil

	case "if_empty_use_default":
		if strings.TrimSpace(value) == "" {
			return action.Value, nil
		}
		return value, nil

	// =========================================================================
	// DOCUMENT NUMBERS
	// =========================================================================

	case "format_cnpj":
		return FormatCNPJ(value), nil

	default:
		return "", fmt.Errorf("unknown transformation type: %s", action.Type)
	}
}

// FormatCNPJ renders a company registry number as XX.XXX.XXX/XXXX-XX.
// Non-digits are dropped, short numbers are left-padded with zeros and long
// ones keep their last 14 digits. An empty value is returned unchanged.
func FormatCNPJ(value string) string {
	if value == "" {
		return value
	}
	d := digitsOnly(value)
	if len(d) < 14 {
		d = PadLeft(d, 14, '0')
	} else if len(d) > 14 {
		d = d[len(d)-14:]
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// PadLeft pads a string with a character on the left to reach the target length.
func PadLeft(s string, length int, padChar rune) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat(string(padChar), length-len(s)) + s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var regexCache = map[string]*regexp.Regexp{}

// compile caches compiled patterns; batches run on a single goroutine.
func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}
