package flatten

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tiagojmoraes/projeto-duimp/internal/types"
)

// Coerce converts a decoded JSON leaf into a value of the requested kind.
// Values that cannot be represented in that kind become Null.
func Coerce(v any, kind types.Kind) types.Value {
	if v == nil {
		return types.Null()
	}
	switch kind {
	case types.KindText:
		return toText(v)
	case types.KindReal:
		return toReal(v)
	case types.KindInteger:
		return toInteger(v)
	default:
		return types.Null()
	}
}

func toText(v any) types.Value {
	switch t := v.(type) {
	case string:
		return types.Text(t)
	case json.Number:
		return types.Text(t.String())
	case float64:
		return types.Text(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		return types.Text(strconv.FormatBool(t))
	default:
		// objects and lists have no scalar form
		return types.Null()
	}
}

func toReal(v any) types.Value {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return types.Real(f)
		}
	case float64:
		if !math.IsNaN(t) && !math.IsInf(t, 0) {
			return types.Real(t)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return types.Real(f)
		}
	}
	return types.Null()
}

func toInteger(v any) types.Value {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		s = strings.TrimSpace(t)
	default:
		return types.Null()
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.Integer(i)
	}
	// "2.0" style integers
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return types.Integer(int64(f))
	}
	return types.Null()
}
