package units

import (
	"encoding/json"
	"math"
)

// floatParam reads a numeric parameter from a merged input map, accepting
// the numeric types a decoded JSON document or programmatic caller can
// produce. Returns def when the key is absent or not numeric.
func floatParam(m map[string]any, key string, def float64) float64 {
	v, ok := floatParamOK(m, key)
	if !ok {
		return def
	}
	return v
}

// floatParamOK is floatParam with an explicit presence flag.
func floatParamOK(m map[string]any, key string) (float64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// stringParam reads a string parameter, returning def when absent or not a string.
func stringParam(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// decodeParams fills out (a struct pre-populated with defaults) from the
// parameter map via a JSON round trip, so partially specified nested
// objects keep their default fields.
func decodeParams(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// roundTo rounds v to the given number of decimal places, matching the
// presentation precision of the calculation results.
func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
