package solver

import (
	"encoding/json"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// routeOutletStreams maps calculator outputs onto the equipment's declared
// outlet streams by port name, in priority order:
//
//  1. source_port "permeate_outlet"    ← permeate_flow
//  2. source_port "concentrate_outlet" ← concentrate_flow
//  3. source_port "discharge"          ← discharge_flow (+ discharge_pressure)
//  4. any port                         ← outlet_flow
//
// After flow assignment, outlet_pressure and outlet_temperature update the
// stream's pressure and temperature when present. Unmatched streams and
// streams absent from the registry are left unchanged.
func routeOutletStreams(eq *schema.Equipment, result map[string]any, streams map[string]*schema.Stream) {
	for _, streamID := range eq.OutletStreams {
		st, ok := streams[streamID]
		if !ok {
			continue
		}

		switch {
		case st.SourcePort == "permeate_outlet" && hasNumber(result, "permeate_flow"):
			st.FlowRate = numberField(result, "permeate_flow", st.FlowRate)
		case st.SourcePort == "concentrate_outlet" && hasNumber(result, "concentrate_flow"):
			st.FlowRate = numberField(result, "concentrate_flow", st.FlowRate)
		case st.SourcePort == "discharge" && hasNumber(result, "discharge_flow"):
			st.FlowRate = numberField(result, "discharge_flow", st.FlowRate)
			st.Pressure = numberField(result, "discharge_pressure", st.Pressure)
		case hasNumber(result, "outlet_flow"):
			st.FlowRate = numberField(result, "outlet_flow", st.FlowRate)
		}

		st.Pressure = numberField(result, "outlet_pressure", st.Pressure)
		st.Temperature = numberField(result, "outlet_temperature", st.Temperature)
	}
}

// asNumber widens the numeric types a calculator result may carry. Custom
// expression units can yield ints; decoded JSON can yield json.Number.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func hasNumber(result map[string]any, key string) bool {
	v, ok := result[key]
	if !ok {
		return false
	}
	_, ok = asNumber(v)
	return ok
}

func numberField(result map[string]any, key string, fallback float64) float64 {
	if v, ok := result[key]; ok {
		if f, ok := asNumber(v); ok {
			return f
		}
	}
	return fallback
}
