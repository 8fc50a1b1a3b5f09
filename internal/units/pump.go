package units

import (
	"context"
	"math"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// Pump is a centrifugal pump: discharge flow equals the summed inlet,
// discharge pressure comes from the configuration, and power consumption
// follows the standard hydraulic power formula P = ρ·g·Q·H/η.
type Pump struct{}

func (Pump) Type() schema.EquipmentType {
	return schema.EquipmentPump
}

func (Pump) Compute(_ context.Context, in Inputs) *schema.CalcResult {
	efficiency := floatParam(in.Params, "efficiency", 0.75)
	dischargePressure := floatParam(in.Params, "discharge_pressure", 3.0)

	return schema.Succeeded(map[string]any{
		"discharge_flow":     in.InletFlow,
		"discharge_pressure": dischargePressure,
		"power_consumption":  pumpPower(in.InletFlow, dischargePressure, efficiency),
	})
}

// pumpPower computes power consumption (kW) for the given flow (m³/h) and
// head (bar).
func pumpPower(flowRate, head, efficiency float64) float64 {
	flowM3s := flowRate / 3600
	headM := head * barToMeters

	powerKW := (waterDensityRef * gravity * flowM3s * headM) / (efficiency * 1000)
	return math.Max(powerKW, 0.0)
}

var _ Unit = Pump{}
