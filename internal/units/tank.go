package units

import (
	"context"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// Tank is a storage vessel: outlet equals the summed inlet, pressure and
// temperature pass through from the configured defaults.
type Tank struct{}

func (Tank) Type() schema.EquipmentType {
	return schema.EquipmentTank
}

func (Tank) Compute(_ context.Context, in Inputs) *schema.CalcResult {
	data := map[string]any{
		"outlet_flow":        in.InletFlow,
		"outlet_pressure":    floatParam(in.Params, "pressure", 1.0),
		"outlet_temperature": floatParam(in.Params, "temperature", 25.0),
	}

	// Residence time is reported when the vessel volume is known.
	if volume, ok := floatParamOK(in.Params, "volume"); ok && volume > 0 && in.InletFlow > 0 {
		data["residence_time"] = roundTo(volume/in.InletFlow*60, 1) // min
	}

	return schema.Succeeded(data)
}

var _ Unit = Tank{}
