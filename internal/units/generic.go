package units

import (
	"context"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// Generic is the pass-through calculator used for any equipment type
// without a dedicated model: outlet equals the summed inlet.
type Generic struct{}

func (Generic) Type() schema.EquipmentType {
	return schema.EquipmentGeneric
}

func (Generic) Compute(_ context.Context, in Inputs) *schema.CalcResult {
	return schema.Succeeded(map[string]any{
		"outlet_flow":        in.InletFlow,
		"outlet_pressure":    floatParam(in.Params, "pressure", 1.0),
		"outlet_temperature": floatParam(in.Params, "temperature", 25.0),
	})
}

var _ Unit = Generic{}
