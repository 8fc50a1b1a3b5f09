package validation

import (
	"fmt"

	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// ValidateSemantics performs the graph-level checks JSON Schema cannot
// express:
//
//   - map keys must match the embedded equipment_id / stream_id
//   - equipment inlet/outlet lists must reference registered streams
//   - stream endpoints must reference registered equipment
//   - static per-type configuration checks (range errors become issues)
//   - advisory wiring findings: ultrafiltration without permeate/concentrate
//     ports, streams no equipment references
//
// Missing stream references are errors here even though the solver skips
// them permissively: validation is the surface that catches authoring
// mistakes before a solve quietly ignores them.
func ValidateSemantics(fs *schema.Flowsheet) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if fs == nil {
		result.AddError("/", schema.ErrCodeValidation, "flowsheet is nil")
		return result
	}

	for key, eq := range fs.Equipment {
		path := "/equipment/" + key
		if eq.ID != "" && eq.ID != key {
			result.AddError(path+"/equipment_id", schema.ErrCodeValidation,
				fmt.Sprintf("equipment_id %q does not match its map key %q", eq.ID, key))
		}

		for i, streamID := range eq.InletStreams {
			if _, ok := fs.Streams[streamID]; !ok {
				result.AddError(fmt.Sprintf("%s/inlet_streams/%d", path, i),
					schema.ErrCodeStreamNotFound,
					fmt.Sprintf("references unregistered stream %q", streamID))
			}
		}
		for i, streamID := range eq.OutletStreams {
			if _, ok := fs.Streams[streamID]; !ok {
				result.AddError(fmt.Sprintf("%s/outlet_streams/%d", path, i),
					schema.ErrCodeStreamNotFound,
					fmt.Sprintf("references unregistered stream %q", streamID))
			}
		}

		for _, issue := range units.ValidateConfig(eq.Type, key, eq.Config) {
			result.AddError(path+"/config", issue.Code, issue.Message)
		}

		if eq.Type == schema.EquipmentUltrafiltration {
			checkUFPorts(fs, key, eq, path, result)
		}
	}

	referenced := make(map[string]bool)
	for _, eq := range fs.Equipment {
		for _, id := range eq.InletStreams {
			referenced[id] = true
		}
		for _, id := range eq.OutletStreams {
			referenced[id] = true
		}
	}

	for key, st := range fs.Streams {
		path := "/streams/" + key
		if st.ID != "" && st.ID != key {
			result.AddError(path+"/stream_id", schema.ErrCodeValidation,
				fmt.Sprintf("stream_id %q does not match its map key %q", st.ID, key))
		}
		if st.SourceEquipment != "" {
			if _, ok := fs.Equipment[st.SourceEquipment]; !ok {
				result.AddError(path+"/source_equipment", schema.ErrCodeValidation,
					fmt.Sprintf("references unknown equipment %q", st.SourceEquipment))
			}
		}
		if st.TargetEquipment != "" {
			if _, ok := fs.Equipment[st.TargetEquipment]; !ok {
				result.AddError(path+"/target_equipment", schema.ErrCodeValidation,
					fmt.Sprintf("references unknown equipment %q", st.TargetEquipment))
			}
		}
		if !referenced[key] {
			result.AddWarning(path, schema.ErrCodeValidation,
				"stream is not referenced by any equipment and will not participate in the solve")
		}
	}

	return result
}

// checkUFPorts warns when an ultrafiltration unit's outlet streams carry
// none of the port names its results route through: its permeate and
// concentrate flows would then fall back to generic routing and be lost.
func checkUFPorts(fs *schema.Flowsheet, key string, eq *schema.Equipment, path string, result *schema.ValidationResult) {
	hasPermeate := false
	hasConcentrate := false
	for _, streamID := range eq.OutletStreams {
		st, ok := fs.Streams[streamID]
		if !ok {
			continue
		}
		switch st.SourcePort {
		case "permeate_outlet":
			hasPermeate = true
		case "concentrate_outlet":
			hasConcentrate = true
		}
	}
	if !hasPermeate {
		result.AddWarning(path+"/outlet_streams", schema.ErrCodeValidation,
			fmt.Sprintf("ultrafiltration %q has no outlet stream with source_port \"permeate_outlet\"", key))
	}
	if !hasConcentrate {
		result.AddWarning(path+"/outlet_streams", schema.ErrCodeValidation,
			fmt.Sprintf("ultrafiltration %q has no outlet stream with source_port \"concentrate_outlet\"", key))
	}
}
