package schema

// FieldSpec describes one input or output field of an equipment type,
// including the engineering range the UI should enforce.
type FieldSpec struct {
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"` // float | select
	Unit    string   `json:"unit,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Options []string `json:"options,omitempty"`
}

// CatalogEntry describes an equipment type for presentation layers.
type CatalogEntry struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Inputs      []FieldSpec `json:"inputs"`
	Outputs     []FieldSpec `json:"outputs"`
}

func fptr(v float64) *float64 { return &v }

// EquipmentCatalog returns the catalog of supported equipment types with
// their configuration ranges. The ranges are advisory: the calculators
// enforce only the checks that carry engineering error codes.
func EquipmentCatalog() map[EquipmentType]CatalogEntry {
	return map[EquipmentType]CatalogEntry{
		EquipmentFeedTank: {
			Name:        "Feed Tank",
			Description: "Water source characterization tank",
			Inputs: []FieldSpec{
				{Name: "volume", Type: "float", Unit: "m³", Min: fptr(1), Max: fptr(50000)},
				{Name: "height", Type: "float", Unit: "m", Min: fptr(1), Max: fptr(50)},
				{Name: "level", Type: "float", Unit: "%", Min: fptr(0), Max: fptr(100)},
				{Name: "inflow_rate", Type: "float", Unit: "m³/h", Min: fptr(0), Max: fptr(10000)},
				{Name: "temperature", Type: "float", Unit: "°C", Min: fptr(0), Max: fptr(50)},
				{Name: "source_type", Type: "select", Options: []string{"surface_water", "groundwater", "municipal", "industrial"}},
				{Name: "turbidity", Type: "float", Unit: "NTU", Min: fptr(0), Max: fptr(200)},
				{Name: "tss", Type: "float", Unit: "mg/L", Min: fptr(0), Max: fptr(1000)},
				{Name: "tds", Type: "float", Unit: "mg/L", Min: fptr(0), Max: fptr(5000)},
				{Name: "ph", Type: "float", Unit: "units", Min: fptr(4), Max: fptr(11)},
				{Name: "hardness", Type: "float", Unit: "mg/L CaCO₃", Min: fptr(0), Max: fptr(1000)},
				{Name: "iron", Type: "float", Unit: "mg/L", Min: fptr(0), Max: fptr(10)},
				{Name: "cod", Type: "float", Unit: "mg/L", Min: fptr(0), Max: fptr(1000)},
			},
			Outputs: []FieldSpec{
				{Name: "outlet_flow", Unit: "m³/h"},
				{Name: "residence_time", Unit: "hours"},
				{Name: "treatment_difficulty", Unit: "rating"},
				{Name: "sdi_estimate", Unit: "index"},
				{Name: "fouling_potential", Unit: "rating"},
				{Name: "recommended_pretreatment", Unit: "list"},
			},
		},
		EquipmentUltrafiltration: {
			Name:        "Ultrafiltration",
			Description: "Membrane filtration system",
			Inputs: []FieldSpec{
				{Name: "membrane_area", Type: "float", Unit: "m²", Min: fptr(1), Max: fptr(10000)},
				{Name: "transmembrane_pressure", Type: "float", Unit: "bar", Min: fptr(0.1), Max: fptr(3.0)},
				{Name: "temperature", Type: "float", Unit: "°C", Min: fptr(5), Max: fptr(60)},
				{Name: "feed_concentration", Type: "float", Unit: "g/L", Min: fptr(0), Max: fptr(10)},
				{Name: "crossflow_velocity", Type: "float", Unit: "m/s", Min: fptr(0.5), Max: fptr(5.0)},
				{Name: "membrane_type", Type: "select", Options: []string{"PVDF", "PTFE"}},
			},
			Outputs: []FieldSpec{
				{Name: "permeate_flow", Unit: "m³/h"},
				{Name: "concentrate_flow", Unit: "m³/h"},
				{Name: "recovery", Unit: "%"},
				{Name: "flux", Unit: "L/m²/h"},
				{Name: "energy_consumption", Unit: "kWh/m³"},
			},
		},
		EquipmentTank: {
			Name:        "Storage Tank",
			Description: "Water storage vessel",
			Inputs: []FieldSpec{
				{Name: "volume", Type: "float", Unit: "m³", Min: fptr(0.1), Max: fptr(10000)},
				{Name: "height", Type: "float", Unit: "m", Min: fptr(0.5), Max: fptr(20)},
			},
			Outputs: []FieldSpec{
				{Name: "outlet_flow", Unit: "m³/h"},
				{Name: "residence_time", Unit: "min"},
			},
		},
		EquipmentPump: {
			Name:        "Centrifugal Pump",
			Description: "Water circulation pump",
			Inputs: []FieldSpec{
				{Name: "discharge_pressure", Type: "float", Unit: "bar", Min: fptr(1), Max: fptr(20)},
				{Name: "efficiency", Type: "float", Unit: "-", Min: fptr(0.5), Max: fptr(0.9)},
			},
			Outputs: []FieldSpec{
				{Name: "discharge_flow", Unit: "m³/h"},
				{Name: "power_consumption", Unit: "kW"},
			},
		},
		EquipmentCustom: {
			Name:        "Custom Unit",
			Description: "User-defined unit: outlet fields computed from expressions over the inlet aggregate and config",
			Inputs: []FieldSpec{
				{Name: "expressions", Type: "object"},
			},
			Outputs: []FieldSpec{
				{Name: "outlet_flow", Unit: "m³/h"},
			},
		},
	}
}
