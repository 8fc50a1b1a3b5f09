package units

import (
	"context"
	"math"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// WaterQuality holds the feed water composition parameters.
type WaterQuality struct {
	Turbidity  float64 `json:"turbidity"`  // NTU
	TSS        float64 `json:"tss"`        // mg/L Total Suspended Solids
	TDS        float64 `json:"tds"`        // mg/L Total Dissolved Solids
	FOG        float64 `json:"fog"`        // mg/L Fats, Oils and Grease
	BOD        float64 `json:"bod"`        // mg/L Biochemical Oxygen Demand
	COD        float64 `json:"cod"`        // mg/L Chemical Oxygen Demand
	PH         float64 `json:"ph"`         // pH units
	Alkalinity float64 `json:"alkalinity"` // mg/L as CaCO3
	Hardness   float64 `json:"hardness"`   // mg/L as CaCO3
	Chloride   float64 `json:"chloride"`   // mg/L
	Sulfate    float64 `json:"sulfate"`    // mg/L
	Nitrate    float64 `json:"nitrate"`    // mg/L
	Phosphate  float64 `json:"phosphate"`  // mg/L
	Iron       float64 `json:"iron"`       // mg/L
	Manganese  float64 `json:"manganese"`  // mg/L
}

// defaultWaterQuality returns typical raw water composition.
func defaultWaterQuality() WaterQuality {
	return WaterQuality{
		Turbidity:  1.0,
		TSS:        10.0,
		TDS:        500.0,
		FOG:        5.0,
		BOD:        20.0,
		COD:        50.0,
		PH:         7.0,
		Alkalinity: 100.0,
		Hardness:   150.0,
		Chloride:   50.0,
		Sulfate:    30.0,
		Nitrate:    10.0,
		Phosphate:  2.0,
		Iron:       0.5,
		Manganese:  0.1,
	}
}

// feedTankInputs are the feed tank process inputs with source characterization.
type feedTankInputs struct {
	Volume      float64 `json:"volume"`      // m³
	Height      float64 `json:"height"`      // m
	Level       float64 `json:"level"`       // % (0-100)
	InflowRate  float64 `json:"inflow_rate"` // m³/h
	Temperature float64 `json:"temperature"` // °C

	SourceType        string `json:"source_type"` // surface_water, groundwater, municipal, industrial
	SourceDescription string `json:"source_description"`

	WaterQuality WaterQuality `json:"water_quality"`

	HeavyMetals map[string]float64 `json:"heavy_metals,omitempty"`
	Organics    map[string]float64 `json:"organics,omitempty"`
	Pathogens   map[string]float64 `json:"pathogens,omitempty"`
}

// sourceProfile describes expected raw water behavior for a source type.
type sourceProfile struct {
	PretreatmentNeeds []string
}

var sourceProfiles = map[string]sourceProfile{
	"surface_water": {PretreatmentNeeds: []string{"coagulation", "sedimentation", "filtration"}},
	"groundwater":   {PretreatmentNeeds: []string{"iron_removal", "hardness_removal"}},
	"municipal":     {PretreatmentNeeds: []string{"chlorine_removal", "ph_adjustment"}},
	"industrial":    {PretreatmentNeeds: []string{"neutralization", "heavy_metal_removal", "organics_removal"}},
}

// FeedTank models a raw water feed tank with water source characterization:
// residence time, overflow risk, treatment difficulty, pretreatment
// recommendations, SDI estimate and membrane fouling potential.
type FeedTank struct{}

func (FeedTank) Type() schema.EquipmentType {
	return schema.EquipmentFeedTank
}

func (ft FeedTank) Compute(_ context.Context, in Inputs) *schema.CalcResult {
	inputs := feedTankInputs{
		Volume:            1000.0,
		Height:            10.0,
		Level:             75.0,
		InflowRate:        100.0,
		Temperature:       25.0,
		SourceType:        "surface_water",
		SourceDescription: "River intake",
		WaterQuality:      defaultWaterQuality(),
	}
	if err := decodeParams(in.Params, &inputs); err != nil {
		return schema.Failed(schema.NewErrorf(schema.ErrCodeFeedTank,
			"Feed tank calculation failed: %s", err.Error()).
			WithEquipment(in.EquipmentID).
			WithSeverity(schema.SeverityCritical).
			WithCause(err))
	}

	if errs := ft.validateInputs(in.EquipmentID, inputs); len(errs) > 0 {
		return schema.Failed(errs...)
	}

	waterVolume := inputs.Volume * inputs.Level / 100
	residenceTime := 0.0
	if inputs.InflowRate > 0 {
		residenceTime = waterVolume / inputs.InflowRate
	}

	// Steady state: outlet matches inflow.
	outletFlow := inputs.InflowRate
	overflowRisk := inputs.Level > 90.0

	// Exponential decay approximation of mean water age in a mixed tank.
	waterAge := residenceTime * 0.37

	outletQuality := outletQuality(inputs.WaterQuality, residenceTime)

	data := map[string]any{
		"outlet_flow":              roundTo(outletFlow, 2),
		"residence_time":           roundTo(residenceTime, 2),
		"water_volume":             roundTo(waterVolume, 1),
		"overflow_risk":            overflowRisk,
		"water_age":                roundTo(waterAge, 2),
		"treatment_difficulty":     treatmentDifficulty(inputs.WaterQuality),
		"recommended_pretreatment": recommendPretreatment(inputs.SourceType, inputs.WaterQuality),
		"sdi_estimate":             roundTo(estimateSDI(inputs.WaterQuality), 1),
		"fouling_potential":        foulingPotential(inputs.WaterQuality),
		"outlet_quality":           outletQuality,
	}

	return schema.Succeeded(data, validateWaterQuality(in.EquipmentID, inputs.WaterQuality)...)
}

func (FeedTank) validateInputs(equipmentID string, in feedTankInputs) []*schema.EngineeringError {
	var errs []*schema.EngineeringError
	if in.Volume <= 0 {
		errs = append(errs, schema.NewError(schema.ErrCodeInvalidVolume,
			"Tank volume must be positive").WithEquipment(equipmentID))
	}
	if in.Level < 0 || in.Level > 100 {
		errs = append(errs, schema.NewError(schema.ErrCodeInvalidLevel,
			"Tank level must be between 0-100%").WithEquipment(equipmentID))
	}
	if in.InflowRate < 0 {
		errs = append(errs, schema.NewError(schema.ErrCodeInvalidInflow,
			"Inflow rate cannot be negative").WithEquipment(equipmentID))
	}
	return errs
}

// treatmentDifficulty scores the overall treatment difficulty from the
// water quality parameters.
func treatmentDifficulty(q WaterQuality) string {
	score := 0

	switch {
	case q.Turbidity > 10:
		score += 2
	case q.Turbidity > 5:
		score++
	}
	switch {
	case q.TSS > 50:
		score += 2
	case q.TSS > 20:
		score++
	}
	switch {
	case q.TDS > 1000:
		score += 2
	case q.TDS > 500:
		score++
	}
	switch {
	case q.COD > 100:
		score += 2
	case q.COD > 50:
		score++
	}
	switch {
	case q.FOG > 20:
		score += 2
	case q.FOG > 10:
		score++
	}
	switch {
	case q.PH < 6 || q.PH > 9:
		score += 2
	case q.PH < 6.5 || q.PH > 8.5:
		score++
	}
	if q.Hardness > 300 {
		score++
	}

	switch {
	case score >= 6:
		return "very_high"
	case score >= 4:
		return "high"
	case score >= 2:
		return "medium"
	default:
		return "low"
	}
}

// recommendPretreatment builds the pretreatment train from the source type
// baseline plus quality-specific additions.
func recommendPretreatment(sourceType string, q WaterQuality) []string {
	var recs []string
	seen := map[string]bool{}
	add := func(step string) {
		if !seen[step] {
			seen[step] = true
			recs = append(recs, step)
		}
	}

	if profile, ok := sourceProfiles[sourceType]; ok {
		for _, step := range profile.PretreatmentNeeds {
			add(step)
		}
	}

	if q.Turbidity > 5 {
		add("coagulation")
	}
	if q.PH < 6.5 || q.PH > 8.5 {
		add("ph_adjustment")
	}
	if q.Hardness > 200 {
		add("hardness_removal")
	}
	if q.Iron > 0.3 {
		add("iron_removal")
	}
	if q.COD > 50 {
		add("activated_carbon")
	}
	if q.TSS > 30 {
		add("filtration")
	}
	if q.FOG > 10 {
		add("oil_water_separation")
	}

	return recs
}

// estimateSDI estimates the Silt Density Index from an empirical correlation
// over turbidity, solids, iron and organics. Clamped to realistic bounds.
func estimateSDI(q WaterQuality) float64 {
	sdi := 1.0
	sdi += q.Turbidity * 0.2
	sdi += q.TSS * 0.05
	sdi += q.Iron * 2.0 // colloidal iron fouling
	sdi += q.COD * 0.01
	sdi += q.FOG * 0.1
	return math.Min(math.Max(sdi, 1.0), 15.0)
}

// foulingPotential scores membrane fouling potential across organic,
// inorganic and colloidal contributions.
func foulingPotential(q WaterQuality) string {
	score := 0

	if q.COD > 10 {
		score++
	}
	if q.BOD > 5 {
		score++
	}
	if q.FOG > 5 {
		score++
	}
	if q.Hardness > 200 {
		score++
	}
	if q.Iron > 0.2 {
		score++
	}
	if q.Manganese > 0.05 {
		score++
	}
	if q.Turbidity > 1 {
		score++
	}
	if q.TSS > 10 {
		score++
	}

	switch {
	case score >= 5:
		return "high"
	case score >= 3:
		return "medium"
	default:
		return "low"
	}
}

// outletQuality applies the minimal composition changes a storage tank
// makes: some solids settling once residence time exceeds 2 hours.
func outletQuality(inlet WaterQuality, residenceTime float64) WaterQuality {
	out := inlet
	if residenceTime > 2.0 {
		settling := math.Min(0.2, residenceTime*0.05)
		out.TSS *= 1 - settling
		out.Turbidity *= 1 - settling*0.5
	}
	return out
}

// validateWaterQuality emits advisory findings for extreme quality values.
func validateWaterQuality(equipmentID string, q WaterQuality) []*schema.EngineeringError {
	var errs []*schema.EngineeringError
	if q.PH < 4 || q.PH > 11 {
		errs = append(errs, schema.NewErrorf(schema.ErrCodeExtremePH,
			"pH %g is outside typical water treatment range (4-11)", q.PH).
			WithEquipment(equipmentID).
			WithSeverity(schema.SeverityWarning))
	}
	if q.Turbidity > 100 {
		errs = append(errs, schema.NewErrorf(schema.ErrCodeHighTurbidity,
			"Turbidity %g NTU is very high - extensive pretreatment required", q.Turbidity).
			WithEquipment(equipmentID).
			WithSeverity(schema.SeverityWarning))
	}
	if q.TDS > 2000 {
		errs = append(errs, schema.NewErrorf(schema.ErrCodeHighTDS,
			"TDS %g mg/L may require RO treatment", q.TDS).
			WithEquipment(equipmentID).
			WithSeverity(schema.SeverityInfo))
	}
	return errs
}

var _ Unit = FeedTank{}
