package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, DefaultLimits(), expressions.NewExprEngine()))
	return reg
}

func findCode(errs []*schema.EngineeringError, code string) *schema.EngineeringError {
	for _, e := range errs {
		if e.Code == code {
			return e
		}
	}
	return nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := newTestRegistry(t)
	assert.Equal(t, 6, reg.Count())

	u, ok := reg.Get(schema.EquipmentUltrafiltration)
	require.True(t, ok)
	assert.Equal(t, schema.EquipmentUltrafiltration, u.Type())

	// Unknown types fall back to the generic pass-through.
	assert.Equal(t, schema.EquipmentGeneric, reg.Resolve("clarifier").Type())
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Tank{}))

	err := reg.Register(Tank{})
	require.Error(t, err)

	engErr, ok := err.(*schema.EngineeringError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, engErr.Code)
}

func TestRegistry_NilRejected(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(nil)
	require.Error(t, err)
}

func TestUltrafiltration_Nominal(t *testing.T) {
	uf := NewUltrafiltration(DefaultLimits())
	res := uf.Compute(context.Background(), Inputs{
		EquipmentID: "UF-001",
		Params: map[string]any{
			"feed_flow":              100.0,
			"membrane_area":          500.0,
			"transmembrane_pressure": 1.0,
		},
		InletFlow: 100.0,
	})

	require.True(t, res.Success)

	permeate := res.Data["permeate_flow"].(float64)
	concentrate := res.Data["concentrate_flow"].(float64)
	assert.Greater(t, permeate, 0.0)
	assert.InDelta(t, 100.0, permeate+concentrate, 1e-3)

	assert.InDelta(t, permeate/100.0*100, res.Data["recovery"].(float64), 0.1)
	assert.Greater(t, res.Data["flux"].(float64), 0.0)
	assert.LessOrEqual(t, res.Data["energy_consumption"].(float64), 2.0)
	assert.GreaterOrEqual(t, res.Data["membrane_life_prediction"].(float64), 6.0)
	assert.Equal(t, 0.0, res.Data["fouling_resistance"].(float64))
}

func TestUltrafiltration_NegativeNetPressure(t *testing.T) {
	uf := NewUltrafiltration(DefaultLimits())

	// Heavily loaded feed: CP factor saturates at 3×, osmotic pressure at
	// its 0.1 bar cap, exceeding the 0.05 bar TMP.
	res := uf.Compute(context.Background(), Inputs{
		EquipmentID: "UF-001",
		Params: map[string]any{
			"feed_flow":              50.0,
			"membrane_area":          100.0,
			"transmembrane_pressure": 0.05,
			"feed_concentration":     50.0,
		},
	})

	require.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, schema.ErrCodeNegativeNetPressure, res.Errors[0].Code)
	assert.Empty(t, res.Data)
}

func TestUltrafiltration_MissingRequiredInput(t *testing.T) {
	uf := NewUltrafiltration(DefaultLimits())
	res := uf.Compute(context.Background(), Inputs{
		EquipmentID: "UF-001",
		Params:      map[string]any{"membrane_area": 500.0},
	})

	require.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, schema.ErrCodeCalculation, res.Errors[0].Code)
	assert.Equal(t, schema.SeverityCritical, res.Errors[0].Severity)
}

func TestUltrafiltration_InvalidInputs(t *testing.T) {
	uf := NewUltrafiltration(DefaultLimits())
	res := uf.Compute(context.Background(), Inputs{
		EquipmentID: "UF-001",
		Params: map[string]any{
			"feed_flow":              -10.0,
			"membrane_area":          0.0,
			"transmembrane_pressure": -0.5,
		},
	})

	require.False(t, res.Success)
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeInvalidFeedFlow))
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeInvalidMembraneArea))
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeInvalidTMP))
}

func TestUltrafiltration_HighTMPAdvisory(t *testing.T) {
	uf := NewUltrafiltration(DefaultLimits())
	res := uf.Compute(context.Background(), Inputs{
		EquipmentID: "UF-001",
		Params: map[string]any{
			"feed_flow":              100.0,
			"membrane_area":          500.0,
			"transmembrane_pressure": 3.5,
		},
	})

	// Exceeding the membrane pressure rating is advisory, not a failure.
	require.True(t, res.Success)
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeHighTMP))
}

func TestUltrafiltration_FoulingGrowsWithOperatingHours(t *testing.T) {
	uf := NewUltrafiltration(DefaultLimits())
	base := map[string]any{
		"feed_flow":              100.0,
		"membrane_area":          500.0,
		"transmembrane_pressure": 1.0,
	}

	fresh := uf.Compute(context.Background(), Inputs{EquipmentID: "UF-001", Params: base})
	require.True(t, fresh.Success)

	aged := map[string]any{"operating_hours": 200.0}
	for k, v := range base {
		aged[k] = v
	}
	fouled := uf.Compute(context.Background(), Inputs{EquipmentID: "UF-001", Params: aged})
	require.True(t, fouled.Success)

	assert.Greater(t, fouled.Data["fouling_resistance"].(float64), fresh.Data["fouling_resistance"].(float64))
	assert.Less(t, fouled.Data["permeate_flow"].(float64), fresh.Data["permeate_flow"].(float64))
}

func TestFeedTank_Defaults(t *testing.T) {
	res := FeedTank{}.Compute(context.Background(), Inputs{EquipmentID: "FT-001", Params: map[string]any{}})
	require.True(t, res.Success)

	assert.Equal(t, 100.0, res.Data["outlet_flow"])
	assert.Equal(t, 750.0, res.Data["water_volume"])
	assert.Equal(t, 7.5, res.Data["residence_time"])
	assert.Equal(t, false, res.Data["overflow_risk"])
	assert.InDelta(t, 2.78, res.Data["water_age"].(float64), 0.01)
	assert.Equal(t, "low", res.Data["treatment_difficulty"])
	assert.Equal(t, "medium", res.Data["fouling_potential"])
	assert.InDelta(t, 3.7, res.Data["sdi_estimate"].(float64), 0.01)

	// Residence time above 2 h settles 20% of TSS.
	quality := res.Data["outlet_quality"].(WaterQuality)
	assert.InDelta(t, 8.0, quality.TSS, 1e-9)
	assert.InDelta(t, 0.9, quality.Turbidity, 1e-9)
}

func TestFeedTank_OverflowRisk(t *testing.T) {
	res := FeedTank{}.Compute(context.Background(), Inputs{
		EquipmentID: "FT-001",
		Params:      map[string]any{"level": 95.0},
	})
	require.True(t, res.Success)
	assert.Equal(t, true, res.Data["overflow_risk"])
}

func TestFeedTank_InvalidLevel(t *testing.T) {
	res := FeedTank{}.Compute(context.Background(), Inputs{
		EquipmentID: "FT-001",
		Params:      map[string]any{"level": 120.0},
	})
	require.False(t, res.Success)
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeInvalidLevel))
}

func TestFeedTank_IndustrialSourceRecommendations(t *testing.T) {
	res := FeedTank{}.Compute(context.Background(), Inputs{
		EquipmentID: "FT-001",
		Params: map[string]any{
			"source_type": "industrial",
			"water_quality": map[string]any{
				"turbidity": 40.0,
				"tss":       120.0,
				"cod":       300.0,
				"fog":       25.0,
				"ph":        5.0,
			},
		},
	})
	require.True(t, res.Success)

	recs := res.Data["recommended_pretreatment"].([]string)
	assert.Contains(t, recs, "neutralization")
	assert.Contains(t, recs, "coagulation")
	assert.Contains(t, recs, "ph_adjustment")
	assert.Contains(t, recs, "activated_carbon")
	assert.Contains(t, recs, "oil_water_separation")
	assert.Equal(t, "very_high", res.Data["treatment_difficulty"])
}

func TestFeedTank_WaterQualityAdvisories(t *testing.T) {
	res := FeedTank{}.Compute(context.Background(), Inputs{
		EquipmentID: "FT-001",
		Params: map[string]any{
			"water_quality": map[string]any{
				"ph":        3.0,
				"turbidity": 150.0,
				"tds":       3000.0,
			},
		},
	})
	require.True(t, res.Success)
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeExtremePH))
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeHighTurbidity))
	assert.NotNil(t, findCode(res.Errors, schema.ErrCodeHighTDS))
}

func TestTank_PassThrough(t *testing.T) {
	res := Tank{}.Compute(context.Background(), Inputs{
		EquipmentID: "TANK-001",
		Params:      map[string]any{"pressure": 2.0, "volume": 50.0},
		InletFlow:   100.0,
	})
	require.True(t, res.Success)

	assert.Equal(t, 100.0, res.Data["outlet_flow"])
	assert.Equal(t, 2.0, res.Data["outlet_pressure"])
	assert.Equal(t, 25.0, res.Data["outlet_temperature"])
	assert.Equal(t, 30.0, res.Data["residence_time"])
}

func TestPump_PowerFormula(t *testing.T) {
	res := Pump{}.Compute(context.Background(), Inputs{
		EquipmentID: "PUMP-001",
		Params:      map[string]any{"discharge_pressure": 3.0, "efficiency": 0.75},
		InletFlow:   100.0,
	})
	require.True(t, res.Success)

	assert.Equal(t, 100.0, res.Data["discharge_flow"])
	assert.Equal(t, 3.0, res.Data["discharge_pressure"])
	// P = ρ·g·Q·H/η with 3 bar → 30.6 m head.
	assert.InDelta(t, 11.118, res.Data["power_consumption"].(float64), 0.001)
}

func TestPump_ZeroFlowZeroPower(t *testing.T) {
	res := Pump{}.Compute(context.Background(), Inputs{EquipmentID: "PUMP-001", Params: map[string]any{}})
	require.True(t, res.Success)
	assert.Equal(t, 0.0, res.Data["power_consumption"])
}

func TestGeneric_PassThrough(t *testing.T) {
	res := Generic{}.Compute(context.Background(), Inputs{
		EquipmentID: "X-001",
		Params:      map[string]any{},
		InletFlow:   42.0,
	})
	require.True(t, res.Success)
	assert.Equal(t, 42.0, res.Data["outlet_flow"])
	assert.Equal(t, 1.0, res.Data["outlet_pressure"])
}

func TestCustom_Expressions(t *testing.T) {
	c := NewCustom(expressions.NewExprEngine())
	res := c.Compute(context.Background(), Inputs{
		EquipmentID: "SPLIT-001",
		Params: map[string]any{
			"split_ratio": 0.4,
			"expressions": map[string]any{
				"outlet_flow":     "inlet_flow * split_ratio",
				"outlet_pressure": "1.5",
			},
		},
		InletFlow: 100.0,
	})
	require.True(t, res.Success)
	assert.InDelta(t, 40.0, res.Data["outlet_flow"].(float64), 1e-9)
	assert.InDelta(t, 1.5, res.Data["outlet_pressure"].(float64), 1e-9)
}

func TestCustom_MissingExpressions(t *testing.T) {
	c := NewCustom(expressions.NewExprEngine())
	res := c.Compute(context.Background(), Inputs{EquipmentID: "SPLIT-001", Params: map[string]any{}})
	require.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeExpression, res.Errors[0].Code)
}

func TestCustom_BadExpression(t *testing.T) {
	c := NewCustom(expressions.NewExprEngine())
	res := c.Compute(context.Background(), Inputs{
		EquipmentID: "SPLIT-001",
		Params: map[string]any{
			"expressions": map[string]any{"outlet_flow": "inlet_flow *"},
		},
	})
	require.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeValidation, res.Errors[0].Code)
}

func TestValidateRanges_Boundaries(t *testing.T) {
	assert.Empty(t, ValidateRanges(100, 2, 25))

	errs := ValidateRanges(-1, 12, 90)
	assert.NotNil(t, findCode(errs, schema.ErrCodeFlowTooLow))
	assert.NotNil(t, findCode(errs, schema.ErrCodePressureTooHigh))

	high := findCode(errs, schema.ErrCodeTempTooHigh)
	require.NotNil(t, high)
	assert.Equal(t, schema.SeverityWarning, high.Severity)
}

func TestValidateConfig_UF(t *testing.T) {
	errs := ValidateConfig(schema.EquipmentUltrafiltration, "UF-001", map[string]any{
		"temperature":   150.0,
		"membrane_area": -5.0,
	})
	assert.NotNil(t, findCode(errs, schema.ErrCodeTempRange))
	assert.NotNil(t, findCode(errs, schema.ErrCodeInvalidMembraneArea))
}

func TestWaterPhysics(t *testing.T) {
	assert.InDelta(t, 1000.0, waterDensity(20), 1e-9)
	assert.InDelta(t, 0.001, waterViscosity(20), 1e-9)
	assert.Less(t, waterViscosity(40), waterViscosity(10))
	assert.Greater(t, reynoldsNumber(2.0, 0.01, 25), 0.0)
}
