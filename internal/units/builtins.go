package units

import (
	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// RegisterBuiltins adds all standard unit operation calculators to the
// registry: ultrafiltration, feed tank, tank, pump, custom, and the generic
// pass-through fallback.
func RegisterBuiltins(reg *Registry, limits Limits, exprEngine *expressions.ExprEngine) error {
	builtins := []Unit{
		NewUltrafiltration(limits),
		FeedTank{},
		Tank{},
		Pump{},
		NewCustom(exprEngine),
		Generic{},
	}
	for _, u := range builtins {
		if err := reg.Register(u); err != nil {
			return err
		}
	}
	return nil
}

// ValidateConfig validates an equipment configuration against the static
// engineering checks for its type, without running a calculation. Used by
// the configuration validation API.
func ValidateConfig(t schema.EquipmentType, equipmentID string, config map[string]any) []*schema.EngineeringError {
	errs := validateTemperature(equipmentID, config)

	switch t {
	case schema.EquipmentUltrafiltration:
		if flow, ok := floatParamOK(config, "feed_flow"); ok && flow <= 0 {
			errs = append(errs, schema.NewError(schema.ErrCodeInvalidFeedFlow,
				"Feed flow must be positive").WithEquipment(equipmentID))
		}
		if area, ok := floatParamOK(config, "membrane_area"); ok && area <= 0 {
			errs = append(errs, schema.NewError(schema.ErrCodeInvalidMembraneArea,
				"Membrane area must be positive").WithEquipment(equipmentID))
		}
		if tmp, ok := floatParamOK(config, "transmembrane_pressure"); ok && tmp <= 0 {
			errs = append(errs, schema.NewError(schema.ErrCodeInvalidTMP,
				"Transmembrane pressure must be positive").WithEquipment(equipmentID))
		}
	case schema.EquipmentFeedTank:
		if volume, ok := floatParamOK(config, "volume"); ok && volume <= 0 {
			errs = append(errs, schema.NewError(schema.ErrCodeInvalidVolume,
				"Tank volume must be positive").WithEquipment(equipmentID))
		}
		if level, ok := floatParamOK(config, "level"); ok && (level < 0 || level > 100) {
			errs = append(errs, schema.NewError(schema.ErrCodeInvalidLevel,
				"Tank level must be between 0-100%").WithEquipment(equipmentID))
		}
		if inflow, ok := floatParamOK(config, "inflow_rate"); ok && inflow < 0 {
			errs = append(errs, schema.NewError(schema.ErrCodeInvalidInflow,
				"Inflow rate cannot be negative").WithEquipment(equipmentID))
		}
	}

	return errs
}

// ValidateRanges applies the standalone engineering range checks for stream
// conditions. The severities mirror the design limits: out-of-range low
// values block a calculation, high values are advisory except for pressure.
func ValidateRanges(flowRate, pressure, temperature float64) []*schema.EngineeringError {
	var errs []*schema.EngineeringError

	const (
		minFlow     = 0.0
		maxFlow     = 1000.0
		minPressure = 0.0
		maxPressure = 10.0
	)

	if flowRate < minFlow {
		errs = append(errs, schema.NewErrorf(schema.ErrCodeFlowTooLow,
			"Flow rate %g m³/h below minimum %g m³/h", flowRate, minFlow))
	}
	if flowRate > maxFlow {
		errs = append(errs, schema.NewErrorf(schema.ErrCodeFlowTooHigh,
			"Flow rate %g m³/h exceeds maximum %g m³/h", flowRate, maxFlow).
			WithSeverity(schema.SeverityWarning))
	}
	if pressure < minPressure {
		errs = append(errs, schema.NewErrorf(schema.ErrCodePressureTooLow,
			"Pressure %g bar below minimum %g bar", pressure, minPressure))
	}
	if pressure > maxPressure {
		errs = append(errs, schema.NewErrorf(schema.ErrCodePressureTooHigh,
			"Pressure %g bar exceeds maximum %g bar", pressure, maxPressure))
	}
	if temperature < 0 {
		errs = append(errs, schema.NewErrorf(schema.ErrCodeTempBelowFreezing,
			"Temperature %g°C below freezing point", temperature))
	}
	if temperature > 80 {
		errs = append(errs, schema.NewErrorf(schema.ErrCodeTempTooHigh,
			"Temperature %g°C may damage equipment", temperature).
			WithSeverity(schema.SeverityWarning))
	}

	return errs
}
