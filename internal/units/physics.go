package units

import (
	"math"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// Physical constants for water at process conditions.
const (
	waterDensityRef = 1000.0 // kg/m³ at 20 °C
	gravity         = 9.81   // m/s²
	barToMeters     = 10.2   // pressure head conversion
)

// waterDensity returns water density (kg/m³) as a function of temperature,
// using a simplified correlation for pure water.
func waterDensity(temperature float64) float64 {
	return waterDensityRef * (1 - 0.0002*(temperature-20))
}

// waterViscosity returns water dynamic viscosity (Pa·s) as a function of
// temperature, using a simplified correlation for pure water.
func waterViscosity(temperature float64) float64 {
	return 0.001 * math.Exp(1.3272*(20-temperature)/(temperature+105))
}

// reynoldsNumber computes the Reynolds number for flow through a channel.
func reynoldsNumber(velocity, diameter, temperature float64) float64 {
	return waterDensity(temperature) * velocity * diameter / waterViscosity(temperature)
}

// validateTemperature checks the common process temperature range shared by
// all unit types.
func validateTemperature(equipmentID string, params map[string]any) []*schema.EngineeringError {
	var errs []*schema.EngineeringError
	if temp, ok := floatParamOK(params, "temperature"); ok {
		if temp < 0 || temp > 100 {
			errs = append(errs, schema.NewErrorf(schema.ErrCodeTempRange,
				"Temperature %g°C outside valid range (0-100°C)", temp).
				WithEquipment(equipmentID))
		}
	}
	return errs
}
