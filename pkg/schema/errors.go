package schema

import "fmt"

// Severity classifies an engineering error. Severity never halts a solve by
// itself; only a failed calculator or a solver fault aborts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error codes emitted by the solver and the unit calculators.
const (
	// Solver-level codes.
	ErrCodeEquipmentCalc  = "EQUIPMENT_CALC_ERROR"
	ErrCodeSolver         = "SOLVER_ERROR"
	ErrCodeMassBalance    = "MASS_BALANCE_ERROR"
	ErrCodeStreamNotFound = "STREAM_NOT_FOUND"
	ErrCodeConstraint     = "CONSTRAINT_VIOLATION"

	// Calculator-level codes.
	ErrCodeCalculation         = "CALCULATION_ERROR"
	ErrCodeNegativeNetPressure = "NEGATIVE_NET_PRESSURE"
	ErrCodeInvalidFeedFlow     = "INVALID_FEED_FLOW"
	ErrCodeInvalidMembraneArea = "INVALID_MEMBRANE_AREA"
	ErrCodeInvalidTMP          = "INVALID_TMP"
	ErrCodeFeedTank            = "FEED_TANK_ERROR"
	ErrCodeInvalidVolume       = "INVALID_VOLUME"
	ErrCodeInvalidLevel        = "INVALID_LEVEL"
	ErrCodeInvalidInflow       = "INVALID_INFLOW"

	// Engineering range codes.
	ErrCodeTempRange         = "TEMP_RANGE"
	ErrCodeFlowTooLow        = "FLOW_TOO_LOW"
	ErrCodeFlowTooHigh       = "FLOW_TOO_HIGH"
	ErrCodePressureTooLow    = "PRESSURE_TOO_LOW"
	ErrCodePressureTooHigh   = "PRESSURE_TOO_HIGH"
	ErrCodeTempBelowFreezing = "TEMP_BELOW_FREEZING"
	ErrCodeTempTooHigh       = "TEMP_TOO_HIGH"

	// Advisory codes on successful results.
	ErrCodeHighFlux      = "HIGH_FLUX"
	ErrCodeHighRecovery  = "HIGH_RECOVERY"
	ErrCodeHighTMP       = "HIGH_TMP"
	ErrCodeExtremePH     = "EXTREME_PH"
	ErrCodeHighTurbidity = "HIGH_TURBIDITY"
	ErrCodeHighTDS       = "HIGH_TDS"

	// Infrastructure codes.
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeExpression = "EXPRESSION_ERROR"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
)

// EngineeringError is the structured error type for all flowsolve operations.
// EquipmentID is empty for flowsheet-global errors.
type EngineeringError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	EquipmentID string   `json:"equipment_id,omitempty"`
	Severity    Severity `json:"severity"`
	Cause       error    `json:"-"`
}

func (e *EngineeringError) Error() string {
	if e.EquipmentID != "" {
		return fmt.Sprintf("[%s] equipment %s: %s", e.Code, e.EquipmentID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineeringError) Unwrap() error {
	return e.Cause
}

// NewError creates an EngineeringError with severity "error".
func NewError(code, message string) *EngineeringError {
	return &EngineeringError{Code: code, Message: message, Severity: SeverityError}
}

// NewErrorf creates an EngineeringError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineeringError {
	return &EngineeringError{Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

// WithEquipment attaches the equipment ID the error refers to.
func (e *EngineeringError) WithEquipment(id string) *EngineeringError {
	e.EquipmentID = id
	return e
}

// WithSeverity overrides the default severity.
func (e *EngineeringError) WithSeverity(s Severity) *EngineeringError {
	e.Severity = s
	return e
}

// WithCause attaches an underlying cause.
func (e *EngineeringError) WithCause(err error) *EngineeringError {
	e.Cause = err
	return e
}
