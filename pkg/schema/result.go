package schema

// SolveResult is the outcome of a flowsheet mass-balance solve.
//
// Converged=false with Success=true is a legitimate outcome: the iteration
// budget ran out before reaching tolerance and no calculator failed. Callers
// must check Converged explicitly.
//
// On Success=false, Streams and EquipmentResults are nil: a fatal abort
// discards all progress rather than returning a partial snapshot.
type SolveResult struct {
	Success          bool                      `json:"success"`
	Converged        bool                      `json:"converged"`
	Iterations       int                       `json:"iterations"`
	MaxError         float64                   `json:"max_error"`
	Streams          map[string]*Stream        `json:"streams,omitempty"`
	EquipmentResults map[string]map[string]any `json:"equipment_results,omitempty"`
	Errors           []*EngineeringError       `json:"errors"`
	SystemRecovery   float64                   `json:"system_recovery"`
}

// CalcResult is the outcome of a single unit operation calculation, both as
// returned by the calculator dispatch inside the solver and as the body of
// the standalone calculation API.
type CalcResult struct {
	Success  bool                `json:"success"`
	Data     map[string]any      `json:"data"`
	Errors   []*EngineeringError `json:"errors"`
	Warnings []string            `json:"warnings,omitempty"`
}

// Failed returns a CalcResult carrying the given errors.
func Failed(errs ...*EngineeringError) *CalcResult {
	return &CalcResult{Success: false, Data: map[string]any{}, Errors: errs}
}

// Succeeded returns a successful CalcResult with advisory errors attached.
// Advisory errors carry warning/info severity and accompany valid data.
func Succeeded(data map[string]any, advisories ...*EngineeringError) *CalcResult {
	return &CalcResult{Success: true, Data: data, Errors: advisories}
}
