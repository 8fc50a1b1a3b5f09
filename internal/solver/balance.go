package solver

import (
	"math"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// validateMassBalance checks flow conservation around every equipment after
// the iteration finishes. Imbalance above 1% is reported, with error
// severity above 5% and warning severity otherwise; both comparisons are
// strict. Equipment with zero inlet flow is exempt. Findings are advisory
// and never change the solve's success.
func validateMassBalance(fs *schema.Flowsheet, streams map[string]*schema.Stream) []*schema.EngineeringError {
	var errs []*schema.EngineeringError

	for _, eqID := range fs.EquipmentOrder() {
		eq, ok := fs.Equipment[eqID]
		if !ok {
			continue
		}

		inletFlow := sumFlows(eq.InletStreams, streams)
		outletFlow := sumFlows(eq.OutletStreams, streams)

		if inletFlow <= 0 {
			continue
		}

		imbalance := math.Abs(inletFlow-outletFlow) / inletFlow * 100
		if imbalance > 1.0 {
			severity := schema.SeverityWarning
			if imbalance > 5.0 {
				severity = schema.SeverityError
			}
			errs = append(errs, schema.NewErrorf(schema.ErrCodeMassBalance,
				"Mass balance error in %s: %.1f%% (In: %.3f, Out: %.3f m³/h)",
				eqID, imbalance, inletFlow, outletFlow).
				WithEquipment(eqID).
				WithSeverity(severity))
		}
	}

	return errs
}

func sumFlows(streamIDs []string, streams map[string]*schema.Stream) float64 {
	total := 0.0
	for _, id := range streamIDs {
		if st, ok := streams[id]; ok {
			total += st.FlowRate
		}
	}
	return total
}
