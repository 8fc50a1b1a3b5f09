package solver

import (
	"strings"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// SystemRecovery computes the overall recovery (%) from stream naming:
// streams whose ID contains "feed" sum into the total feed, streams whose
// ID contains "product" or "permeate" sum into the total product, and the
// recovery is product over feed. Returns 0 when no feed stream exists.
//
// This is a naming-convention heuristic, not a topology calculation: a
// stream matching both groups counts as feed only.
func SystemRecovery(streams map[string]*schema.Stream) float64 {
	totalFeed := 0.0
	totalProduct := 0.0

	for _, st := range streams {
		id := strings.ToLower(st.ID)
		switch {
		case strings.Contains(id, "feed"):
			totalFeed += st.FlowRate
		case strings.Contains(id, "product"), strings.Contains(id, "permeate"):
			totalProduct += st.FlowRate
		}
	}

	if totalFeed <= 0 {
		return 0.0
	}
	return totalProduct / totalFeed * 100
}
