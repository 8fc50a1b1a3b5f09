package expressions

import "context"

// Engine evaluates expressions against flowsheet data.
// Three implementations: Expr (custom unit formulas), CEL (post-solve
// constraint checks), GoJQ (result document queries).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
