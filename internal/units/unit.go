package units

import (
	"context"
	"sort"
	"sync"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// Inputs is the merged calculation input for one unit invocation.
//
// Params is the equipment configuration merged with the inlet aggregate
// fields the solver injects (<port>_flow, <port>_pressure,
// <port>_temperature, and feed_flow when the config does not set it).
// InletFlow is the summed flow of the connected inlet streams, carried
// separately so pass-through units conserve mass even when the config
// overrides feed_flow.
type Inputs struct {
	EquipmentID string
	Params      map[string]any
	InletFlow   float64
}

// Unit is a single-pass, pure unit operation calculator. Implementations
// must never mutate shared state; all outlet propagation happens through the
// solver's port routing rules.
type Unit interface {
	Type() schema.EquipmentType
	Compute(ctx context.Context, in Inputs) *schema.CalcResult
}

// Registry is a thread-safe mapping from equipment type to calculator.
type Registry struct {
	mu    sync.RWMutex
	units map[schema.EquipmentType]Unit
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		units: make(map[schema.EquipmentType]Unit),
	}
}

// Register adds a unit to the registry. Returns error on duplicate type.
func (r *Registry) Register(u Unit) error {
	if u == nil {
		return schema.NewError(schema.ErrCodeValidation, "unit is nil")
	}
	t := u.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "unit type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.units[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "unit %q already registered", t)
	}

	r.units[t] = u
	return nil
}

// Get retrieves a unit by equipment type.
func (r *Registry) Get(t schema.EquipmentType) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[t]
	return u, ok
}

// Resolve returns the unit for the given type, falling back to the generic
// pass-through calculator for unrecognized types.
func (r *Registry) Resolve(t schema.EquipmentType) Unit {
	if u, ok := r.Get(t); ok {
		return u
	}
	if u, ok := r.Get(schema.EquipmentGeneric); ok {
		return u
	}
	return Generic{}
}

// Types returns the registered equipment types, sorted.
func (r *Registry) Types() []schema.EquipmentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.EquipmentType, 0, len(r.units))
	for t := range r.units {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Count returns the number of registered units.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}
