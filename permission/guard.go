package permission

import "errors"

// ErrForbidden is returned when a principal's level does not meet the
// required level, or when either level is unknown.
var ErrForbidden = errors.New("permission: forbidden")

// Guard answers whether a principal level satisfies a required level.
type Guard struct {
	registry *Registry
}

// NewGuard freezes registry and returns a guard over it.
func NewGuard(registry *Registry) *Guard {
	registry.Freeze()
	return &Guard{registry: registry}
}

// Registry returns the rank table the guard consults.
func (g *Guard) Registry() *Registry {
	return g.registry
}

// Authorize treats required as a floor: any principal ranked at or above it
// passes. Public always passes. Unknown levels on either side fail closed.
func (g *Guard) Authorize(required, principal Level) (bool, error) {
	if required == Public {
		return true, nil
	}
	need, ok := g.registry.Rank(required)
	if !ok {
		return false, ErrForbidden
	}
	have, ok := g.registry.Rank(principal)
	if !ok {
		return false, ErrForbidden
	}
	if need > have {
		return false, ErrForbidden
	}
	return true, nil
}
