package permission

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Level names a permission tier.
type Level string

const (
	User   Level = "USER"
	Trial  Level = "TRIAL"
	Master Level = "MASTER"
	Admin  Level = "ADMIN"

	// Public marks an operation that requires no credential. It always
	// authorizes and is never part of a Registry.
	Public Level = "public"
)

// DefaultLevels is the built-in order, lowest first.
var DefaultLevels = []Level{User, Trial, Master, Admin}

// Registry is an explicit rank table for levels. Ranks follow registration
// order: the first registered level is the lowest.
type Registry struct {
	mu     sync.RWMutex
	rank   map[Level]int
	levels []Level
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rank: make(map[Level]int)}
}

// NewRegistryFrom registers levels lowest first and freezes the result.
func NewRegistryFrom(levels ...Level) (*Registry, error) {
	if len(levels) == 0 {
		return nil, errors.New("permission registry needs at least one level")
	}
	r := NewRegistry()
	for _, l := range levels {
		if _, err := r.Register(l); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}

// DefaultRegistry returns a frozen registry holding DefaultLevels.
func DefaultRegistry() *Registry {
	r, _ := NewRegistryFrom(DefaultLevels...)
	return r
}

// Register assigns the next rank to level. Must be called before [Registry.Freeze].
func (r *Registry) Register(level Level) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}
	if strings.TrimSpace(string(level)) == "" {
		return -1, errors.New("permission level cannot be empty")
	}
	if strings.EqualFold(string(level), string(Public)) {
		return -1, fmt.Errorf("%q is reserved", Public)
	}
	if _, exists := r.rank[level]; exists {
		return -1, fmt.Errorf("permission level %q already registered", level)
	}

	next := len(r.levels)
	r.rank[level] = next
	r.levels = append(r.levels, level)
	return next, nil
}

// Rank returns the rank of level, or false if it is not registered.
func (r *Registry) Rank(level Level) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rank, ok := r.rank[level]
	return rank, ok
}

// Parse maps a stored or signed string back to a registered level.
func (r *Registry) Parse(s string) (Level, bool) {
	l := Level(s)
	if _, ok := r.Rank(l); !ok {
		return "", false
	}
	return l, true
}

// Levels returns the registered levels, lowest first.
func (r *Registry) Levels() []Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Level, len(r.levels))
	copy(out, r.levels)
	return out
}

// Lowest returns the lowest registered level; new principals start there.
func (r *Registry) Lowest() Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.levels) == 0 {
		return ""
	}
	return r.levels[0]
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
