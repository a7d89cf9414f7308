// Package rules holds the active rule bitmask for the call-flow engine.
// Exactly two validation modes exist and they are mutually exclusive:
// continuity (the fingerprint resets every time depth returns to baseline)
// and prefix-flow (the fingerprint carries across outermost calls within
// a session). A zero RuleSet deactivates the engine entirely.
package rules

import "fmt"

// RuleSet is a bit-flag value selecting the active validation mode.
type RuleSet uint8

const (
	// RuleContinuity resets the fingerprint at every return to baseline depth.
	RuleContinuity RuleSet = 1 << 0
	// RulePrefixFlow carries the fingerprint across outermost calls.
	RulePrefixFlow RuleSet = 1 << 1
)

// exclusive holds the flag pairs that may not be combined.
const exclusive = RuleContinuity | RulePrefixFlow

// ConfigurationError reports an illegal rule combination.
type ConfigurationError struct {
	Requested RuleSet
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rules: continuity and prefix-flow are mutually exclusive (requested %#08b)", uint8(e.Requested))
}

// ChangeFunc observes rule changes with the old and new values.
type ChangeFunc func(old, new RuleSet)

// Store holds the active RuleSet.
// Not safe for concurrent mutation; the engine serializes access.
type Store struct {
	active   RuleSet
	onChange ChangeFunc
}

// NewStore creates a Store with the given initial value.
// The initial value is trusted (loaded from persisted state); Set validates.
func NewStore(initial RuleSet, onChange ChangeFunc) *Store {
	return &Store{active: initial, onChange: onChange}
}

// Set replaces the active rule set.
// Rejects the exclusive combination with ConfigurationError, leaving the
// prior value untouched.
func (s *Store) Set(r RuleSet) error {
	if r&exclusive == exclusive {
		return &ConfigurationError{Requested: r}
	}
	old := s.active
	s.active = r
	if s.onChange != nil {
		s.onChange(old, r)
	}
	return nil
}

// DisableAll unconditionally zeroes the rule set (full engine bypass).
func (s *Store) DisableAll() {
	old := s.active
	s.active = 0
	if s.onChange != nil {
		s.onChange(old, 0)
	}
}

// Active returns the current rule set.
func (s *Store) Active() RuleSet { return s.active }

// Deactivated reports whether the engine is a no-op pass-through.
func (s *Store) Deactivated() bool { return s.active == 0 }

// ContinuityActive reports whether the continuity bit is set.
func (s *Store) ContinuityActive() bool { return s.active&RuleContinuity != 0 }

// PrefixFlowActive reports whether the prefix-flow bit is set.
func (s *Store) PrefixFlowActive() bool { return s.active&RulePrefixFlow != 0 }

// ParseMode maps a config string to a RuleSet. Unknown modes are an error.
func ParseMode(s string) (RuleSet, error) {
	switch s {
	case "continuity":
		return RuleContinuity, nil
	case "prefix_flow":
		return RulePrefixFlow, nil
	case "off", "":
		return 0, nil
	default:
		return 0, fmt.Errorf("rules: unknown mode %q (want continuity, prefix_flow, or off)", s)
	}
}

// ModeString renders a RuleSet as its config string.
func ModeString(r RuleSet) string {
	switch {
	case r&RuleContinuity != 0:
		return "continuity"
	case r&RulePrefixFlow != 0:
		return "prefix_flow"
	default:
		return "off"
	}
}
