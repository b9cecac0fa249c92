package domain

import (
	"fmt"
)

// ParameterSpec describes one handler parameter whose legal values form a
// small, fully enumerable set. Values keep the order the type declared them
// in; that order is what makes enumeration reproducible across runs.
type ParameterSpec struct {
	Name   string
	Values []string
}

// Validate checks the invariants every spec must hold: at least one value,
// and no two values that collide.
func (s ParameterSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("parameter spec has empty name")
	}
	if len(s.Values) == 0 {
		return fmt.Errorf("parameter %q has no values", s.Name)
	}

	seen := make(map[string]struct{}, len(s.Values))
	for _, v := range s.Values {
		if _, dup := seen[v]; dup {
			return fmt.Errorf("parameter %q has duplicate value %q", s.Name, v)
		}
		seen[v] = struct{}{}
	}

	return nil
}

// Assignment maps parameter names to one chosen value each: a single point
// in the combination space.
type Assignment map[string]string

// Clone returns an independent copy. Enumerator consumers may hold
// assignments across iterations, so the iterator never reuses a map.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
