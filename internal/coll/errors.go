package coll

import (
	"errors"

	"github.com/plasmakit/collide/internal/plasma"
)

// Per-lane errors reported by the collision operator.
var (
	// ErrDomain indicates a background/field lookup outside the valid grid.
	// The step is skipped for that particle; the caller decides what next.
	ErrDomain = plasma.ErrDomain

	// ErrCapacity indicates a full Wiener path. The particle should be
	// terminated by the caller, never silently truncated.
	ErrCapacity = errors.New("coll: wiener path capacity exceeded")

	// ErrPathOrigin indicates a Wiener query before the path origin.
	ErrPathOrigin = errors.New("coll: no wiener process at or before requested time")

	// ErrNumerical indicates the push produced a non-finite or unphysical
	// value. Indicates a modeling or tolerance failure.
	ErrNumerical = errors.New("coll: collision operator yields NaN or Inf")

	// ErrConfig indicates invalid operator setup, e.g. too many species.
	ErrConfig = errors.New("coll: invalid operator configuration")
)

// Describe returns a human-readable description for an operator error.
func Describe(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCapacity):
		return "number of slots in Wiener array exceeded"
	case errors.Is(err, ErrPathOrigin):
		return "no associated Wiener process found"
	case errors.Is(err, ErrNumerical):
		return "collision operator yields NaN or Inf"
	case errors.Is(err, ErrDomain):
		return "background lookup outside valid domain"
	case errors.Is(err, ErrConfig):
		return "invalid operator configuration"
	default:
		return "unknown error: " + err.Error()
	}
}
