// Package fog holds the authoritative fog-of-war state: per-cell unlock status and per-corner heights.
package fog

import "fmt"

// Type is the fog status of a logical cell, and the label of a uniform quadtree region.
type Type uint8

// Fog type constants. Values are stable and used as region labels.
const (
	Default   Type = 0 // Unset label
	Locked    Type = 1 // Covered by fog (initial state)
	Unlocked  Type = 2 // Revealed; terminal for a cell
	Unlocking Type = 3 // Transient reveal preview; does not change heights
)

// String returns a human-readable type name.
func (t Type) String() string {
	switch t {
	case Default:
		return "Default"
	case Locked:
		return "Locked"
	case Unlocked:
		return "Unlocked"
	case Unlocking:
		return "Unlocking"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// IsValid reports whether t is one of the known fog types.
func (t Type) IsValid() bool {
	return t <= Unlocking
}
