package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EntityType enumerates the dataset kinds managed by the registry. The set is
// closed: reference hop rules and mandatory-field validation are defined per
// type, so a new type means touching the hop-rule table, never the walker.
type EntityType string

const (
	TypeProcess      EntityType = "PROCESS"
	TypeFlow         EntityType = "FLOW"
	TypeFlowProperty EntityType = "FLOW_PROPERTY"
	TypeUnitGroup    EntityType = "UNIT_GROUP"
	TypeUnit         EntityType = "UNIT"
	TypeSource       EntityType = "SOURCE"
	TypeContact      EntityType = "CONTACT"
)

// KnownEntityTypes lists every supported type.
var KnownEntityTypes = []EntityType{
	TypeProcess, TypeFlow, TypeFlowProperty, TypeUnitGroup, TypeUnit, TypeSource, TypeContact,
}

// Valid reports whether t is one of the supported entity types.
func (t EntityType) Valid() bool {
	switch t {
	case TypeProcess, TypeFlow, TypeFlowProperty, TypeUnitGroup, TypeUnit, TypeSource, TypeContact:
		return true
	}
	return false
}

// Version is a dotted MAJOR.MINOR.PATCH triplet, rendered zero-padded as
// "01.00.000" so the padded form sorts lexicographically in the same order as
// the numeric comparison.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "MM.mm.ppp" style version strings. Components may be
// unpadded on input; the canonical rendering pads them.
func ParseVersion(raw string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version %q: expected MAJOR.MINOR.PATCH", raw)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("version %q: component %q is not a non-negative integer", raw, p)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseVersion panics on malformed input. Test helper.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the canonical zero-padded form.
func (v Version) String() string {
	return fmt.Sprintf("%02d.%02d.%03d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 ordering versions numerically.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return sign(v.Major - other.Major)
	}
	if v.Minor != other.Minor {
		return sign(v.Minor - other.Minor)
	}
	return sign(v.Patch - other.Patch)
}

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// IsZero reports whether v is the zero version.
func (v Version) IsZero() bool { return v == Version{} }

// NextMinor returns the version with the minor component bumped, used when a
// rejected dataset is resubmitted as a fresh draft.
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// MarshalJSON renders the padded string form.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON accepts the string form.
func (v *Version) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseVersion(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// EntityRef is a typed, versioned pointer from one dataset document to
// another. Identity of the target is the (ID, Version) pair; Type selects the
// hop rule used when the reference participates in a chain.
type EntityRef struct {
	Type    EntityType `json:"type"`
	ID      string     `json:"id"`
	Version Version    `json:"version"`
	URI     string     `json:"uri,omitempty"`
}

// Key returns the (id, version) identity string used for cycle detection and
// cache addressing.
func (r EntityRef) Key() string {
	return r.ID + "@" + r.Version.String()
}

// MaxChainDepth bounds reference chains in the current domain
// (flow -> flow property -> unit group -> unit).
const MaxChainDepth = 4

// ReferenceChain is an ordered list of hops resolved left to right. Chains
// are acyclic and bounded; a cycle or overflow is a hard validation failure,
// never a silent truncation.
type ReferenceChain []EntityRef
