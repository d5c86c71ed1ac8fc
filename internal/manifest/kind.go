package manifest

import (
	"fmt"

	"ndforge/internal/nuclide"
)

// Kind is a sublibrary kind as recorded in the manifest "type" attribute.
type Kind string

const (
	Neutron Kind = "neutron"
	Photon  Kind = "photon"
	Thermal Kind = "thermal"
)

// Kinds lists every kind in manifest order.
var Kinds = []Kind{Neutron, Photon, Thermal}

// ParseKind maps a manifest type attribute to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Neutron, Photon, Thermal:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown library type %q", s)
}

// ArtifactDir is the directory, relative to a library root, holding the
// kind's artifacts.
func (k Kind) ArtifactDir() string {
	if k == Thermal {
		return "tsl"
	}
	return string(k)
}

// Sublibraries returns the tape sublibraries a kind is built from. The
// first is the primary one; photon also reads the optional "ard" companion.
func (k Kind) Sublibraries() []string {
	switch k {
	case Neutron:
		return []string{"n"}
	case Photon:
		return []string{"photo", "ard"}
	case Thermal:
		return []string{"tsl"}
	}
	return nil
}

// Sublibrary returns the primary sublibrary of the kind.
func (k Kind) Sublibrary() string {
	return k.Sublibraries()[0]
}

// Less orders material keys canonically: neutron by (Z, A, M), photon by Z,
// thermal by tape name. Keys that cannot be parsed sort after parsed ones,
// by name.
func (k Kind) Less(a, b string) bool {
	switch k {
	case Neutron:
		na, errA := nuclide.Parse(a)
		nb, errB := nuclide.Parse(b)
		if errA == nil && errB == nil {
			if na != nb {
				return na.Less(nb)
			}
			return a < b
		}
		return lessFallback(errA == nil, errB == nil, a, b)
	case Photon:
		za, errA := nuclide.ElementZ(a)
		zb, errB := nuclide.ElementZ(b)
		if errA == nil && errB == nil {
			if za != zb {
				return za < zb
			}
			return a < b
		}
		return lessFallback(errA == nil, errB == nil, a, b)
	}
	return a < b
}

func lessFallback(okA, okB bool, a, b string) bool {
	if okA != okB {
		return okA
	}
	return a < b
}
