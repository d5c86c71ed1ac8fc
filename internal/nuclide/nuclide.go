// Package nuclide parses and orders material keys.
//
// Isotopic keys follow the GNDS naming used across the tape trees:
// element symbol, mass number, and an optional metastable suffix
// ("H1", "C0", "Am242_m1"). Elemental keys are bare symbols ("Fe").
package nuclide

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Nuclide identifies an isotope by proton count, mass count and metastable state.
type Nuclide struct {
	Z int
	A int
	M int
}

var nameRe = regexp.MustCompile(`^([A-Za-z]+)([0-9]+)(_*)([A-Za-z0-9]*)$`)

// placeholders are the neutron-as-target evaluations shipped inside some
// incident-neutron sublibraries. They never become artifacts.
var placeholders = map[string]struct{}{
	"n1":  {},
	"nn1": {},
}

// IsPlaceholder reports whether key names one of the placeholder evaluations.
// Matching is case-insensitive ("N1" is the same placeholder as "n1").
func IsPlaceholder(key string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Parse reads an isotopic material key.
func Parse(key string) (Nuclide, error) {
	groups := nameRe.FindStringSubmatch(strings.TrimSpace(key))
	if groups == nil {
		return Nuclide{}, fmt.Errorf("nuclide: malformed material key %q", key)
	}
	z, ok := AtomicNumber(groups[1])
	if !ok {
		return Nuclide{}, fmt.Errorf("nuclide: unknown element %q in %q", groups[1], key)
	}
	a, err := strconv.Atoi(groups[2])
	if err != nil {
		return Nuclide{}, fmt.Errorf("nuclide: bad mass number in %q: %w", key, err)
	}
	m := 0
	if meta := groups[4]; meta != "" {
		m, err = strconv.Atoi(strings.TrimPrefix(meta, "m"))
		if err != nil {
			return Nuclide{}, fmt.Errorf("nuclide: bad metastable state in %q: %w", key, err)
		}
	}
	return Nuclide{Z: z, A: a, M: m}, nil
}

// ZAM returns the canonical integer identity used for ordering.
func (n Nuclide) ZAM() int {
	return 10000*n.Z + 10*n.A + n.M
}

// Name returns the GNDS name of the nuclide.
func (n Nuclide) Name() string {
	sym, _ := Symbol(n.Z)
	if n.M > 0 {
		return fmt.Sprintf("%s%d_m%d", sym, n.A, n.M)
	}
	return fmt.Sprintf("%s%d", sym, n.A)
}

func (n Nuclide) String() string { return n.Name() }

// Less orders two nuclides by proton count, then mass count, then metastable state.
func (n Nuclide) Less(o Nuclide) bool {
	return n.ZAM() < o.ZAM()
}

// ElementZ returns the proton count of an elemental key such as "Fe".
func ElementZ(key string) (int, error) {
	z, ok := AtomicNumber(strings.TrimSpace(key))
	if !ok {
		return 0, fmt.Errorf("nuclide: unknown element %q", key)
	}
	return z, nil
}
