package resolve

import (
	_ "embed"
	"fmt"
	"sort"

	"ndforge/internal/libspec"
	"ndforge/internal/logging"
	"ndforge/internal/manifest"
	"ndforge/internal/tape"

	"gopkg.in/yaml.v3"
)

//go:embed coupling.yaml
var couplingYAML []byte

// CouplingTable maps library -> thermal tape -> companion neutron material.
type CouplingTable map[string]map[string]string

// DefaultCouplingTable parses the table shipped with ndforge.
func DefaultCouplingTable() (CouplingTable, error) {
	var t CouplingTable
	if err := yaml.Unmarshal(couplingYAML, &t); err != nil {
		return nil, fmt.Errorf("failed to parse coupling table: %w", err)
	}
	return t, nil
}

// Companion returns the companion material of a thermal tape of library.
func (t CouplingTable) Companion(library, tapeKey string) (string, bool) {
	m, ok := t[library]
	if !ok {
		return "", false
	}
	c, ok := m[tapeKey]
	return c, ok
}

// Couple pairs one thermal tape with its companion neutron tape.
type Couple struct {
	Thermal   tape.Tape
	Companion tape.Tape
	// Material is the companion neutron material after substitution.
	Material     string
	Temperatures []int
}

// Coupling is the thermal resolution and its couples, sorted by tape name.
type Coupling struct {
	Resolution *Resolution
	Couples    []Couple
}

// Couple resolves the thermal request and pairs every tape with a companion
// from the neutron resolution.
func (r *Resolver) Couple(req *libspec.Request, primary *Resolution) (*Coupling, error) {
	res, err := r.Resolve(manifest.Thermal, manifest.Thermal.Sublibrary(), req)
	if err != nil {
		return nil, err
	}

	targets := make(map[string]string)
	for _, lib := range req.AddLibraries() {
		for _, e := range req.Add[lib] {
			targets[e.Key] = e.Target
		}
	}

	keys := make([]string, 0, len(res.Tapes))
	for k := range res.Tapes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &Coupling{Resolution: res}
	for _, key := range keys {
		thermal := res.Tapes[key]

		material, ok := targets[key]
		if !ok {
			material, ok = r.Coupling.Companion(thermal.Library, key)
			if !ok {
				return nil, &MissingCompanionError{Tape: key}
			}
		}
		if sub, ok := req.Substitute[material]; ok {
			logging.ResolveDebug("thermal %s: companion %s substituted by %s", key, material, sub)
			material = sub
		}

		companion, err := r.companionTape(primary, material)
		if err != nil {
			return nil, &MissingCompanionError{Tape: key, Companion: material, Err: err}
		}
		out.Couples = append(out.Couples, Couple{
			Thermal:      thermal,
			Companion:    companion,
			Material:     material,
			Temperatures: req.TemperaturesFor(key),
		})
	}
	logging.Resolve("coupled %d thermal tapes", len(out.Couples))
	return out, nil
}

// companionTape finds material in the neutron resolution. A material reused
// from a prior library is taken from the base library's tape when the index
// has it.
func (r *Resolver) companionTape(primary *Resolution, material string) (tape.Tape, error) {
	if primary == nil {
		return tape.Tape{}, fmt.Errorf("no neutron resolution")
	}
	if t, ok := primary.Tapes[material]; ok {
		return t, nil
	}
	if !primary.IsReused(material) || primary.Base == "" {
		return tape.Tape{}, fmt.Errorf("%s not resolved", material)
	}
	return r.Index.Lookup(primary.Base, primary.Sub, material)
}
