// Package remediate finds and repairs negative values in one reaction
// channel of a built library's neutron artifacts.
package remediate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"ndforge/internal/artifact"
	"ndforge/internal/logging"
	"ndforge/internal/manifest"

	"go.uber.org/multierr"
)

// DefaultChannel is the heating channel, the usual source of negatives.
const DefaultChannel = 301

// Finding lists the temperatures at which one material's channel table
// holds a negative value.
type Finding struct {
	Material     string
	Path         string
	Temperatures []int
}

// Findings maps material -> finding. Clean materials are absent.
type Findings map[string]Finding

// Materials returns the offending materials in canonical order.
func (f Findings) Materials() []string {
	out := make([]string, 0, len(f))
	for m := range f {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return manifest.Neutron.Less(out[i], out[j]) })
	return out
}

// Offending reports whether material is negative at any of temps.
// An empty temps matches any offending temperature.
func (f Findings) Offending(material string, temps []int) bool {
	fd, ok := f[material]
	if !ok {
		return false
	}
	if len(temps) == 0 {
		return len(fd.Temperatures) > 0
	}
	want := make(map[int]bool, len(temps))
	for _, t := range temps {
		want[t] = true
	}
	for _, t := range fd.Temperatures {
		if want[t] {
			return true
		}
	}
	return false
}

// Library is a built library opened through its manifest.
type Library struct {
	Name     string
	Dir      string
	Manifest *manifest.Manifest
}

// LoadLibrary reads the manifest of the library stored in dir.
func LoadLibrary(name, dir string) (*Library, error) {
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, err
	}
	return &Library{Name: name, Dir: dir, Manifest: m}, nil
}

// Path returns the artifact path of a neutron material, or false.
func (l *Library) Path(material string) (string, bool) {
	e, ok := l.Manifest.Lookup(manifest.Neutron, material)
	if !ok {
		return "", false
	}
	return l.Manifest.ResolvePath(l.Dir, e), true
}

// Scan opens every neutron artifact of m, read-only, and records the
// temperatures where the channel table has a negative value. Artifacts
// without the channel are clean.
func Scan(ctx context.Context, m *manifest.Manifest, dir string, channel int) (Findings, error) {
	out := make(Findings)
	for _, e := range m.OfKind(manifest.Neutron) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := m.ResolvePath(dir, e)
		temps, err := negativeTemperatures(path, channel)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.Material, err)
		}
		if len(temps) > 0 {
			logging.RemediateDebug("%s: channel %d negative at %v", e.Material, channel, temps)
			out[e.Material] = Finding{Material: e.Material, Path: path, Temperatures: temps}
		}
	}
	return out, nil
}

func negativeTemperatures(path string, channel int) (temps []int, err error) {
	a, err := artifact.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	all, err := channelTemperatures(a, channel)
	if err != nil {
		return nil, err
	}
	for _, k := range all {
		t, err := a.Table(channel, k)
		if err != nil {
			return nil, err
		}
		if hasNegative(t.Values) {
			temps = append(temps, k)
		}
	}
	return temps, nil
}

// channelTemperatures returns the temperatures at which a has a table for
// channel, ascending.
func channelTemperatures(a *artifact.Artifact, channel int) ([]int, error) {
	all, err := a.Temperatures()
	if err != nil {
		return nil, err
	}
	var out []int
	for _, k := range all {
		ok, err := a.HasTable(channel, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func hasNegative(vals []float64) bool {
	for _, v := range vals {
		if v < 0 {
			return true
		}
	}
	return false
}
