package remediate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ndforge/internal/artifact"
	"ndforge/internal/manifest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// material describes one artifact: grid and channel values per temperature.
type material struct {
	name   string
	grid   []float64
	tables map[int]map[int][]float64 // kelvin -> channel -> values
}

func writeLibrary(t *testing.T, name string, mats ...material) *Library {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	m := manifest.New()
	for _, mat := range mats {
		rel := filepath.Join("neutron", mat.name+artifact.Extension)
		a, err := artifact.Create(filepath.Join(dir, rel), mat.name)
		require.NoError(t, err)
		var slices []artifact.Slice
		for k, channels := range mat.tables {
			s := artifact.Slice{Kelvin: k, KT: float64(k) * 8.617333262e-5, Grid: mat.grid, Tables: map[int]artifact.Table{}}
			for c, vals := range channels {
				s.Tables[c] = artifact.Table{Values: vals, Attrs: map[string]string{artifact.ThresholdAttr: "0", "label": "xs"}}
			}
			slices = append(slices, s)
		}
		require.NoError(t, a.WriteSlices(slices...))
		require.NoError(t, a.Close())
		require.NoError(t, m.Add(manifest.Entry{Kind: manifest.Neutron, Material: mat.name, Path: filepath.ToSlash(rel)}))
	}
	require.NoError(t, m.Save(filepath.Join(dir, manifest.FileName)))

	lib, err := LoadLibrary(name, dir)
	require.NoError(t, err)
	return lib
}

func readTable(t *testing.T, lib *Library, mat string, channel, kelvin int) artifact.Table {
	t.Helper()
	path, ok := lib.Path(mat)
	require.True(t, ok)
	a, err := artifact.OpenReadOnly(path)
	require.NoError(t, err)
	defer a.Close()
	tbl, err := a.Table(channel, kelvin)
	require.NoError(t, err)
	return tbl
}

func TestInterp(t *testing.T) {
	xp := []float64{1, 3, 5}
	fp := []float64{10, 30, 70}
	got, err := Interp([]float64{0, 1, 2, 3, 4, 5, 9}, xp, fp)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{10, 10, 20, 30, 50, 70, 70}, got); diff != "" {
		t.Errorf("Interp() mismatch (-want +got):\n%s", diff)
	}

	_, err = Interp([]float64{1}, xp, fp[:2])
	assert.Error(t, err)
	_, err = Interp([]float64{1}, nil, nil)
	assert.Error(t, err)
}

func TestResample_Threshold(t *testing.T) {
	// Donor values start at grid point 1, target values at grid point 2.
	donorGrid := []float64{1, 2, 4, 6}
	donorVals := []float64{20, 40, 60}
	targetGrid := []float64{1, 2, 3, 5}

	got, err := resample(targetGrid, 2, donorGrid, 1, donorVals)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 50}, got)

	_, err = resample(targetGrid, 5, donorGrid, 1, donorVals)
	assert.Error(t, err)
	_, err = resample(targetGrid, 0, donorGrid, 2, donorVals)
	assert.Error(t, err)
}

func scenarioD(t *testing.T) (target *Library, sources []*Library) {
	t.Helper()
	target = writeLibrary(t, "target",
		material{name: "Fe56", grid: []float64{1, 2, 3, 4}, tables: map[int]map[int][]float64{
			293: {301: {-1, 2, 3, 4}},
			600: {301: {1, 2, 3, 4}},
		}},
		material{name: "Cr52", grid: []float64{1, 2, 3}, tables: map[int]map[int][]float64{
			293: {301: {-5, 1, -2}, 2: {-3, 1, 1}},
			600: {301: {0, 1, 2}},
		}},
		material{name: "H1", grid: []float64{1, 2}, tables: map[int]map[int][]float64{
			293: {301: {1, 1}},
		}},
	)
	s1 := writeLibrary(t, "S1",
		material{name: "Fe56", grid: []float64{1, 4}, tables: map[int]map[int][]float64{
			293: {301: {-7, 7}},
			600: {301: {7, 7}},
		}},
	)
	s2 := writeLibrary(t, "S2",
		material{name: "Fe56", grid: []float64{1, 3, 5}, tables: map[int]map[int][]float64{
			293: {301: {10, 30, 50}},
			600: {301: {100, 300, 500}},
		}},
	)
	return target, []*Library{s1, s2}
}

func TestScan(t *testing.T) {
	target, _ := scenarioD(t)
	f, err := Scan(context.Background(), target.Manifest, target.Dir, 301)
	require.NoError(t, err)

	assert.Equal(t, []string{"Cr52", "Fe56"}, f.Materials())
	assert.Equal(t, []int{293}, f["Fe56"].Temperatures)
	assert.Equal(t, []int{293}, f["Cr52"].Temperatures)
	assert.True(t, f.Offending("Fe56", []int{293, 600}))
	assert.False(t, f.Offending("Fe56", []int{600}))
	assert.False(t, f.Offending("H1", nil))

	// Channel 2 is negative only for Cr52; H1 has no channel 2 at all.
	f2, err := Scan(context.Background(), target.Manifest, target.Dir, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cr52"}, f2.Materials())
}

func TestPass_ScenarioD(t *testing.T) {
	target, sources := scenarioD(t)
	pass := &Pass{Target: target, Sources: sources, Channel: 301}
	report, err := pass.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Decisions, 3)
	byMat := make(map[string]Decision)
	for _, d := range report.Decisions {
		byMat[d.Material] = d
	}
	assert.Equal(t, ActionNone, byMat["H1"].Action)

	fe := byMat["Fe56"]
	assert.Equal(t, ActionReplace, fe.Action)
	assert.Equal(t, "S2", fe.Donor)
	assert.Equal(t, []Rejection{{Source: "S1", Reason: "also negative"}}, fe.Rejected)

	cr := byMat["Cr52"]
	assert.Equal(t, ActionZeroFill, cr.Action)
	assert.Equal(t, []int{293}, cr.Offending)

	// Fe56: every target temperature resampled from S2 onto the target grid.
	got := readTable(t, target, "Fe56", 301, 293)
	assert.Equal(t, []float64{10, 20, 30, 40}, got.Values)
	assert.Equal(t, map[string]string{artifact.ThresholdAttr: "0", "label": "xs"}, got.Attrs)
	assert.Equal(t, []float64{100, 200, 300, 400}, readTable(t, target, "Fe56", 301, 600).Values)

	// Cr52: only negatives at the offending temperature of the channel change.
	assert.Equal(t, []float64{0, 1, 0}, readTable(t, target, "Cr52", 301, 293).Values)
	assert.Equal(t, []float64{0, 1, 2}, readTable(t, target, "Cr52", 301, 600).Values)
	assert.Equal(t, []float64{-3, 1, 1}, readTable(t, target, "Cr52", 2, 293).Values)

	assert.Equal(t, 1, report.Count(ActionReplace))
	assert.Equal(t, 1, report.Count(ActionZeroFill))
}

func TestPass_Converges(t *testing.T) {
	target, sources := scenarioD(t)
	pass := &Pass{Target: target, Sources: sources, Channel: 301}
	_, err := pass.Run(context.Background())
	require.NoError(t, err)

	f, err := Scan(context.Background(), target.Manifest, target.Dir, 301)
	require.NoError(t, err)
	assert.Empty(t, f)

	again, err := pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, again.Count(ActionNone))
}

func TestPass_DryRun(t *testing.T) {
	target, sources := scenarioD(t)
	before := make(map[string][]byte)
	for _, e := range target.Manifest.Entries() {
		path := target.Manifest.ResolvePath(target.Dir, e)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		before[path] = data
	}

	report, err := (&Pass{Target: target, Sources: sources, Channel: 301, DryRun: true}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Count(ActionReplace))
	assert.Equal(t, 1, report.Count(ActionZeroFill))

	for path, data := range before {
		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, data, after, "%s changed during a dry run", path)
	}
}

func TestPass_DonorMissingTemperature(t *testing.T) {
	target := writeLibrary(t, "target",
		material{name: "Fe56", grid: []float64{1, 2}, tables: map[int]map[int][]float64{
			293: {301: {-1, 1}},
			600: {301: {1, 1}},
		}},
	)
	partial := writeLibrary(t, "partial",
		material{name: "Fe56", grid: []float64{1, 2}, tables: map[int]map[int][]float64{
			293: {301: {5, 5}},
		}},
	)
	empty := writeLibrary(t, "empty")
	full := writeLibrary(t, "full",
		material{name: "Fe56", grid: []float64{1, 2}, tables: map[int]map[int][]float64{
			293: {301: {3, 3}},
			600: {301: {4, 4}},
		}},
	)

	report, err := (&Pass{Target: target, Sources: []*Library{empty, partial, full}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultChannel, report.Channel)
	require.Len(t, report.Decisions, 1)

	d := report.Decisions[0]
	assert.Equal(t, ActionReplace, d.Action)
	assert.Equal(t, "full", d.Donor)
	require.Len(t, d.Rejected, 2)
	assert.Equal(t, "material not in library", d.Rejected[0].Reason)
	assert.Contains(t, d.Rejected[1].Reason, "missing temperatures [600]")
	assert.Equal(t, []float64{3, 3}, readTable(t, target, "Fe56", 301, 293).Values)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "none", ActionNone.String())
	assert.Equal(t, "replace", ActionReplace.String())
	assert.Equal(t, "zero-fill", ActionZeroFill.String())
}
