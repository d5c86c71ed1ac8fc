package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Less(t *testing.T) {
	tests := []struct {
		kind Kind
		in   []string
		want []string
	}{
		{Neutron, []string{"U235", "Am242_m1", "H2", "Am242", "H1", "C12"}, []string{"H1", "H2", "C12", "U235", "Am242", "Am242_m1"}},
		{Photon, []string{"U", "O", "H", "Fe"}, []string{"H", "O", "Fe", "U"}},
		{Thermal, []string{"tsl_0002_para-H", "tsl_0001_H(H2O)"}, []string{"tsl_0001_H(H2O)", "tsl_0002_para-H"}},
		{Neutron, []string{"weird", "H1"}, []string{"H1", "weird"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := append([]string(nil), tt.in...)
			sort.Slice(got, func(i, j int) bool { return tt.kind.Less(got[i], got[j]) })
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Less mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestKind_Layout(t *testing.T) {
	assert.Equal(t, "tsl", Thermal.ArtifactDir())
	assert.Equal(t, "neutron", Neutron.ArtifactDir())
	assert.Equal(t, []string{"photo", "ard"}, Photon.Sublibraries())
	assert.Equal(t, "n", Neutron.Sublibrary())

	k, err := ParseKind("thermal")
	require.NoError(t, err)
	assert.Equal(t, Thermal, k)
	_, err = ParseKind("decay")
	assert.Error(t, err)
}

func TestManifest_AddLookup(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(Entry{Kind: Neutron, Material: "H1", Path: "neutron/H1.ndf"}))
	require.NoError(t, m.Add(Entry{Kind: Photon, Material: "H", Path: "photon/H.ndf"}))
	assert.Error(t, m.Add(Entry{Kind: Neutron, Material: "H1", Path: "other.ndf"}))

	e, ok := m.Lookup(Neutron, "H1")
	require.True(t, ok)
	assert.Equal(t, "neutron/H1.ndf", e.Path)
	_, ok = m.Lookup(Photon, "H1")
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, map[Kind]int{Neutron: 1, Photon: 1}, m.Count())
}

func TestAssemble_Order(t *testing.T) {
	reused := []Entry{
		{Kind: Neutron, Material: "U235", Path: "../old/neutron/U235.ndf", Origin: OriginReused, Source: "old"},
		{Kind: Neutron, Material: "H2", Path: "../old/neutron/H2.ndf", Origin: OriginReused, Source: "old"},
	}
	built := []Entry{
		{Kind: Thermal, Material: "tsl_0001_H(H2O)", Path: "tsl/tsl_0001_H(H2O).ndf"},
		{Kind: Neutron, Material: "O16", Path: "neutron/O16.ndf"},
		{Kind: Photon, Material: "O", Path: "photon/O.ndf"},
		{Kind: Neutron, Material: "H1", Path: "neutron/H1.ndf"},
		{Kind: Photon, Material: "H", Path: "photon/H.ndf"},
	}

	m, err := Assemble("", reused, built)
	require.NoError(t, err)

	var got []string
	for _, e := range m.Entries() {
		got = append(got, string(e.Kind)+":"+e.Material)
	}
	want := []string{
		"neutron:U235", "neutron:H2", "neutron:H1", "neutron:O16",
		"photon:H", "photon:O",
		"thermal:tsl_0001_H(H2O)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Assemble order mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_Golden(t *testing.T) {
	m := New()
	m.Directory = "data"
	require.NoError(t, m.Add(Entry{Kind: Neutron, Material: "H1", Path: "neutron/H1.ndf"}))
	require.NoError(t, m.Add(Entry{Kind: Thermal, Material: "c_H_in_H2O", Path: "tsl/c_H_in_H2O.ndf"}))

	got, err := m.Encode()
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="UTF-8"?>
<cross_sections>
  <directory>data</directory>
  <library materials="H1" path="neutron/H1.ndf" type="neutron"/>
  <library materials="c_H_in_H2O" path="tsl/c_H_in_H2O.ndf" type="thermal"/>
</cross_sections>
`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoad_ByteStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	m, err := Assemble("", nil, []Entry{
		{Kind: Neutron, Material: "U235", Path: "neutron/U235.ndf"},
		{Kind: Neutron, Material: "H1", Path: "neutron/H1.ndf"},
		{Kind: Photon, Material: "U", Path: "photon/U.ndf"},
	})
	require.NoError(t, err)
	require.NoError(t, m.Save(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, loaded.Save(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.xml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.xml")
	require.NoError(t, os.WriteFile(bad, []byte(`<cross_sections><library materials="H1" path="x" type="decay"/></cross_sections>`), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	m := New()
	e := Entry{Kind: Neutron, Material: "H1", Path: "neutron/H1.ndf"}
	assert.Equal(t, filepath.Join("/lib", "neutron/H1.ndf"), m.ResolvePath("/lib", e))

	m.Directory = "data"
	assert.Equal(t, filepath.Join("/lib", "data", "neutron/H1.ndf"), m.ResolvePath("/lib", e))

	abs := Entry{Kind: Neutron, Material: "H1", Path: "/elsewhere/H1.ndf"}
	assert.Equal(t, "/elsewhere/H1.ndf", m.ResolvePath("/lib", abs))
}
