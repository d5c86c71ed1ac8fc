package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"ndforge/internal/artifact"
	"ndforge/internal/config"
	"ndforge/internal/libspec"
	"ndforge/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driver writes a marker file at --output.
const driver = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
echo "converted" > "$out"
`

type workspace struct {
	root     string
	settings string
	cfg      *config.Config
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("the test driver needs a POSIX shell")
	}
	root := t.TempDir()
	ws := &workspace{root: root, settings: filepath.Join(root, "settings.yml")}

	drv := filepath.Join(root, "driver.sh")
	require.NoError(t, os.WriteFile(drv, []byte(driver), 0755))

	c := config.DefaultConfig()
	c.TapeRoot = filepath.Join(root, "endf6")
	c.LibraryRoot = filepath.Join(root, "libs")
	c.Toolchain.Command = drv
	c.Logging.Level = "error"
	require.NoError(t, c.Save(ws.settings))
	ws.cfg = c

	for _, k := range []string{"H1", "O16"} {
		dir := filepath.Join(c.TapeRoot, "L1", "n")
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, k+".endf6"), []byte(k), 0644))
	}
	return ws
}

// execute runs the root command and returns its output.
func (ws *workspace) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--config", ws.settings}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags() {
	verbose = false
	buildJobs, buildDryRun, buildTemperatures = 0, false, ""
	buildClean, buildYes, buildWatch = false, false, false
	remediateSources, remediateChannel, remediateDryRun = nil, 301, false
	scanChannel = 301
	infoRaw = false
}

func (ws *workspace) writeSpec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(ws.root, "spec.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

const cliSpec = `name: demo
summary: Demo library
description: Built by the CLI test.
neutron:
  base: L1
  omit: O16
  temperatures: 293
`

func TestBuildCommand(t *testing.T) {
	ws := newWorkspace(t)
	spec := ws.writeSpec(t, cliSpec)

	out, err := ws.execute(t, "build", spec, "-j", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1/1")
	assert.Contains(t, out, "neutron/H1")

	m, err := manifest.Load(ws.cfg.ManifestPath("demo"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.FileExists(t, filepath.Join(ws.cfg.LibraryDir("demo"), "input.yml"))
}

func TestBuildCommand_DryRun(t *testing.T) {
	ws := newWorkspace(t)
	spec := ws.writeSpec(t, cliSpec)

	out, err := ws.execute(t, "build", spec, "--dry-run", "-T", "293 600")
	require.NoError(t, err, out)
	assert.Contains(t, out, "H1.endf6")
	assert.Contains(t, out, "1 items would be built")
	assert.NoDirExists(t, ws.cfg.LibraryDir("demo"))
}

func TestBuildCommand_CleanNeedsConfirmation(t *testing.T) {
	ws := newWorkspace(t)
	spec := ws.writeSpec(t, cliSpec)
	_, err := ws.execute(t, "build", spec)
	require.NoError(t, err)

	out, err := ws.execute(t, "build", spec, "--clean")
	require.NoError(t, err)
	assert.Contains(t, out, "aborted")
	assert.FileExists(t, ws.cfg.ManifestPath("demo"))
}

func TestBuildCommand_BadSpec(t *testing.T) {
	ws := newWorkspace(t)
	spec := ws.writeSpec(t, "name: demo\nneutron:\n  base: L1\n  bogus: 1\n")

	_, err := ws.execute(t, "build", spec)
	require.Error(t, err)
	assert.ErrorIs(t, err, libspec.ErrConfiguration)
}

func TestInfoCommand(t *testing.T) {
	ws := newWorkspace(t)
	spec := ws.writeSpec(t, cliSpec)
	_, err := ws.execute(t, "build", spec)
	require.NoError(t, err)

	out, err := ws.execute(t, "info", "demo", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "# demo")
	assert.Contains(t, out, "*Demo library*")
	assert.Contains(t, out, "| neutron | 1 | 0 |")
	assert.Contains(t, out, "base `L1`")
}

// writeNeutronLibrary creates a library whose materials carry the given
// channel 301 values at 293K.
func writeNeutronLibrary(t *testing.T, dir string, values map[string][]float64) {
	t.Helper()
	m := manifest.New()
	for mat, vals := range values {
		rel := filepath.Join("neutron", mat+artifact.Extension)
		a, err := artifact.Create(filepath.Join(dir, rel), mat)
		require.NoError(t, err)
		require.NoError(t, a.WriteSlices(artifact.Slice{
			Kelvin: 293, KT: 0.025, Grid: []float64{1, 2},
			Tables: map[int]artifact.Table{301: {Values: vals}},
		}))
		require.NoError(t, a.Close())
		require.NoError(t, m.Add(manifest.Entry{Kind: manifest.Neutron, Material: mat, Path: filepath.ToSlash(rel)}))
	}
	require.NoError(t, m.Save(filepath.Join(dir, manifest.FileName)))
}

func TestScanAndRemediateCommands(t *testing.T) {
	ws := newWorkspace(t)
	writeNeutronLibrary(t, ws.cfg.LibraryDir("target"), map[string][]float64{"H1": {-1, 1}, "O16": {1, 1}})
	writeNeutronLibrary(t, ws.cfg.LibraryDir("donor"), map[string][]float64{"H1": {2, 2}})

	out, err := ws.execute(t, "scan", "target")
	require.NoError(t, err)
	assert.Contains(t, out, "H1 negative at [293]")
	assert.NotContains(t, out, "O16")

	out, err = ws.execute(t, "remediate", "target", "--sources", "donor", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")
	assert.Contains(t, out, "1 clean, 1 replaced, 0 zero-filled")

	out, err = ws.execute(t, "remediate", "target", "--sources", "donor")
	require.NoError(t, err)
	assert.Contains(t, out, "1 replaced")

	out, err = ws.execute(t, "scan", "target")
	require.NoError(t, err)
	assert.Contains(t, out, "no negative values")
}
