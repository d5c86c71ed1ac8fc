package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ndforge/internal/artifact"
	"ndforge/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_RebuildsOnChange(t *testing.T) {
	e := newEnv(t)
	specPath := filepath.Join(e.specDir, "w.yml")
	require.NoError(t, os.WriteFile(specPath, []byte("name: w\nneutron:\n  base: L1\n  temperatures: 293\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	results := make(chan outcome, 8)
	done := make(chan error, 1)
	go func() {
		done <- e.builder.Watch(ctx, specPath, Options{}, func(res *Result, err error) {
			results <- outcome{res, err}
		})
	}()

	next := func() outcome {
		t.Helper()
		select {
		case o := <-results:
			return o
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for a build")
			return outcome{}
		}
	}

	first := next()
	require.NoError(t, first.err)
	assert.Equal(t, 2, first.res.Manifest.Len())

	// Editors replace the file on save; the rename lands as one create event.
	require.NoError(t, manifest.WriteFileAtomic(specPath, []byte("name: w\nneutron:\n  base: L1\n  temperatures: 293 600\n"), 0644))
	second := next()
	require.NoError(t, second.err)

	temps, err := artifact.ReadTemperatures(filepath.Join(e.cfg.LibraryDir("w"), "neutron", "H1.ndf"))
	require.NoError(t, err)
	assert.Equal(t, []int{293, 600}, temps)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_ReportsBadSpec(t *testing.T) {
	e := newEnv(t)
	specPath := filepath.Join(e.specDir, "bad.yml")
	require.NoError(t, os.WriteFile(specPath, []byte("name: bad\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	var got error
	err := e.builder.Watch(ctx, specPath, Options{}, func(_ *Result, err error) {
		got = err
		cancel()
	})
	require.NoError(t, err)
	assert.Error(t, got)
}
