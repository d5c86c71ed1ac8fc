// Package build turns resolved sublibraries into build items, runs them on a
// bounded worker pool and assembles the library manifest.
package build

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"ndforge/internal/artifact"
	"ndforge/internal/libspec"
	"ndforge/internal/manifest"
	"ndforge/internal/tape"
)

// Item is one artifact to produce.
type Item struct {
	Kind     manifest.Kind
	Material string
	// Target is the artifact path; RelPath is the same path relative to the
	// library root, as recorded in the manifest.
	Target  string
	RelPath string
	LogPath string
	// Tapes holds the primary tape first and the companion second when the
	// kind has one. For thermal items the primary is the neutron tape.
	Tapes        []tape.Tape
	Temperatures []int
	// Companion is the neutron material a thermal item is coupled to.
	Companion string
}

func (it Item) String() string {
	return fmt.Sprintf("%s/%s", it.Kind, it.Material)
}

// Trace is the dry-run line of the item: target <- tapes.
func (it Item) Trace() string {
	paths := make([]string, len(it.Tapes))
	for i, t := range it.Tapes {
		paths[i] = t.Path
	}
	return fmt.Sprintf("%s <- %s", it.Target, strings.Join(paths, ", "))
}

// newItem lays out the paths of an item under root:
// <root>/<kind dir>/<key>.ndf and <root>/<kind dir>/logs/<key>.log.
func newItem(root string, kind manifest.Kind, material string, tapes []tape.Tape, temps []int) Item {
	rel := filepath.Join(kind.ArtifactDir(), material+artifact.Extension)
	return Item{
		Kind:         kind,
		Material:     material,
		Target:       filepath.Join(root, rel),
		RelPath:      filepath.ToSlash(rel),
		LogPath:      filepath.Join(root, kind.ArtifactDir(), "logs", material+".log"),
		Tapes:        tapes,
		Temperatures: temps,
	}
}

// Plan is the input of one orchestrator run.
type Plan struct {
	Items []Item
	// Reused entries are registered before built ones, in this order.
	Reused      []manifest.Entry
	Parallelism int
	DryRun      bool
}

// Validate checks that targets and log paths are disjoint across items.
func (p *Plan) Validate() error {
	targets := make(map[string]Item, len(p.Items))
	logs := make(map[string]Item, len(p.Items))
	for _, it := range p.Items {
		if len(it.Tapes) == 0 {
			return libspec.Errorf("%s has no source tape", it)
		}
		if prev, ok := targets[it.Target]; ok {
			return libspec.Errorf("%s and %s both write %s", prev, it, it.Target)
		}
		if prev, ok := logs[it.LogPath]; ok {
			return libspec.Errorf("%s and %s both log to %s", prev, it, it.LogPath)
		}
		targets[it.Target] = it
		logs[it.LogPath] = it
	}
	return nil
}

// ErrBuildFailure is the sentinel of every BuildFailure.
var ErrBuildFailure = errors.New("build failure")

// BuildFailure wraps the first item failure of a run.
type BuildFailure struct {
	Item Item
	Err  error
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBuildFailure, e.Item, e.Err)
}

func (e *BuildFailure) Unwrap() []error {
	return []error{ErrBuildFailure, e.Err}
}
