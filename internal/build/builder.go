package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ndforge/internal/artifact"
	"ndforge/internal/config"
	"ndforge/internal/libspec"
	"ndforge/internal/logging"
	"ndforge/internal/manifest"
	"ndforge/internal/resolve"
	"ndforge/internal/tape"
	"ndforge/internal/toolchain"

	"github.com/google/uuid"
)

// InputFile is the copy of the spec stored next to a built library.
const InputFile = "input.yml"

// Options tune one Build call.
type Options struct {
	DryRun bool
	// Parallelism overrides the configured worker count when > 0.
	Parallelism int
	// Clean removes the library directory before building.
	Clean bool
	// Temperatures overrides the neutron temperatures of the spec when set.
	Temperatures []int
	Observer     Observer
}

// Result describes a finished build.
type Result struct {
	RunID string
	Root  string
	Plan  *Plan
	// Manifest is nil for dry runs.
	Manifest *manifest.Manifest
	Warnings []string
}

// Builder wires resolution, planning and orchestration for one config.
type Builder struct {
	cfg       *config.Config
	resolver  *resolve.Resolver
	toolchain toolchain.Toolchain
}

// NewBuilder creates a builder. A nil index uses a DirIndex over the
// configured tape root; a nil toolchain runs the configured command.
func NewBuilder(cfg *config.Config, index tape.Index, tc toolchain.Toolchain) (*Builder, error) {
	if index == nil {
		index = tape.NewDirIndex(cfg.TapeRoot)
	}
	if tc == nil {
		tc = toolchain.NewExecToolchain(cfg.Toolchain)
	}
	r, err := resolve.New(index, cfg.LibraryRoot)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, resolver: r, toolchain: tc}, nil
}

// Plan resolves every block of spec into build items under root.
func (b *Builder) Plan(spec *libspec.Spec, root string) (*Plan, error) {
	plan := &Plan{Parallelism: b.cfg.Build.Parallelism}

	var neutron *resolve.Resolution
	if spec.Neutron != nil {
		res, err := b.resolver.Resolve(manifest.Neutron, manifest.Neutron.Sublibrary(), spec.Neutron)
		if err != nil {
			return nil, err
		}
		neutron = res
		for _, key := range res.Keys() {
			plan.Items = append(plan.Items, newItem(root, manifest.Neutron, key,
				[]tape.Tape{res.Tapes[key]}, spec.Neutron.Temperatures))
		}
		plan.Reused = append(plan.Reused, res.Reused...)
	}

	if spec.Photon != nil {
		photo, err := b.resolver.Resolve(manifest.Photon, "photo", spec.Photon)
		if err != nil {
			return nil, err
		}
		ard, err := b.resolver.Resolve(manifest.Photon, "ard", spec.Photon)
		if err != nil {
			return nil, err
		}
		for _, key := range photo.Keys() {
			tapes := []tape.Tape{photo.Tapes[key]}
			if t, ok := ard.Tapes[key]; ok {
				tapes = append(tapes, t)
			}
			plan.Items = append(plan.Items, newItem(root, manifest.Photon, key, tapes, nil))
		}
		plan.Reused = append(plan.Reused, photo.Reused...)
	}

	if spec.TSL != nil {
		coupling, err := b.resolver.Couple(spec.TSL, neutron)
		if err != nil {
			return nil, err
		}
		for _, c := range coupling.Couples {
			it := newItem(root, manifest.Thermal, c.Thermal.Key, []tape.Tape{c.Companion, c.Thermal}, c.Temperatures)
			it.Companion = c.Material
			plan.Items = append(plan.Items, it)
		}
		plan.Reused = append(plan.Reused, coupling.Resolution.Reused...)
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Build resolves spec, runs the plan and writes the manifest and the spec
// copy into the library directory.
func (b *Builder) Build(ctx context.Context, spec *libspec.Spec, opts Options) (*Result, error) {
	root := b.cfg.LibraryDir(spec.Name)
	res := &Result{RunID: uuid.New().String(), Root: root}
	logging.Build("build %s of %s into %s", res.RunID[:8], spec.Name, root)

	if len(opts.Temperatures) > 0 {
		spec = spec.WithTemperatures(opts.Temperatures)
	}

	if opts.Clean && !opts.DryRun {
		logging.BuildWarn("removing %s", root)
		if err := os.RemoveAll(root); err != nil {
			return nil, fmt.Errorf("failed to clean %s: %w", root, err)
		}
	}

	plan, err := b.Plan(spec, root)
	if err != nil {
		return nil, err
	}
	plan.DryRun = opts.DryRun
	if opts.Parallelism > 0 {
		plan.Parallelism = opts.Parallelism
	}
	res.Plan = plan

	orch := NewOrchestrator(b.toolchain, opts.Observer)
	orch.KeepScratch = b.cfg.Build.KeepScratch
	m, err := orch.Run(ctx, plan)
	if err != nil {
		return nil, err
	}
	if plan.DryRun {
		return res, nil
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", root, err)
	}
	if err := m.Save(filepath.Join(root, manifest.FileName)); err != nil {
		return nil, err
	}
	res.Manifest = m
	if spec.Path != "" {
		if err := copySpec(spec.Path, filepath.Join(root, InputFile)); err != nil {
			return nil, err
		}
	}

	if spec.Neutron != nil && len(spec.Neutron.Temperatures) > 0 {
		res.Warnings = checkReusedTemperatures(plan.Reused, spec.Neutron.Temperatures)
	}
	for _, w := range res.Warnings {
		logging.BuildWarn("%s", w)
	}
	logging.Build("%s: %d entries written", spec.Name, m.Len())
	return res, nil
}

func copySpec(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	return manifest.WriteFileAtomic(dst, data, 0644)
}

// checkReusedTemperatures compares the temperatures of reused neutron
// artifacts with the requested set.
func checkReusedTemperatures(reused []manifest.Entry, want []int) []string {
	var warnings []string
	for _, e := range reused {
		if e.Kind != manifest.Neutron {
			continue
		}
		have, err := artifact.ReadTemperatures(e.Path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("reused %s from %s: %v", e.Material, e.Source, err))
			continue
		}
		missing := artifact.Difference(want, have)
		extra := artifact.Difference(have, want)
		if len(missing) > 0 || len(extra) > 0 {
			warnings = append(warnings, fmt.Sprintf("reused %s from %s has temperatures %v, requested %v",
				e.Material, e.Source, have, want))
		}
	}
	return warnings
}
