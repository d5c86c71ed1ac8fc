package remediate

import (
	"context"
	"fmt"

	"ndforge/internal/artifact"
	"ndforge/internal/logging"
	"ndforge/internal/manifest"

	"go.uber.org/multierr"
)

// Action is what a pass does to one material.
type Action int

const (
	ActionNone     Action = iota // clean, left alone
	ActionReplace                // channel overwritten from a donor library
	ActionZeroFill               // negatives set to zero, no donor found
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionReplace:
		return "replace"
	case ActionZeroFill:
		return "zero-fill"
	}
	return "unknown"
}

// Rejection records why a source library could not donate.
type Rejection struct {
	Source string
	Reason string
}

// Decision is the outcome for one neutron material of the target.
type Decision struct {
	Material string
	Path     string
	Action   Action
	// Offending lists the temperatures with negative values.
	Offending []int
	// Donor and DonorPath are set for ActionReplace.
	Donor     string
	DonorPath string
	Rejected  []Rejection
}

func (d Decision) String() string {
	switch d.Action {
	case ActionReplace:
		return fmt.Sprintf("%s: replace from %s (negative at %v)", d.Material, d.Donor, d.Offending)
	case ActionZeroFill:
		return fmt.Sprintf("%s: no donor found, zero-fill at %v", d.Material, d.Offending)
	}
	return fmt.Sprintf("%s: clean", d.Material)
}

// Report is the result of a pass.
type Report struct {
	Target    string
	Channel   int
	DryRun    bool
	Decisions []Decision
}

// Count returns the number of decisions with action a.
func (r *Report) Count(a Action) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Action == a {
			n++
		}
	}
	return n
}

// Pass repairs one channel of a target library from ordered source
// libraries. Materials are processed sequentially.
type Pass struct {
	Target  *Library
	Sources []*Library
	Channel int
	DryRun  bool
}

// Run scans target and sources, decides per material and, unless DryRun,
// applies the decisions.
func (p *Pass) Run(ctx context.Context) (*Report, error) {
	channel := p.Channel
	if channel == 0 {
		channel = DefaultChannel
	}
	timer := logging.StartTimer(logging.CategoryRemediate, fmt.Sprintf("remediate %s channel %d", p.Target.Name, channel))
	defer timer.StopWithInfo()

	findings, err := Scan(ctx, p.Target.Manifest, p.Target.Dir, channel)
	if err != nil {
		return nil, err
	}
	sourceFindings := make([]Findings, len(p.Sources))
	for i, src := range p.Sources {
		f, err := Scan(ctx, src.Manifest, src.Dir, channel)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		sourceFindings[i] = f
	}

	report := &Report{Target: p.Target.Name, Channel: channel, DryRun: p.DryRun}
	entries := p.Target.Manifest.OfKind(manifest.Neutron)
	manifest.SortEntries(manifest.Neutron, entries)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := p.Target.Manifest.ResolvePath(p.Target.Dir, e)
		finding, offending := findings[e.Material]
		if !offending {
			report.Decisions = append(report.Decisions, Decision{Material: e.Material, Path: path, Action: ActionNone})
			continue
		}

		d, err := p.decide(finding, channel, sourceFindings)
		if err != nil {
			return nil, err
		}
		for _, r := range d.Rejected {
			logging.RemediateDebug("%s: %s rejected: %s", d.Material, r.Source, r.Reason)
		}
		if p.DryRun {
			logging.Remediate("dry run: %s", d)
		} else {
			if err := apply(d, channel); err != nil {
				return nil, fmt.Errorf("remediate %s: %w", d.Material, err)
			}
			logging.Remediate("%s", d)
		}
		if d.Action == ActionZeroFill {
			logging.RemediateWarn("%s: channel %d has no clean donor", d.Material, channel)
		}
		report.Decisions = append(report.Decisions, d)
	}
	return report, nil
}

// decide picks the first source that has the material, is clean at every
// temperature the target carries for the channel, and carries all of them.
func (p *Pass) decide(f Finding, channel int, sourceFindings []Findings) (Decision, error) {
	d := Decision{Material: f.Material, Path: f.Path, Offending: f.Temperatures, Action: ActionZeroFill}

	targetTemps, err := readChannelTemperatures(f.Path, channel)
	if err != nil {
		return d, err
	}

	for i, src := range p.Sources {
		donorPath, ok := src.Path(f.Material)
		if !ok {
			d.Rejected = append(d.Rejected, Rejection{Source: src.Name, Reason: "material not in library"})
			continue
		}
		if sourceFindings[i].Offending(f.Material, targetTemps) {
			d.Rejected = append(d.Rejected, Rejection{Source: src.Name, Reason: "also negative"})
			continue
		}
		donorTemps, err := readChannelTemperatures(donorPath, channel)
		if err != nil {
			return d, fmt.Errorf("source %s: %w", src.Name, err)
		}
		if missing := artifact.Difference(targetTemps, donorTemps); len(missing) > 0 {
			d.Rejected = append(d.Rejected, Rejection{Source: src.Name,
				Reason: fmt.Sprintf("missing temperatures %v", missing)})
			continue
		}
		d.Action = ActionReplace
		d.Donor = src.Name
		d.DonorPath = donorPath
		return d, nil
	}
	return d, nil
}

func readChannelTemperatures(path string, channel int) (temps []int, err error) {
	a, err := artifact.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()
	return channelTemperatures(a, channel)
}

func apply(d Decision, channel int) error {
	switch d.Action {
	case ActionReplace:
		return replace(d.Path, d.DonorPath, channel)
	case ActionZeroFill:
		return zeroFill(d.Path, channel, d.Offending)
	}
	return nil
}

// replace overwrites every channel table of the target with the donor's
// values resampled onto the target grid. Target attributes are kept.
func replace(targetPath, donorPath string, channel int) (err error) {
	donor, err := artifact.OpenReadOnly(donorPath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, donor.Close()) }()

	target, err := artifact.Open(targetPath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, target.Close()) }()

	temps, err := channelTemperatures(target, channel)
	if err != nil {
		return err
	}
	for _, k := range temps {
		tgtGrid, err := target.Grid(k)
		if err != nil {
			return err
		}
		tgt, err := target.Table(channel, k)
		if err != nil {
			return err
		}
		srcGrid, err := donor.Grid(k)
		if err != nil {
			return err
		}
		src, err := donor.Table(channel, k)
		if err != nil {
			return err
		}
		vals, err := resample(tgtGrid, tgt.ThresholdIdx(), srcGrid, src.ThresholdIdx(), src.Values)
		if err != nil {
			return fmt.Errorf("%dK: %w", k, err)
		}
		if err := target.SetTable(channel, k, artifact.Table{Values: vals, Attrs: tgt.Attrs}); err != nil {
			return err
		}
	}
	return nil
}

// zeroFill sets the negative values of the channel to zero at temps.
func zeroFill(path string, channel int, temps []int) (err error) {
	a, err := artifact.Open(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	for _, k := range temps {
		t, err := a.Table(channel, k)
		if err != nil {
			return err
		}
		vals := make([]float64, len(t.Values))
		for i, v := range t.Values {
			if v < 0 {
				v = 0
			}
			vals[i] = v
		}
		if err := a.SetTable(channel, k, artifact.Table{Values: vals, Attrs: t.Attrs}); err != nil {
			return err
		}
	}
	return nil
}
