package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ndforge/internal/artifact"
	"ndforge/internal/logging"
	"ndforge/internal/manifest"
	"ndforge/internal/toolchain"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EventType classifies orchestrator events.
type EventType int

const (
	EventTrace   EventType = iota // dry run: the item would be built
	EventStarted                  // a worker picked the item up
	EventBuilt                    // a new artifact was written
	EventMerged                   // missing temperatures were merged into an existing artifact
	EventSkipped                  // the artifact is already complete
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventTrace:
		return "trace"
	case EventStarted:
		return "started"
	case EventBuilt:
		return "built"
	case EventMerged:
		return "merged"
	case EventSkipped:
		return "skipped"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Event reports item progress. Events are informational only.
type Event struct {
	Type  EventType
	Item  Item
	Total int
	// Added lists temperatures merged into an existing artifact.
	Added []int
	Err   error
}

// Done reports whether the event ends the item.
func (e Event) Done() bool {
	return e.Type == EventBuilt || e.Type == EventMerged || e.Type == EventSkipped || e.Type == EventFailed
}

// Observer receives events from a single goroutine, in send order.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Orchestrator runs plans against a toolchain.
type Orchestrator struct {
	Toolchain toolchain.Toolchain
	Observer  Observer
	// KeepScratch leaves merge scratch artifacts on disk.
	KeepScratch bool
}

// NewOrchestrator creates an orchestrator. obs may be nil.
func NewOrchestrator(tc toolchain.Toolchain, obs Observer) *Orchestrator {
	return &Orchestrator{Toolchain: tc, Observer: obs}
}

// Run executes the plan. A dry run calls nothing and returns a nil manifest.
// Otherwise items run on at most plan.Parallelism workers; the first failure
// cancels the rest and is returned as *BuildFailure once in-flight items
// have unwound. The manifest is assembled only after every item finished.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan) (*manifest.Manifest, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	events := make(chan Event, 64)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			if o.Observer != nil {
				o.Observer.OnEvent(ev)
			}
		}
	}()
	total := len(plan.Items)

	if plan.DryRun {
		for _, it := range plan.Items {
			logging.Build("dry run: %s", it.Trace())
			events <- Event{Type: EventTrace, Item: it, Total: total}
		}
		close(events)
		<-drained
		return nil, nil
	}

	runID := uuid.New().String()[:8]
	timer := logging.StartTimer(logging.CategoryBuild, fmt.Sprintf("build run %s (%d items)", runID, total))
	defer timer.StopWithInfo()

	parallelism := plan.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, it := range plan.Items {
		if gctx.Err() != nil {
			break
		}
		it := it
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			events <- Event{Type: EventStarted, Item: it, Total: total}
			ev, err := o.process(gctx, it)
			if err != nil {
				events <- Event{Type: EventFailed, Item: it, Total: total, Err: err}
				logging.BuildError("run %s: %s failed: %v", runID, it, err)
				return &BuildFailure{Item: it, Err: err}
			}
			ev.Total = total
			events <- ev
			return nil
		})
	}

	err := g.Wait()
	close(events)
	<-drained

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("build canceled: %w", ctx.Err())
	}

	built := make([]manifest.Entry, 0, len(plan.Items))
	for _, it := range plan.Items {
		built = append(built, manifest.Entry{Kind: it.Kind, Material: it.Material, Path: it.RelPath})
	}
	return manifest.Assemble("", plan.Reused, built)
}

// process produces one artifact. Existing neutron artifacts are extended
// with the missing temperatures; other existing artifacts are kept.
func (o *Orchestrator) process(ctx context.Context, it Item) (Event, error) {
	log, closeLog, err := logging.OpenItemLog(it.LogPath)
	if err != nil {
		return Event{}, err
	}
	defer closeLog()
	log = log.With(zap.String("item", it.String()))

	if _, err := os.Stat(it.Target); err == nil {
		if it.Kind != manifest.Neutron {
			log.Info("artifact exists, kept", zap.String("target", it.Target))
			return Event{Type: EventSkipped, Item: it}, nil
		}
		return o.extend(ctx, it, log)
	}

	scratch := scratchPath(it.Target)
	if err := o.invoke(ctx, it, it.Temperatures, scratch, log); err != nil {
		os.Remove(scratch)
		return Event{}, err
	}
	if err := os.Rename(scratch, it.Target); err != nil {
		os.Remove(scratch)
		return Event{}, fmt.Errorf("failed to install %s: %w", it.Target, err)
	}
	log.Info("artifact built", zap.String("target", it.Target))
	logging.BuildDebug("%s built", it)
	return Event{Type: EventBuilt, Item: it}, nil
}

// extend merges the temperatures an existing neutron artifact lacks.
func (o *Orchestrator) extend(ctx context.Context, it Item, log *zap.Logger) (Event, error) {
	have, err := artifact.ReadTemperatures(it.Target)
	if err != nil {
		return Event{}, err
	}
	missing := artifact.Difference(it.Temperatures, have)
	if len(missing) == 0 {
		log.Info("artifact up to date", zap.Ints("temperatures", have))
		return Event{Type: EventSkipped, Item: it}, nil
	}

	log.Info("extending artifact", zap.Ints("have", have), zap.Ints("missing", missing))
	scratch := scratchPath(it.Target)
	if !o.KeepScratch {
		defer os.Remove(scratch)
	}
	if err := o.invoke(ctx, it, missing, scratch, log); err != nil {
		return Event{}, err
	}
	added, err := artifact.Merge(scratch, it.Target)
	if err != nil {
		return Event{}, err
	}
	log.Info("temperatures merged", zap.Ints("added", added))
	return Event{Type: EventMerged, Item: it, Added: added}, nil
}

func (o *Orchestrator) invoke(ctx context.Context, it Item, temps []int, output string, log *zap.Logger) error {
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	switch it.Kind {
	case manifest.Thermal:
		if len(it.Tapes) < 2 {
			return fmt.Errorf("%s needs a neutron and a thermal tape", it)
		}
		return o.Toolchain.ProcessCoupled(ctx, toolchain.CoupledJob{
			Material:     it.Material,
			Companion:    it.Companion,
			Neutron:      it.Tapes[0],
			Thermal:      it.Tapes[1],
			Temperatures: temps,
			Output:       output,
			Log:          log,
		})
	default:
		job := toolchain.PrimaryJob{
			Kind:         it.Kind,
			Material:     it.Material,
			Tape:         it.Tapes[0],
			Temperatures: temps,
			Output:       output,
			Log:          log,
		}
		if len(it.Tapes) > 1 {
			companion := it.Tapes[1]
			job.Companion = &companion
		}
		return o.Toolchain.ProcessPrimary(ctx, job)
	}
}

// scratchPath returns a unique hidden path next to target.
func scratchPath(target string) string {
	dir, base := filepath.Split(target)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.partial", base, uuid.New().String()[:8]))
}
