// Package toolchain is the boundary to the external evaluation-processing
// toolchain. ndforge never converts tapes itself: it hands tapes and
// parameters to a Toolchain and gets one artifact file back.
package toolchain

import (
	"context"

	"ndforge/internal/manifest"
	"ndforge/internal/tape"

	"go.uber.org/zap"
)

// PrimaryJob converts one neutron or photon tape.
type PrimaryJob struct {
	Kind     manifest.Kind
	Material string
	Tape     tape.Tape
	// Companion is the optional atomic relaxation tape of a photon job.
	Companion *tape.Tape
	// Temperatures is empty for photon jobs.
	Temperatures []int
	Output       string
	// Log receives the toolchain's output. May be nil.
	Log *zap.Logger
}

// CoupledJob converts a thermal tape together with its companion neutron tape.
type CoupledJob struct {
	Material string
	// Companion is the neutron material of the Neutron tape.
	Companion    string
	Neutron      tape.Tape
	Thermal      tape.Tape
	Temperatures []int
	Output       string
	Log          *zap.Logger
}

// Toolchain produces artifacts from tapes. Implementations must write
// exactly one artifact at the job's Output path, or return an error.
type Toolchain interface {
	ProcessPrimary(ctx context.Context, job PrimaryJob) error
	ProcessCoupled(ctx context.Context, job CoupledJob) error
}
