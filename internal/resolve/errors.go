package resolve

import (
	"errors"
	"fmt"

	"ndforge/internal/manifest"
)

var (
	ErrMissingMaterial  = errors.New("missing material")
	ErrMissingCompanion = errors.New("missing companion")
)

// MissingMaterialError reports an add entry the tape index cannot provide.
type MissingMaterialError struct {
	Library string
	Kind    manifest.Kind
	Key     string
	Err     error
}

func (e *MissingMaterialError) Error() string {
	return fmt.Sprintf("%s: %s %s is not available in library %s: %v", ErrMissingMaterial, e.Kind, e.Key, e.Library, e.Err)
}

func (e *MissingMaterialError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMissingMaterial, e.Err}
	}
	return []error{ErrMissingMaterial}
}

// MissingCompanionError reports a thermal tape whose companion neutron
// material is unknown or absent from the neutron resolution.
type MissingCompanionError struct {
	Tape      string
	Companion string
	Err       error
}

func (e *MissingCompanionError) Error() string {
	if e.Companion == "" {
		return fmt.Sprintf("%s: no companion material known for thermal tape %s", ErrMissingCompanion, e.Tape)
	}
	return fmt.Sprintf("%s: thermal tape %s needs %s, which the neutron sublibrary does not provide: %v", ErrMissingCompanion, e.Tape, e.Companion, e.Err)
}

func (e *MissingCompanionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMissingCompanion, e.Err}
	}
	return []error{ErrMissingCompanion}
}
