package artifact

import (
	"fmt"
	"sort"

	"ndforge/internal/logging"
)

// InvariantViolation is the panic value raised when a merge precondition
// does not hold. It signals a defect upstream of the merge, never bad input.
type InvariantViolation struct {
	Source string
	Target string
	Msg    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("merge invariant violated (%s -> %s): %s", e.Source, e.Target, e.Msg)
}

// Merge copies into target every temperature of source that target lacks:
// kT, energy grid and every channel table. Existing temperatures of target
// are not touched. It returns the temperatures added; when there are none
// the target is never opened for writing.
//
// Both artifacts must hold exactly one material, the same one; otherwise
// Merge panics with *InvariantViolation.
func Merge(sourcePath, targetPath string) ([]int, error) {
	src, err := OpenReadOnly(sourcePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	srcMat, srcTemps, err := identity(src)
	if err != nil {
		return nil, err
	}

	tgtMat, tgtTemps, err := readIdentity(targetPath)
	if err != nil {
		return nil, err
	}

	if len(srcMat) != 1 || len(tgtMat) != 1 {
		panic(&InvariantViolation{Source: sourcePath, Target: targetPath,
			Msg: fmt.Sprintf("expected one material per artifact, got %v and %v", srcMat, tgtMat)})
	}
	if srcMat[0] != tgtMat[0] {
		panic(&InvariantViolation{Source: sourcePath, Target: targetPath,
			Msg: fmt.Sprintf("material mismatch: %s vs %s", srcMat[0], tgtMat[0])})
	}

	added := Difference(srcTemps, tgtTemps)
	if len(added) == 0 {
		logging.MergeDebug("%s: nothing to merge from %s", targetPath, sourcePath)
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryMerge, "merge "+srcMat[0])
	defer timer.Stop()

	slices := make([]Slice, 0, len(added))
	for _, k := range added {
		s, err := src.ReadSlice(k)
		if err != nil {
			return nil, fmt.Errorf("failed to read %dK from %s: %w", k, sourcePath, err)
		}
		slices = append(slices, s)
	}

	tgt, err := Open(targetPath)
	if err != nil {
		return nil, err
	}
	defer tgt.Close()
	if err := tgt.WriteSlices(slices...); err != nil {
		return nil, fmt.Errorf("failed to merge into %s: %w", targetPath, err)
	}

	logging.Merge("%s: added %v from %s", srcMat[0], added, sourcePath)
	return added, nil
}

func identity(a *Artifact) ([]string, []int, error) {
	mats, err := a.Materials()
	if err != nil {
		return nil, nil, err
	}
	temps, err := a.Temperatures()
	if err != nil {
		return nil, nil, err
	}
	return mats, temps, nil
}

func readIdentity(path string) ([]string, []int, error) {
	a, err := OpenReadOnly(path)
	if err != nil {
		return nil, nil, err
	}
	defer a.Close()
	return identity(a)
}

// ReadTemperatures opens path read-only and returns its temperatures.
func ReadTemperatures(path string) ([]int, error) {
	_, temps, err := readIdentity(path)
	return temps, err
}

// Difference returns the values of a missing from b, ascending.
func Difference(a, b []int) []int {
	have := make(map[int]bool, len(b))
	for _, v := range b {
		have[v] = true
	}
	var out []int
	seen := make(map[int]bool, len(a))
	for _, v := range a {
		if !have[v] && !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	sort.Ints(out)
	return out
}
