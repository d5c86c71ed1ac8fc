package remediate

import (
	"fmt"
	"sort"
)

// Interp evaluates the piecewise-linear interpolant through (xp, fp) at
// every x. Values outside [xp[0], xp[n-1]] are clamped to fp[0] and
// fp[n-1]. xp must be ascending.
func Interp(x, xp, fp []float64) ([]float64, error) {
	if len(xp) != len(fp) {
		return nil, fmt.Errorf("interp: %d abscissae for %d values", len(xp), len(fp))
	}
	if len(xp) == 0 {
		return nil, fmt.Errorf("interp: no data points")
	}
	n := len(xp)
	out := make([]float64, len(x))
	for i, v := range x {
		switch {
		case v <= xp[0]:
			out[i] = fp[0]
		case v >= xp[n-1]:
			out[i] = fp[n-1]
		default:
			// xp[j-1] < v <= xp[j]
			j := sort.SearchFloat64s(xp, v)
			if xp[j] == v {
				out[i] = fp[j]
				continue
			}
			x0, x1 := xp[j-1], xp[j]
			f0, f1 := fp[j-1], fp[j]
			out[i] = f0 + (v-x0)*(f1-f0)/(x1-x0)
		}
	}
	return out, nil
}

// resample maps a donor table onto the target's energy grid. Each table's
// values cover its grid from its threshold index on.
func resample(targetGrid []float64, targetThreshold int, donorGrid []float64, donorThreshold int, donorVals []float64) ([]float64, error) {
	if targetThreshold > len(targetGrid) {
		return nil, fmt.Errorf("target threshold %d beyond grid of %d points", targetThreshold, len(targetGrid))
	}
	end := donorThreshold + len(donorVals)
	if end > len(donorGrid) {
		return nil, fmt.Errorf("donor table of %d values at threshold %d overruns grid of %d points",
			len(donorVals), donorThreshold, len(donorGrid))
	}
	return Interp(targetGrid[targetThreshold:], donorGrid[donorThreshold:end], donorVals)
}
