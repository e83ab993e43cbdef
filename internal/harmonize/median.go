package harmonize

import (
	"math"
	"sort"
)

// WeightedClass is one income class with its observed frequency. Frequency may
// be an absolute count or a percentage; only ratios matter to the estimator.
type WeightedClass struct {
	Bounds Bounds
	Freq   float64
}

// Median estimates the grouped median of a class distribution by linear
// interpolation inside the class containing the 50th percentile. Classes with
// zero or negative frequency are ignored. Returns NaN when the distribution
// has no usable mass. The input slice is not modified and its order does not
// affect the result.
func Median(classes []WeightedClass) float64 {
	usable := make([]WeightedClass, 0, len(classes))
	for _, c := range classes {
		if c.Freq > 0 {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return math.NaN()
	}

	// Classes with no lower bound sort first, treated as -infinity.
	sort.SliceStable(usable, func(i, j int) bool {
		return lowerOrNegInf(usable[i].Bounds) < lowerOrNegInf(usable[j].Bounds)
	})

	var total float64
	for _, c := range usable {
		total += c.Freq
	}
	if total <= 0 {
		return math.NaN()
	}

	target := 0.5 * total
	var cumulative float64
	for _, c := range usable {
		if cumulative+c.Freq >= target {
			lower := 0.0
			if c.Bounds.Lower != nil {
				lower = *c.Bounds.Lower
			}
			// An open top bracket or a degenerate interval cannot be
			// interpolated past its floor.
			if c.Bounds.Upper == nil || *c.Bounds.Upper <= lower {
				return lower
			}
			inside := (target - cumulative) / c.Freq
			return lower + inside*(*c.Bounds.Upper-lower)
		}
		cumulative += c.Freq
	}

	// Floating-point guard: the walk should always reach target. Fall back to
	// the last class's lower bound.
	last := usable[len(usable)-1].Bounds.Lower
	if last == nil {
		return 0
	}
	return *last
}

func lowerOrNegInf(b Bounds) float64 {
	if b.Lower == nil {
		return math.Inf(-1)
	}
	return *b.Lower
}
