package optimizer

import (
	"math"
	"slices"
)

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev returns the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// coefficientOfVariation returns stddev/mean, +Inf when the mean is zero
// and any spread exists.
func coefficientOfVariation(xs []float64) float64 {
	m := mean(xs)
	s := stddev(xs)
	if m == 0 {
		if s == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return s / math.Abs(m)
}

// median returns the median of a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// quartiles computes Q1 and Q3 as the medians of the lower and upper
// halves, excluding the overall median for odd-length input.
func quartiles(xs []float64) (q1, q3 float64) {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	n := len(sorted)
	if n == 0 {
		return 0, 0
	}
	half := n / 2
	lower := sorted[:half]
	upper := sorted[half:]
	if n%2 == 1 {
		upper = sorted[half+1:]
	}
	return median(lower), median(upper)
}

// removeOutliers drops values outside [Q1 - k*IQR, Q3 + k*IQR]. One
// anomalous project must not skew a threshold recommended for all future
// runs.
func removeOutliers(xs []float64, k float64) []float64 {
	if len(xs) < 4 {
		return slices.Clone(xs)
	}
	q1, q3 := quartiles(xs)
	iqr := q3 - q1
	lo := q1 - k*iqr
	hi := q3 + k*iqr

	kept := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x >= lo && x <= hi {
			kept = append(kept, x)
		}
	}
	return kept
}
