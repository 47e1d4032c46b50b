package optimizer

import (
	"math"
	"reflect"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMeanAndStddev(t *testing.T) {
	if got := mean(nil); got != 0 {
		t.Errorf("mean(nil) = %v", got)
	}
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := mean(xs); !almostEqual(got, 5) {
		t.Errorf("mean = %v, want 5", got)
	}
	if got := stddev(xs); !almostEqual(got, 2) {
		t.Errorf("stddev = %v, want 2", got)
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	if got := coefficientOfVariation([]float64{5, 5, 5}); got != 0 {
		t.Errorf("cv of constant data = %v, want 0", got)
	}
	if got := coefficientOfVariation([]float64{-1, 1}); !math.IsInf(got, 1) {
		t.Errorf("cv with zero mean and spread = %v, want +Inf", got)
	}
	if got := coefficientOfVariation([]float64{4, 6}); !almostEqual(got, 0.2) {
		t.Errorf("cv = %v, want 0.2", got)
	}
}

func TestQuartiles(t *testing.T) {
	// Odd length: the overall median is excluded from both halves.
	q1, q3 := quartiles([]float64{1, 2, 3, 4, 5})
	if !almostEqual(q1, 1.5) || !almostEqual(q3, 4.5) {
		t.Errorf("quartiles = %v, %v, want 1.5, 4.5", q1, q3)
	}
	q1, q3 = quartiles([]float64{1, 2, 3, 4})
	if !almostEqual(q1, 1.5) || !almostEqual(q3, 3.5) {
		t.Errorf("quartiles = %v, %v, want 1.5, 3.5", q1, q3)
	}
}

func TestRemoveOutliersDropsExtremeValue(t *testing.T) {
	xs := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 100}
	kept := removeOutliers(xs, 1.5)
	if len(kept) != 9 {
		t.Fatalf("kept %d values, want 9: %v", len(kept), kept)
	}
	if got := mean(kept); !almostEqual(got, 1) {
		t.Errorf("mean after outlier removal = %v, want 1", got)
	}
}

func TestRemoveOutliersKeepsSmallSamples(t *testing.T) {
	xs := []float64{1, 2, 300}
	if got := removeOutliers(xs, 1.5); !reflect.DeepEqual(got, xs) {
		t.Errorf("small sample changed: %v", got)
	}
}
