package marketmaker

import (
	"math"
	"testing"
)

// TestStdDevKnownSeries checks the return deviation of a hand-computed
// series: returns +10% and -10% give a standard deviation of 0.1.
func TestStdDevKnownSeries(t *testing.T) {
	w := NewVolatilityWindow(10)
	for _, p := range []float64{100, 110, 99} {
		w.Observe(p)
	}
	if got := w.StdDev(); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Expected stddev 0.1, got %v", got)
	}
}

// TestStdDevConstantPrices is zero for a flat series
func TestStdDevConstantPrices(t *testing.T) {
	w := NewVolatilityWindow(10)
	for i := 0; i < 5; i++ {
		w.Observe(100)
	}
	if got := w.StdDev(); got != 0 {
		t.Errorf("Expected zero stddev, got %v", got)
	}
}

// TestStdDevNeedsSamples returns zero until three samples exist
func TestStdDevNeedsSamples(t *testing.T) {
	w := NewVolatilityWindow(10)
	w.Observe(100)
	w.Observe(120)
	if got := w.StdDev(); got != 0 {
		t.Errorf("Expected zero stddev with 2 samples, got %v", got)
	}
}

// TestWindowEviction keeps only the newest samples
func TestWindowEviction(t *testing.T) {
	w := NewVolatilityWindow(3)
	for _, p := range []float64{1, 2, 3, 4, 5} {
		w.Observe(p)
	}
	if w.Len() != 3 {
		t.Errorf("Expected window length 3, got %d", w.Len())
	}
	// Oldest samples gone: remaining series is 3,4,5
	if got := w.StdDev(); got == 0 {
		t.Error("Expected nonzero stddev for trending series")
	}
}

// TestObserveIgnoresNonPositive drops zero and negative samples
func TestObserveIgnoresNonPositive(t *testing.T) {
	w := NewVolatilityWindow(10)
	w.Observe(0)
	w.Observe(-5)
	if w.Len() != 0 {
		t.Errorf("Expected empty window, got %d samples", w.Len())
	}
}
