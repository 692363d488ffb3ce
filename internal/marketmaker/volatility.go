package marketmaker

import "math"

// VolatilityWindow estimates recent price volatility as the standard
// deviation of simple returns over a bounded rolling window. It is owned by
// one controller instance; no synchronization is needed because the control
// loop is single-threaded.
type VolatilityWindow struct {
	size   int
	prices []float64
}

// NewVolatilityWindow creates a window holding up to size price samples
func NewVolatilityWindow(size int) *VolatilityWindow {
	if size < 2 {
		size = 2
	}
	return &VolatilityWindow{size: size}
}

// Observe appends a price sample, evicting the oldest when full
func (w *VolatilityWindow) Observe(price float64) {
	if price <= 0 {
		return
	}
	w.prices = append(w.prices, price)
	if len(w.prices) > w.size {
		w.prices = w.prices[1:]
	}
}

// StdDev returns the standard deviation of period returns across the
// window, or zero when fewer than three samples exist.
func (w *VolatilityWindow) StdDev() float64 {
	if len(w.prices) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(w.prices)-1)
	for i := 1; i < len(w.prices); i++ {
		returns = append(returns, w.prices[i]/w.prices[i-1]-1)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}

// Len returns the number of samples currently held
func (w *VolatilityWindow) Len() int {
	return len(w.prices)
}
