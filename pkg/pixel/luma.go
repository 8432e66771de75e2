package pixel

import (
	"math"
	"slices"
)

// Luma returns floor(0.299R + 0.587G + 0.114B). Each product is rounded
// before the sum so the result does not depend on fused multiply-add.
func Luma(r, g, b uint8) int {
	v := float64(float64(r)*0.299) + float64(float64(g)*0.587) + float64(float64(b)*0.114)
	return int(math.Floor(v))
}

// LumaAt is Luma applied to the pixel at (x, y).
func LumaAt(src Source, x, y int) int {
	return Luma(src.RGB(x, y))
}

// Median returns the median of values without modifying them. An even count
// yields the mean of the two central values. Median of an empty slice is 0.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
