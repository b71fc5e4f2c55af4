package utils

import "math"

// Square returns the square of a float64.
func Square(n float64) float64 {
	return n * n
}

// ClampF64 limits v to [lo, hi].
func ClampF64(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Float64AlmostEqual compares two floats with an absolute tolerance.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}
