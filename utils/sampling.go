package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// SampleNIntegersNormal samples n integers from a normal distribution centered around
// (vMax+vMin) / 2 and in range [vMin, vMax]. A nil src uses the global source.
func SampleNIntegersNormal(n int, vMin, vMax float64, src rand.Source) []int {
	z := make([]int, n)
	dist := distuv.Normal{
		Mu:    (vMax + vMin) / 2,
		Sigma: (vMax - vMin) * 0.4472,
		Src:   src,
	}
	for i := range z {
		z[i] = int(sampleInRange(dist.Rand, vMin, vMax))
	}

	return z
}

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax]. A nil src uses the global
// source.
func SampleNIntegersUniform(n int, vMin, vMax float64, src rand.Source) []int {
	z := make([]int, n)
	dist := distuv.Uniform{
		Min: vMin,
		Max: vMax,
		Src: src,
	}
	for i := range z {
		z[i] = int(sampleInRange(dist.Rand, vMin, vMax))
	}

	return z
}

func sampleInRange(draw func() float64, vMin, vMax float64) float64 {
	val := math.Round(draw())
	for val < vMin || val > vMax {
		val = math.Round(draw())
	}
	return val
}
