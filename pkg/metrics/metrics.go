// Package metrics evaluates how well a noise decorrelation worked. It
// summarises coil-major complex samples into the quantities the prewhitening
// convention promises: per-coil variance near 2 (unit variance per real and
// imaginary component, times the √2 convention) and vanishing inter-coil
// correlation.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// NoiseStats holds the decorrelation quality summary of one coil-major
// sample block.
type NoiseStats struct {
	// CoilVariance is the total complex variance per coil (real plus
	// imaginary component variance). After prewhitening with the √2
	// convention and scale factor 1 every entry approaches 2.
	CoilVariance []float64

	// MaxCrossCorrelation is the largest off-diagonal correlation
	// magnitude between any two coils. Values near 0 indicate the coils
	// are decorrelated.
	MaxCrossCorrelation float64

	// MeanCoilVariance averages CoilVariance, a single-number variance
	// summary for reporting.
	MeanCoilVariance float64
}

// Evaluate computes noise statistics for coil-major data with the given
// number of coils. At least two samples per coil are required.
func Evaluate(data []complex128, coils int) (*NoiseStats, error) {
	if coils < 1 || len(data) == 0 || len(data)%coils != 0 {
		return nil, fmt.Errorf("metrics: %d values cannot form a %d-coil block", len(data), coils)
	}
	n := len(data) / coils
	if n < 2 {
		return nil, fmt.Errorf("metrics: need at least 2 samples per coil, got %d", n)
	}

	// Split into per-coil real and imaginary series once; gonum's stat
	// routines operate on float64 slices.
	re := make([][]float64, coils)
	im := make([][]float64, coils)
	for c := 0; c < coils; c++ {
		re[c] = make([]float64, n)
		im[c] = make([]float64, n)
		for i, v := range data[c*n : (c+1)*n] {
			re[c][i] = real(v)
			im[c][i] = imag(v)
		}
	}

	s := &NoiseStats{CoilVariance: make([]float64, coils)}
	for c := 0; c < coils; c++ {
		s.CoilVariance[c] = stat.Variance(re[c], nil) + stat.Variance(im[c], nil)
		s.MeanCoilVariance += s.CoilVariance[c]
	}
	s.MeanCoilVariance /= float64(coils)

	for p := 0; p < coils; p++ {
		for q := 0; q < p; q++ {
			// Complex covariance E[n_p·conj(n_q)] assembled from the
			// four real covariances.
			reCov := stat.Covariance(re[p], re[q], nil) + stat.Covariance(im[p], im[q], nil)
			imCov := stat.Covariance(im[p], re[q], nil) - stat.Covariance(re[p], im[q], nil)

			denom := math.Sqrt(s.CoilVariance[p] * s.CoilVariance[q])
			if denom == 0 {
				continue
			}
			if corr := math.Hypot(reCov, imCov) / denom; corr > s.MaxCrossCorrelation {
				s.MaxCrossCorrelation = corr
			}
		}
	}
	return s, nil
}
