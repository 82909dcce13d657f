// Package prewhiten estimates and applies noise decorrelation transforms for
// multi-channel MR receive arrays. A whitening matrix is derived from
// noise-only calibration samples; applying it to both calibration and
// acquisition data normalizes the per-coil noise variance and removes
// inter-coil noise correlation, which downstream coil combination assumes.
package prewhiten

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"mricoilprep/internal/cmplxmat"
)

// ErrNotPositiveDefinite is returned when the noise covariance cannot be
// factorized, typically because the calibration data has fewer than two
// samples per coil or contains linearly dependent channels.
var ErrNotPositiveDefinite = cmplxmat.ErrNotPositiveDefinite

// ErrShapeMismatch is returned when data dimensions and the coil count (or
// the whitening matrix size) disagree.
var ErrShapeMismatch = errors.New("prewhiten: shape mismatch")

// EstimateWhitening computes the noise prewhitening matrix from noise-only
// calibration data. The noise slice is coil-major: samples of coil c occupy
// noise[c*m : (c+1)*m], where m = len(noise)/coils; any trailing sample
// dimensions are treated as one flat sample axis.
//
// The sample covariance C = 1/(M-1)·N·Nᴴ is factorized as C = L·Lᴴ and the
// whitening matrix is W = √2·√scaleFactor·L⁻¹, so that W·N has unit variance,
// uncorrelated real and imaginary noise per coil. scaleFactor adjusts for the
// acquisition-to-calibration dwell-time and receiver-bandwidth ratio; pass 1
// when both were acquired under identical conditions.
func EstimateWhitening(noise []complex128, coils int, scaleFactor float64) (*mat.CDense, error) {
	if coils < 1 || len(noise) == 0 || len(noise)%coils != 0 {
		return nil, fmt.Errorf("%w: %d noise values cannot form a %d-coil matrix", ErrShapeMismatch, len(noise), coils)
	}
	m := len(noise) / coils
	if m < 2 {
		return nil, fmt.Errorf("%w: need at least 2 noise samples per coil, got %d", ErrNotPositiveDefinite, m)
	}
	if scaleFactor <= 0 {
		return nil, fmt.Errorf("prewhiten: scale factor must be positive, got %g", scaleFactor)
	}

	n := mat.NewCDense(coils, m, noise)

	cov := cmplxmat.MulH(n, n)
	cmplxmat.Scale(complex(1/float64(m-1), 0), cov)

	l, err := cmplxmat.CholeskyLower(cov)
	if err != nil {
		return nil, err
	}

	w := cmplxmat.InverseLower(l)
	cmplxmat.Scale(complex(math.Sqrt2*math.Sqrt(scaleFactor), 0), w)
	return w, nil
}

// Apply left-multiplies coil-major data by the whitening matrix and returns
// the result in the same layout. The data may carry any number of trailing
// sample dimensions flattened into len(data)/coils columns. Inputs are not
// modified.
func Apply(w *mat.CDense, data []complex128, coils int) ([]complex128, error) {
	r, c := w.Dims()
	if r != coils || c != coils {
		return nil, fmt.Errorf("%w: %dx%d whitening matrix cannot be applied to %d coils", ErrShapeMismatch, r, c, coils)
	}
	if coils < 1 || len(data) == 0 || len(data)%coils != 0 {
		return nil, fmt.Errorf("%w: %d data values cannot form a %d-coil matrix", ErrShapeMismatch, len(data), coils)
	}

	m := len(data) / coils
	res := cmplxmat.Mul(w, mat.NewCDense(coils, m, data))
	return res.RawCMatrix().Data, nil
}
