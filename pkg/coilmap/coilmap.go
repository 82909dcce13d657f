// Package coilmap estimates relative coil sensitivity maps from a
// multi-coil image stack using the iterative Walsh method: a smoothed
// per-pixel coil covariance followed by a fixed-count power iteration that
// extracts the dominant eigenvector (the sensitivity) and eigenvalue (the
// combined signal power) at every pixel.
package coilmap

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"mricoilprep/pkg/smoothing"
)

// ErrInvalidShape is returned when a stack's dimensions and backing data
// disagree, or when an estimator input has no coils or no pixels.
var ErrInvalidShape = errors.New("coilmap: invalid stack shape")

// degenerateNorm is the threshold below which a pixel's covariance is
// treated as pure background. Such pixels get a zero sensitivity vector and
// zero power rather than propagating NaN from a division by zero.
const degenerateNorm = 1e-12

// Stack is a complex multi-coil image stack with the coil axis first.
// Data is coil-major: the pixel (c, y, x) lives at Data[c*Height*Width +
// y*Width + x], so each coil image is one contiguous plane.
type Stack struct {
	Data   []complex128
	Coils  int
	Height int
	Width  int
}

// NewStack allocates a zero-filled stack with the given dimensions.
func NewStack(coils, height, width int) *Stack {
	return &Stack{
		Data:   make([]complex128, coils*height*width),
		Coils:  coils,
		Height: height,
		Width:  width,
	}
}

// At returns the pixel value of coil c at (y, x).
func (s *Stack) At(c, y, x int) complex128 {
	return s.Data[c*s.Height*s.Width+y*s.Width+x]
}

// Set stores the pixel value of coil c at (y, x).
func (s *Stack) Set(c, y, x int, v complex128) {
	s.Data[c*s.Height*s.Width+y*s.Width+x] = v
}

// Plane returns the contiguous image of a single coil as a shared view.
func (s *Stack) Plane(c int) []complex128 {
	n := s.Height * s.Width
	return s.Data[c*n : (c+1)*n]
}

func (s *Stack) check() error {
	if s == nil || s.Coils < 1 || s.Height < 1 || s.Width < 1 {
		return fmt.Errorf("%w: stack must have at least one coil and one pixel", ErrInvalidShape)
	}
	if len(s.Data) != s.Coils*s.Height*s.Width {
		return fmt.Errorf("%w: %d values for %dx%dx%d stack", ErrInvalidShape, len(s.Data), s.Coils, s.Height, s.Width)
	}
	return nil
}

// Params holds the estimation parameters.
type Params struct {
	// SmoothingWindow is the box size used to regularize the per-pixel
	// covariance estimate before eigen-extraction.
	SmoothingWindow int

	// Iterations is the fixed number of power-method refinement steps run
	// at every pixel. The method is deliberately not tolerance-driven:
	// a small fixed count is accurate enough for smoothed covariances and
	// keeps the per-pixel cost uniform.
	Iterations int

	// NumCores specifies how many goroutines share the per-pixel work.
	NumCores int
}

// DefaultParams returns the standard Walsh-method parameters.
func DefaultParams() *Params {
	return &Params{
		SmoothingWindow: 5,
		Iterations:      3,
		NumCores:        runtime.NumCPU(),
	}
}

// Estimator computes coil sensitivity maps. Instances are stateless between
// calls and safe for concurrent use.
type Estimator struct {
	params *Params
}

// NewEstimator creates an estimator with the provided parameters. A nil
// params, or any zero field, falls back to the matching default.
func NewEstimator(params *Params) *Estimator {
	def := DefaultParams()
	if params != nil {
		if params.SmoothingWindow > 0 {
			def.SmoothingWindow = params.SmoothingWindow
		}
		if params.Iterations > 0 {
			def.Iterations = params.Iterations
		}
		if params.NumCores > 0 {
			def.NumCores = params.NumCores
		}
	}
	return &Estimator{params: def}
}

// Estimate computes relative sensitivity maps and the combined power map for
// a coil image stack. The returned sensitivity stack has the input's shape
// with a unit 2-norm across the coil axis at every non-background pixel; the
// power map holds the dominant eigenvalue of the local smoothed covariance,
// one value per pixel in row-major order. The input is not modified.
func (e *Estimator) Estimate(stack *Stack) (*Stack, []float64, error) {
	if err := stack.check(); err != nil {
		return nil, nil, err
	}

	ncoils := stack.Coils
	npix := stack.Height * stack.Width

	// Pointwise covariance R[p,q] = img_p * conj(img_q), then smoothed.
	// R is Hermitian in (p,q), so only the upper triangle is materialized;
	// the lower half is the conjugate of the mirrored plane. Box smoothing
	// acts on real and imaginary parts separately and therefore commutes
	// with conjugation, so smoothing the upper half is enough.
	rs := make([][]complex128, ncoils*ncoils)
	for p := 0; p < ncoils; p++ {
		pp := stack.Plane(p)
		for q := p; q < ncoils; q++ {
			qp := stack.Plane(q)
			plane := make([]complex128, npix)
			for i := range plane {
				plane[i] = pp[i] * cmplx.Conj(qp[i])
			}
			smoothed, err := smoothing.Smooth2D(plane, stack.Height, stack.Width, e.params.SmoothingWindow)
			if err != nil {
				return nil, nil, err
			}
			rs[p*ncoils+q] = smoothed
		}
	}
	cov := func(p, q, idx int) complex128 {
		if p <= q {
			return rs[p*ncoils+q][idx]
		}
		return cmplx.Conj(rs[q*ncoils+p][idx])
	}

	csm := NewStack(ncoils, stack.Height, stack.Width)
	rho := make([]float64, npix)

	// Each pixel's eigen-extraction is independent, so the rows are split
	// into contiguous ranges, one goroutine per core.
	var wg sync.WaitGroup
	numCores := e.params.NumCores
	rowsPerCore := (stack.Height + numCores - 1) / numCores

	for c := 0; c < numCores; c++ {
		wg.Add(1)

		go func(coreID int) {
			defer wg.Done()

			startRow := coreID * rowsPerCore
			endRow := startRow + rowsPerCore
			if endRow > stack.Height {
				endRow = stack.Height
			}
			if startRow >= stack.Height {
				return
			}

			v := make([]complex128, ncoils)
			w := make([]complex128, ncoils)

			for y := startRow; y < endRow; y++ {
				for x := 0; x < stack.Width; x++ {
					idx := y*stack.Width + x
					lam := e.dominantEigenpair(cov, ncoils, idx, v, w)

					rho[idx] = lam
					for p := 0; p < ncoils; p++ {
						csm.Data[p*npix+idx] = v[p]
					}
				}
			}
		}(c)
	}
	wg.Wait()

	return csm, rho, nil
}

// dominantEigenpair runs the power method on the local covariance matrix at
// pixel idx, leaving the unit eigenvector in v and returning the eigenvalue.
// The initial estimate is the covariance row-sum vector, which lies in the
// matrix's range and is close to the dominant direction for the diagonally
// dominant covariances produced by coil arrays. w is scratch space.
func (e *Estimator) dominantEigenpair(cov func(p, q, idx int) complex128, ncoils, idx int, v, w []complex128) float64 {
	for p := 0; p < ncoils; p++ {
		var sum complex128
		for q := 0; q < ncoils; q++ {
			sum += cov(p, q, idx)
		}
		v[p] = sum
	}
	lam := normalize(v)
	if lam < degenerateNorm {
		zero(v)
		return 0
	}

	for it := 0; it < e.params.Iterations; it++ {
		for p := 0; p < ncoils; p++ {
			var sum complex128
			for q := 0; q < ncoils; q++ {
				sum += cov(p, q, idx) * v[q]
			}
			w[p] = sum
		}
		copy(v, w)
		lam = normalize(v)
		if lam < degenerateNorm {
			zero(v)
			return 0
		}
	}
	return lam
}

// normalize scales v to unit 2-norm and returns the original norm. The
// caller handles near-zero norms; in that case v is left unscaled.
func normalize(v []complex128) float64 {
	var ss float64
	for _, c := range v {
		ss += real(c)*real(c) + imag(c)*imag(c)
	}
	norm := math.Sqrt(ss)
	if norm < degenerateNorm {
		return norm
	}
	inv := complex(1/norm, 0)
	for i := range v {
		v[i] *= inv
	}
	return norm
}

func zero(v []complex128) {
	for i := range v {
		v[i] = 0
	}
}
