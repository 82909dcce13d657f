package prewhiten

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"mricoilprep/internal/cmplxmat"
)

// complexNoise draws m i.i.d. samples per coil of circular complex Gaussian
// noise with unit total variance (0.5 per component), coil-major.
func complexNoise(coils, m int, seed uint64) []complex128 {
	dist := distuv.Normal{Mu: 0, Sigma: 1 / math.Sqrt2, Src: rand.NewSource(seed)}
	out := make([]complex128, coils*m)
	for i := range out {
		out[i] = complex(dist.Rand(), dist.Rand())
	}
	return out
}

// mixCoils correlates coil noise by left-multiplying with a lower-triangular
// mixing matrix, giving the estimator something real to undo.
func mixCoils(noise []complex128, coils int) []complex128 {
	m := len(noise) / coils
	mix := mat.NewCDense(coils, coils, nil)
	for i := 0; i < coils; i++ {
		mix.Set(i, i, 1)
		for j := 0; j < i; j++ {
			mix.Set(i, j, complex(0.5, -0.3))
		}
	}
	res := cmplxmat.Mul(mix, mat.NewCDense(coils, m, noise))
	return res.RawCMatrix().Data
}

// sampleCovariance computes 1/(M-1)·N·Nᴴ of coil-major data.
func sampleCovariance(data []complex128, coils int) *mat.CDense {
	m := len(data) / coils
	n := mat.NewCDense(coils, m, data)
	cov := cmplxmat.MulH(n, n)
	cmplxmat.Scale(complex(1/float64(m-1), 0), cov)
	return cov
}

func TestWhiteningDecorrelatesItsOwnNoise(t *testing.T) {
	const coils, m = 4, 256
	noise := mixCoils(complexNoise(coils, m, 1), coils)

	w, err := EstimateWhitening(noise, coils, 1.0)
	require.NoError(t, err)

	whitened, err := Apply(w, noise, coils)
	require.NoError(t, err)

	// W·C·Wᴴ = 2·I holds exactly for the calibration data itself, up to
	// rounding, whatever the coil correlation was.
	cov := sampleCovariance(whitened, coils)
	for p := 0; p < coils; p++ {
		for q := 0; q < coils; q++ {
			want := complex(0, 0)
			if p == q {
				want = 2
			}
			assert.InDelta(t, 0, cmplx.Abs(cov.At(p, q)-want), 1e-10,
				"whitened covariance at (%d,%d) = %v", p, q, cov.At(p, q))
		}
	}
}

func TestWhiteningDecorrelatesHeldOutNoise(t *testing.T) {
	// The matrix is fit on one calibration block and judged on a second,
	// independent block from the same noise distribution: per-coil
	// variance near 2 and vanishing cross-covariance, up to sampling
	// error this time rather than by algebraic construction.
	const coils, m = 4, 16384
	calibration := mixCoils(complexNoise(coils, m, 17), coils)
	heldOut := mixCoils(complexNoise(coils, m, 18), coils)

	w, err := EstimateWhitening(calibration, coils, 1.0)
	require.NoError(t, err)

	whitened, err := Apply(w, heldOut, coils)
	require.NoError(t, err)

	cov := sampleCovariance(whitened, coils)
	for p := 0; p < coils; p++ {
		for q := 0; q < coils; q++ {
			want := complex(0, 0)
			if p == q {
				want = 2
			}
			assert.InDelta(t, 0, cmplx.Abs(cov.At(p, q)-want), 0.15,
				"held-out whitened covariance at (%d,%d) = %v", p, q, cov.At(p, q))
		}
	}
}

func TestWhiteningOfUnitNoiseIsScaledIdentity(t *testing.T) {
	const coils, m = 4, 20000
	noise := complexNoise(coils, m, 7)

	w, err := EstimateWhitening(noise, coils, 1.0)
	require.NoError(t, err)

	// Covariance of i.i.d. unit-variance noise approaches I, so the
	// whitening matrix approaches √2·I. Statistical tolerance only.
	for p := 0; p < coils; p++ {
		for q := 0; q < coils; q++ {
			want := complex(0, 0)
			if p == q {
				want = complex(math.Sqrt2, 0)
			}
			assert.InDelta(t, 0, cmplx.Abs(w.At(p, q)-want), 0.1,
				"whitening matrix at (%d,%d) = %v", p, q, w.At(p, q))
		}
	}
}

func TestWhiteningScaleFactor(t *testing.T) {
	const coils, m = 3, 512
	noise := complexNoise(coils, m, 3)

	w1, err := EstimateWhitening(noise, coils, 1.0)
	require.NoError(t, err)
	w4, err := EstimateWhitening(noise, coils, 4.0)
	require.NoError(t, err)

	// √scaleFactor scales the whole matrix linearly.
	for p := 0; p < coils; p++ {
		for q := 0; q < coils; q++ {
			assert.InDelta(t, 0, cmplx.Abs(w4.At(p, q)-2*w1.At(p, q)), 1e-12)
		}
	}
}

func TestEstimateWhiteningSingleSample(t *testing.T) {
	noise := []complex128{1, 2i, 3, -1i} // 4 coils, 1 sample each
	_, err := EstimateWhitening(noise, 4, 1.0)
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestEstimateWhiteningShapeErrors(t *testing.T) {
	t.Run("NotDivisible", func(t *testing.T) {
		_, err := EstimateWhitening(make([]complex128, 7), 3, 1.0)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("Empty", func(t *testing.T) {
		_, err := EstimateWhitening(nil, 3, 1.0)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("BadScale", func(t *testing.T) {
		_, err := EstimateWhitening(complexNoise(2, 8, 1), 2, 0)
		assert.Error(t, err)
	})
}

func TestEstimateWhiteningDegenerateChannels(t *testing.T) {
	// Two identical coils make the covariance singular.
	half := complexNoise(1, 64, 5)
	noise := append(append([]complex128{}, half...), half...)
	_, err := EstimateWhitening(noise, 2, 1.0)
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestApplyShapeMismatch(t *testing.T) {
	w := mat.NewCDense(3, 3, nil)

	_, err := Apply(w, make([]complex128, 8), 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Apply(w, make([]complex128, 8), 3)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestApplyIsPure(t *testing.T) {
	const coils, m = 2, 16
	data := complexNoise(coils, m, 9)
	orig := append([]complex128{}, data...)

	w := mat.NewCDense(coils, coils, []complex128{2, 0, 1i, 1})
	out, err := Apply(w, data, coils)
	require.NoError(t, err)

	assert.Equal(t, orig, data, "input must not be mutated")
	require.Len(t, out, len(data))

	// Spot-check the linear transform on the first sample column.
	got0 := out[0]
	got1 := out[m]
	assert.InDelta(t, 0, cmplx.Abs(got0-2*data[0]), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(got1-(1i*data[0]+data[m])), 1e-12)
}
