// Package cmplxmat supplies the small pieces of complex linear algebra that
// gonum/mat does not provide for CDense: matrix products backed by
// cblas128, scaling, a Hermitian Cholesky factorization and a
// lower-triangular inverse. Matrices here are coil-sized, so plain loop
// implementations are sufficient where no BLAS routine applies.
package cmplxmat

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite is returned when a matrix handed to CholeskyLower
// is not Hermitian positive-definite within floating-point tolerance.
var ErrNotPositiveDefinite = errors.New("cmplxmat: matrix is not positive definite")

// pivotTol rejects Cholesky pivots that survive only as rounding residue of
// a singular matrix, relative to the corresponding diagonal entry.
const pivotTol = 1e-12

// Mul returns the matrix product a·b.
func Mul(a, b *mat.CDense) *mat.CDense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("cmplxmat: product of %dx%d and %dx%d", ar, ac, br, bc))
	}
	c := mat.NewCDense(ar, bc, nil)
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1, a.RawCMatrix(), b.RawCMatrix(), 0, c.RawCMatrix())
	return c
}

// MulH returns a·bᴴ, the product with the conjugate transpose of b.
func MulH(a, b *mat.CDense) *mat.CDense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != bc {
		panic(fmt.Sprintf("cmplxmat: product of %dx%d and adjoint of %dx%d", ar, ac, br, bc))
	}
	c := mat.NewCDense(ar, br, nil)
	cblas128.Gemm(blas.NoTrans, blas.ConjTrans, 1, a.RawCMatrix(), b.RawCMatrix(), 0, c.RawCMatrix())
	return c
}

// Scale multiplies every element of a by f, in place.
func Scale(f complex128, a *mat.CDense) {
	raw := a.RawCMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			row[j] *= f
		}
	}
}

// CholeskyLower factorizes a Hermitian positive-definite matrix as A = L·Lᴴ
// and returns the lower-triangular factor L with a real positive diagonal.
// Only the lower triangle of a is read. Singular matrices whose pivots
// cancel to rounding residue are rejected, not factorized.
func CholeskyLower(a *mat.CDense) (*mat.CDense, error) {
	n, c := a.Dims()
	if n != c {
		return nil, fmt.Errorf("cmplxmat: cholesky of %dx%d non-square matrix", n, c)
	}

	l := mat.NewCDense(n, n, nil)
	for j := 0; j < n; j++ {
		ajj := real(a.At(j, j))
		d := ajj
		for k := 0; k < j; k++ {
			v := l.At(j, k)
			d -= real(v)*real(v) + imag(v)*imag(v)
		}
		if d <= pivotTol*ajj || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: pivot %d is %g", ErrNotPositiveDefinite, j, d)
		}
		ljj := math.Sqrt(d)
		l.Set(j, j, complex(ljj, 0))

		for i := j + 1; i < n; i++ {
			s := a.At(i, j)
			for k := 0; k < j; k++ {
				s -= l.At(i, k) * cmplx.Conj(l.At(j, k))
			}
			l.Set(i, j, s/complex(ljj, 0))
		}
	}
	return l, nil
}

// InverseLower inverts a lower-triangular matrix by forward substitution.
// The diagonal must be non-zero; CholeskyLower output always satisfies this.
func InverseLower(l *mat.CDense) *mat.CDense {
	n, _ := l.Dims()
	inv := mat.NewCDense(n, n, nil)

	for j := 0; j < n; j++ {
		inv.Set(j, j, 1/l.At(j, j))
		for i := j + 1; i < n; i++ {
			var s complex128
			for k := j; k < i; k++ {
				s += l.At(i, k) * inv.At(k, j)
			}
			inv.Set(i, j, -s/l.At(i, i))
		}
	}
	return inv
}
