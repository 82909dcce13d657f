// Package smoothing implements the separable box-average filter used to
// regularize per-pixel coil covariance estimates before eigen-extraction.
// Real and imaginary components are smoothed independently, matching the
// behaviour of a uniform filter applied to each part of a complex image.
package smoothing

import (
	"errors"
	"fmt"
)

// ErrInvalidWindow is returned when the smoothing window is non-positive or
// larger than the smallest extent of the data. Clamping is deliberately not
// performed: a window that does not fit would silently distort every pixel,
// so the caller has to pick a window that fits.
var ErrInvalidWindow = errors.New("smoothing: invalid window size")

// Smooth2D applies a centered box-average filter of the given window to a
// complex 2D field stored row-major as data[y*width + x]. The real and
// imaginary parts are filtered independently. Boundaries use symmetric
// reflection (d c b a | a b c d), the standard uniform-filter convention.
// The input is never modified; a window of 1 returns a copy of the input.
func Smooth2D(data []complex128, height, width, window int) ([]complex128, error) {
	if err := checkWindow(window, height, width); err != nil {
		return nil, err
	}
	if len(data) != height*width {
		return nil, fmt.Errorf("smoothing: data length %d does not match %dx%d", len(data), height, width)
	}

	out := make([]complex128, len(data))
	copy(out, data)
	if window == 1 {
		return out, nil
	}

	tmp := make([]complex128, len(data))

	// Pass along x: rows are contiguous.
	for y := 0; y < height; y++ {
		boxPass(out[y*width:(y+1)*width], tmp[y*width:(y+1)*width], width, 1, window)
	}
	// Pass along y: columns are strided.
	for x := 0; x < width; x++ {
		boxPass(tmp[x:], out[x:], height, width, window)
	}

	return out, nil
}

// Smooth3D is the 3D counterpart of Smooth2D for a complex field stored as
// data[z*height*width + y*width + x], with the same window on every axis.
func Smooth3D(data []complex128, depth, height, width, window int) ([]complex128, error) {
	if err := checkWindow(window, depth, height, width); err != nil {
		return nil, err
	}
	if len(data) != depth*height*width {
		return nil, fmt.Errorf("smoothing: data length %d does not match %dx%dx%d", len(data), depth, height, width)
	}

	out := make([]complex128, len(data))
	copy(out, data)
	if window == 1 {
		return out, nil
	}

	tmp := make([]complex128, len(data))
	plane := height * width

	// x axis
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			off := z*plane + y*width
			boxPass(out[off:off+width], tmp[off:off+width], width, 1, window)
		}
	}
	// y axis
	for z := 0; z < depth; z++ {
		for x := 0; x < width; x++ {
			off := z*plane + x
			boxPass(tmp[off:], out[off:], height, width, window)
		}
	}
	// z axis
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := y*width + x
			boxPass(out[off:], tmp[off:], depth, plane, window)
		}
	}
	copy(out, tmp)

	return out, nil
}

// boxPass runs a single 1D box average over n samples of src spaced stride
// apart, writing to the same positions in dst. An even window spans
// [-w/2, w/2-1] around each sample, an odd window is centered.
func boxPass(src, dst []complex128, n, stride, window int) {
	left := window / 2
	right := window - 1 - left
	inv := complex(1.0/float64(window), 0)

	for i := 0; i < n; i++ {
		var sum complex128
		for k := i - left; k <= i+right; k++ {
			sum += src[reflect(k, n)*stride]
		}
		dst[i*stride] = sum * inv
	}
}

// reflect maps an out-of-range index into [0, n) by symmetric reflection.
// Valid for offsets within one reflection, which checkWindow guarantees.
func reflect(i, n int) int {
	if i < 0 {
		return -i - 1
	}
	if i >= n {
		return 2*n - 1 - i
	}
	return i
}

func checkWindow(window int, extents ...int) error {
	if window < 1 {
		return fmt.Errorf("%w: %d is not positive", ErrInvalidWindow, window)
	}
	for _, n := range extents {
		if window > n {
			return fmt.Errorf("%w: %d exceeds data extent %d", ErrInvalidWindow, window, n)
		}
	}
	return nil
}
