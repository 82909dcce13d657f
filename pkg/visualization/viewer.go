// Package visualization renders the outputs of the coil preprocessing
// pipeline (sensitivity maps, power maps) as grayscale images for visual
// inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"

	"mricoilprep/pkg/coilmap"
)

// Renderer converts complex fields and power maps of a fixed spatial shape
// into grayscale images.
type Renderer struct {
	// dimensions of the rendered fields
	width  int
	height int
}

// NewRenderer creates a renderer for fields of the given spatial shape.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		width:  width,
		height: height,
	}
}

// MagnitudeImage renders the magnitude of a complex field, normalized so the
// largest magnitude maps to white. An all-zero field renders black.
func (r *Renderer) MagnitudeImage(field []complex128) (image.Image, error) {
	if len(field) != r.width*r.height {
		return nil, fmt.Errorf("field has %d values, expected %dx%d", len(field), r.width, r.height)
	}

	maxVal := 0.0
	for _, c := range field {
		if v := cmplx.Abs(c); v > maxVal {
			maxVal = v
		}
	}

	img := image.NewGray16(image.Rect(0, 0, r.width, r.height))
	if maxVal == 0 {
		return img, nil
	}

	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			v := cmplx.Abs(field[y*r.width+x]) / maxVal
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Min(65535, v*65535))})
		}
	}
	return img, nil
}

// PhaseImage renders the phase of a complex field, mapping [-π, π] onto the
// full gray range.
func (r *Renderer) PhaseImage(field []complex128) (image.Image, error) {
	if len(field) != r.width*r.height {
		return nil, fmt.Errorf("field has %d values, expected %dx%d", len(field), r.width, r.height)
	}

	img := image.NewGray16(image.Rect(0, 0, r.width, r.height))
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			p := (cmplx.Phase(field[y*r.width+x]) + math.Pi) / (2 * math.Pi)
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Min(65535, p*65535))})
		}
	}
	return img, nil
}

// PowerImage renders a non-negative power map, normalized to its maximum.
func (r *Renderer) PowerImage(power []float64) (image.Image, error) {
	if len(power) != r.width*r.height {
		return nil, fmt.Errorf("power map has %d values, expected %dx%d", len(power), r.width, r.height)
	}

	maxVal := 0.0
	for _, v := range power {
		if v > maxVal {
			maxVal = v
		}
	}

	img := image.NewGray16(image.Rect(0, 0, r.width, r.height))
	if maxVal == 0 {
		return img, nil
	}

	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			v := power[y*r.width+x] / maxVal
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, v*65535)))})
		}
	}
	return img, nil
}

// SavePNG writes an image to disk as PNG.
func (r *Renderer) SavePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveMapSequence renders every coil of a sensitivity stack as magnitude and
// phase PNGs in the given directory, named csm_mag_000.png and
// csm_phase_000.png per coil.
func (r *Renderer) SaveMapSequence(csm *coilmap.Stack, outputDir string) error {
	if csm.Width != r.width || csm.Height != r.height {
		return fmt.Errorf("stack shape %dx%d does not match renderer %dx%d", csm.Width, csm.Height, r.width, r.height)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for c := 0; c < csm.Coils; c++ {
		plane := csm.Plane(c)

		mag, err := r.MagnitudeImage(plane)
		if err != nil {
			return err
		}
		if err := r.SavePNG(mag, filepath.Join(outputDir, fmt.Sprintf("csm_mag_%03d.png", c))); err != nil {
			return err
		}

		phase, err := r.PhaseImage(plane)
		if err != nil {
			return err
		}
		if err := r.SavePNG(phase, filepath.Join(outputDir, fmt.Sprintf("csm_phase_%03d.png", c))); err != nil {
			return err
		}
	}

	return nil
}
