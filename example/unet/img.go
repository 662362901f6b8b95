package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// readImage reads image from file.
func readImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png", ".PNG":
		return png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		return tiff.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported image format: %v", ext)
	}
}

// grayPixels converts img to grayscale values in [0, 1], row-major.
func grayPixels(img image.Image) (vals []float64, h, w int) {
	bounds := img.Bounds()
	gray := image.NewGray16(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	h, w = bounds.Dy(), bounds.Dx()
	vals = make([]float64, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			vals = append(vals, float64(gray.Gray16At(x, y).Y)/math.MaxUint16)
		}
	}

	return vals, h, w
}

// resizeSquare resizes img to size x size. size <= 0 leaves it as is.
func resizeSquare(img image.Image, size int) image.Image {
	if size <= 0 {
		return img
	}
	return imaging.Resize(img, size, size, imaging.Lanczos)
}

// saveGray writes h x w values as a 16-bit grayscale image. Values are
// min-max stretched unless they already lie in [0, 1].
func saveGray(vals []float64, h, w int, filename string) error {
	lo, hi := floats.Min(vals), floats.Max(vals)
	if lo >= 0 && hi <= 1 {
		lo, hi = 0, 1
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := (vals[y*w+x] - lo) / span
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(v * math.MaxUint16))})
		}
	}

	return imaging.Save(img, filename)
}

// saveHistogram plots a value histogram of vals to filename.
func saveHistogram(vals []float64, bins int, title, filename string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}

	v := make(plotter.Values, len(vals))
	copy(v, vals)
	h, err := plotter.NewHist(v, bins)
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.Add(h)

	return p.Save(4*vg.Inch, 4*vg.Inch, filename)
}
