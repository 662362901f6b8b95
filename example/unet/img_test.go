package main

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveGrayRoundTrip(t *testing.T) {
	vals := []float64{0, 0.25, 0.5, 0.75, 1, 1}
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, saveGray(vals, 2, 3, path))

	img, err := readImage(path)
	require.NoError(t, err)
	got, h, w := grayPixels(img)
	assert.Equal(t, 2, h)
	assert.Equal(t, 3, w)
	for i := range vals {
		assert.InDelta(t, vals[i], got[i], 1e-3)
	}
}

func TestSaveGrayStretches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, saveGray([]float64{-2, 0, 2, 6}, 2, 2, path))

	img, err := readImage(path)
	require.NoError(t, err)
	got, _, _ := grayPixels(img)
	assert.InDelta(t, 0.0, got[0], 1e-3)
	assert.InDelta(t, 0.25, got[1], 1e-3)
	assert.InDelta(t, 1.0, got[3], 1e-3)
}

func TestResizeSquare(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 6))
	src.SetGray(0, 0, color.Gray{Y: 255})

	assert.Equal(t, src.Bounds(), resizeSquare(src, 0).Bounds())
	assert.Equal(t, image.Rect(0, 0, 8, 8), resizeSquare(src, 8).Bounds())
}

func TestReadImageUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bmp")
	require.NoError(t, imaging.Save(image.NewGray(image.Rect(0, 0, 2, 2)), path))

	_, err := readImage(path)
	assert.Error(t, err)
}

func TestSaveHistogram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist.png")
	require.NoError(t, saveHistogram([]float64{0.1, 0.2, 0.2, 0.9}, 4, "values", path))

	_, err := imaging.Open(path)
	assert.NoError(t, err)
}
