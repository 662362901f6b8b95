package base_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dip/base"
)

func values(x *ts.Tensor) []float64 {
	d := x.MustContiguous(false).MustTotype(gotch.Double, true)
	defer d.MustDrop()
	return d.Float64Values()
}

func arange(n int, size []int64) *ts.Tensor {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i)
	}
	return ts.MustOfSlice(vals).MustView(size, true)
}

func TestConcatSameSize(t *testing.T) {
	a := arange(2*3*3, []int64{1, 2, 3, 3})
	b := ts.MustOnes([]int64{1, 3, 3, 3}, gotch.Float, gotch.CPU)
	defer a.MustDrop()
	defer b.MustDrop()

	out := base.Concat(a, b)
	defer out.MustDrop()
	assert.Equal(t, []int64{1, 5, 3, 3}, out.MustSize())

	got := values(out)
	assert.Equal(t, values(a), got[:18])
	for _, v := range got[18:] {
		assert.Equal(t, 1.0, v)
	}
}

func TestConcatCropsToSmallest(t *testing.T) {
	a := arange(25, []int64{1, 1, 5, 5})
	b := ts.MustZeros([]int64{1, 1, 4, 4}, gotch.Float, gotch.CPU)
	defer a.MustDrop()
	defer b.MustDrop()

	out := base.Concat(a, b)
	defer out.MustDrop()
	assert.Equal(t, []int64{1, 2, 4, 4}, out.MustSize())

	// offset (5-4)/2 = 0: top-left 4x4 window of a
	want := []float64{
		0, 1, 2, 3,
		5, 6, 7, 8,
		10, 11, 12, 13,
		15, 16, 17, 18,
	}
	assert.Equal(t, want, values(out)[:16])
}

func TestConcatCenterOffset(t *testing.T) {
	a := arange(36, []int64{1, 1, 6, 6})
	b := ts.MustZeros([]int64{1, 2, 2, 4}, gotch.Float, gotch.CPU)
	c := ts.MustZeros([]int64{1, 1, 3, 3}, gotch.Float, gotch.CPU)
	defer a.MustDrop()
	defer b.MustDrop()
	defer c.MustDrop()

	// min H = 2, min W = 3: a offsets (2, 1), b offsets (0, 0), c offsets (0, 0)
	out := base.Concat(a, b, c)
	defer out.MustDrop()
	assert.Equal(t, []int64{1, 4, 2, 3}, out.MustSize())
	assert.Equal(t, []float64{13, 14, 15, 19, 20, 21}, values(out)[:6])
}

func TestCenterCrop(t *testing.T) {
	a := arange(49, []int64{1, 1, 7, 7})
	defer a.MustDrop()

	out := base.CenterCrop(a, a.MustSize(), 3, 3)
	defer out.MustDrop()
	assert.Equal(t, []float64{16, 17, 18, 23, 24, 25, 30, 31, 32}, values(out))
}
