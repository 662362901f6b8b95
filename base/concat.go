package base

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Concat concatenates [B C H W] tensors along the channel dimension.
//
// When spatial sizes differ, every input is first center-cropped to the
// smallest height and width found among the inputs, the crop starting at
// (size-target)/2 on each axis. Border content is discarded, never padded.
func Concat(xs ...*ts.Tensor) *ts.Tensor {
	minH, minW := int64(-1), int64(-1)
	same := true
	sizes := make([][]int64, len(xs))
	for i, x := range xs {
		size := x.MustSize()
		sizes[i] = size
		if i > 0 && (size[2] != minH || size[3] != minW) {
			same = false
		}
		if minH < 0 || size[2] < minH {
			minH = size[2]
		}
		if minW < 0 || size[3] < minW {
			minW = size[3]
		}
	}

	if same {
		inputs := make([]ts.Tensor, len(xs))
		for i, x := range xs {
			inputs[i] = *x
		}
		return ts.MustCat(inputs, 1)
	}

	inputs := make([]ts.Tensor, len(xs))
	crops := make([]*ts.Tensor, len(xs))
	for i, x := range xs {
		crops[i] = CenterCrop(x, sizes[i], minH, minW)
		inputs[i] = *crops[i]
	}
	out := ts.MustCat(inputs, 1)
	for _, c := range crops {
		c.MustDrop()
	}

	return out
}

// CenterCrop narrows x (of the given size) to h x w on its last two dims.
// The offset on each axis is (size-target)/2.
func CenterCrop(x *ts.Tensor, size []int64, h, w int64) *ts.Tensor {
	offH := (size[2] - h) / 2
	offW := (size[3] - w) / 2
	rows := x.MustNarrow(2, offH, h, false)
	return rows.MustNarrow(3, offW, w, true)
}
