package unet

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dip/base"
)

const (
	upGroups   = 2
	kernelSize = 3
)

// UpBlock upsamples a coarse feature map, fuses it with a projected skip
// feature map and refines the result with two convs.
type UpBlock struct {
	SkipConv *nn.SequentialT
	Conv     *nn.SequentialT

	// skip is false when the block was configured with 0 skip channels.
	// The placeholder 1-channel projection is still computed and then
	// multiplied by zero.
	skip bool
}

// NewUpBlock creates an UpBlock taking a cIn-channel coarse map and a
// cOut-channel skip map, producing cOut channels. skipCh is the width of the
// skip projection; 0 disables the skip path.
func NewUpBlock(p *nn.Path, cIn, cOut, skipCh int64, norm base.NormType) *UpBlock {
	skip := skipCh > 0
	if !skip {
		skipCh = 1
	}
	pad := int64((kernelSize - 1) / 2)

	conv := base.NewStack(p.Sub("conv"))
	if norm != base.NoNorm {
		// layer norm over the fused channels
		conv.Norm(norm, 1, cIn+skipCh)
	}
	conv.Conv(cIn+skipCh, cOut, kernelSize, pad, 1).
		Norm(norm, upGroups, cOut).
		LeakyRelu().
		Conv(cOut, cOut, kernelSize, pad, 1).
		Norm(norm, upGroups, cOut).
		LeakyRelu()

	skipConv := base.NewStack(p.Sub("skip_conv")).
		Conv(cOut, skipCh, 1, 0, 1).
		Norm(norm, 1, skipCh).
		LeakyRelu()

	return &UpBlock{
		SkipConv: skipConv.Seq(),
		Conv:     conv.Seq(),
		skip:     skip,
	}
}

// HasSkip reports whether the skip path contributes to the output.
func (b *UpBlock) HasSkip() bool {
	return b.skip
}

// ForwardSkip upsamples x1 to twice its size and fuses it with x2.
// x1, x2 should be in shape [Batch CHW]; the output has x2's spatial size
// whenever 2*size(x1) >= size(x2).
func (b *UpBlock) ForwardSkip(x1, x2 *ts.Tensor, train bool) *ts.Tensor {
	xUp := upsampling(x1)
	proj := b.SkipConv.ForwardT(x2, train)
	if !b.skip {
		proj = proj.MustMul1(ts.FloatScalar(0), true)
	}

	out := b.fuse(xUp, proj, train)
	xUp.MustDrop()
	proj.MustDrop()

	return out
}

// fuse concatenates the upsampled map with the skip projection and runs the
// conv stack.
func (b *UpBlock) fuse(xUp, proj *ts.Tensor, train bool) *ts.Tensor {
	x := base.Concat(xUp, proj)
	out := b.Conv.ForwardT(x, train)
	x.MustDrop()

	return out
}

// upsampling doubles H and W with bilinear interpolation, aligned corners.
func upsampling(x *ts.Tensor) *ts.Tensor {
	size := x.MustSize()
	outSize := []int64{size[2] * 2, size[3] * 2}

	return x.MustUpsampleBilinear2d(outSize, true, nil, nil, false)
}

// SkipIndex returns the position in the encoder feature list consumed by
// up-stage stage (0-based) of a network with the given number of scales.
// features[0] is the InBlock output and features[i] the output of down-stage
// i (1-based), so decoding walks the list backwards from the entry before
// the bottleneck.
func SkipIndex(scales, stage int) int {
	return scales - 2 - stage
}

// UNetDecoder is the expanding path: scales-1 UpBlocks applied from the
// bottleneck up to the input resolution.
type UNetDecoder struct {
	Up []*UpBlock
}

// NewUNetDecoder creates a UNetDecoder. Up-stage i (0-based) maps
// channels[-(i+1)] to channels[-(i+2)] with skip width skipChannels[-(i+1)].
// Variables are created under `up.<i>`.
func NewUNetDecoder(p *nn.Path, channels, skipChannels []int64, norm base.NormType) *UNetDecoder {
	n := len(channels)
	up := make([]*UpBlock, 0, n-1)
	for i := 1; i < n; i++ {
		up = append(up, NewUpBlock(p.Sub("up").Sub(fmt.Sprint(i-1)), channels[n-i], channels[n-i-1], skipChannels[n-i], norm))
	}

	return &UNetDecoder{up}
}

// ForwardFeatures decodes encoder features, shallowest first, into a map at
// the resolution of features[0].
func (d *UNetDecoder) ForwardFeatures(features []*ts.Tensor, train bool) *ts.Tensor {
	scales := len(d.Up) + 1
	if len(features) != scales {
		log.Fatalf("Expected features of %v tensors. Got %v\n", scales, len(features))
	}

	x := features[scales-1].MustShallowClone()
	for i, up := range d.Up {
		z := up.ForwardSkip(x, features[SkipIndex(scales, i)], train)
		x.MustDrop()
		x = z
	}

	return x
}
