package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dip/base"
)

// Group counts of the group norms inside encoder blocks.
const (
	inGroups   = 2
	downGroups = 4
)

const kernelSize = 3

// InBlock is a single conv (stride 1, same padding), optionally
// normalized, followed by LeakyReLU.
type InBlock struct {
	Conv *nn.SequentialT
}

// NewInBlock creates an InBlock mapping cIn to cOut channels.
func NewInBlock(p *nn.Path, cIn, cOut int64, norm base.NormType) *InBlock {
	conv := base.ConvNormAct(p.Sub("conv"), cIn, cOut, kernelSize, 1, norm, inGroups)
	return &InBlock{conv}
}

// ForwardT implements ts.ModuleT interface.
func (b *InBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return b.Conv.ForwardT(x, train)
}

// DownBlock halves the spatial size with a stride-2 conv and refines the
// result with a stride-1 conv. Each conv is followed by optional norm and
// LeakyReLU.
type DownBlock struct {
	Conv *nn.SequentialT
}

// NewDownBlock creates a DownBlock mapping cIn to cOut channels.
func NewDownBlock(p *nn.Path, cIn, cOut int64, norm base.NormType) *DownBlock {
	pad := int64((kernelSize - 1) / 2)
	conv := base.NewStack(p.Sub("conv")).
		Conv(cIn, cOut, kernelSize, pad, 2).
		Norm(norm, downGroups, cOut).
		LeakyRelu().
		Conv(cOut, cOut, kernelSize, pad, 1).
		Norm(norm, downGroups, cOut).
		LeakyRelu().
		Seq()

	return &DownBlock{conv}
}

// ForwardT implements ts.ModuleT interface.
func (b *DownBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return b.Conv.ForwardT(x, train)
}

// ConvEncoder is the contracting path of the image-prior U-Net:
// one InBlock followed by len(channels)-1 DownBlocks.
type ConvEncoder struct {
	Inc  *InBlock
	Down []*DownBlock
}

// NewConvEncoder creates a ConvEncoder. channels[i] is the width of the
// feature map at scale i. Variables are created under `inc` and `down.<i>`.
func NewConvEncoder(p *nn.Path, cIn int64, channels []int64, norm base.NormType) (*ConvEncoder, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("encoder: need at least one scale")
	}

	inc := NewInBlock(p.Sub("inc"), cIn, channels[0], norm)
	down := make([]*DownBlock, 0, len(channels)-1)
	for i := 1; i < len(channels); i++ {
		down = append(down, NewDownBlock(p.Sub("down").Sub(fmt.Sprint(i-1)), channels[i-1], channels[i], norm))
	}

	return &ConvEncoder{
		Inc:  inc,
		Down: down,
	}, nil
}

// Scales returns the number of feature maps ForwardAll produces.
func (e *ConvEncoder) Scales() int {
	return len(e.Down) + 1
}

// ForwardAll implements Encoder interface for ConvEncoder.
//
//	features[0]: [B C0 H W]
//	features[i]: [B Ci H/2^i W/2^i] (rounded up)
func (e *ConvEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	features := make([]*ts.Tensor, 0, e.Scales())
	features = append(features, e.Inc.ForwardT(x, train))
	for _, d := range e.Down {
		features = append(features, d.ForwardT(features[len(features)-1], train))
	}

	return features
}
