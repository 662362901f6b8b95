package base

import (
	"fmt"
	"strconv"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// LeakySlope is the negative slope of every LeakyReLU in the network.
const LeakySlope = 0.2

// Identity is a nn.ModuleT placeholder.
// It forwards the input tensor as such, keeping it attached to the graph.
type Identity struct{}

// Forward implement nn.Module for Identity struct
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// ForwardT implement nn.ModuleT for Identity struct.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

// NewIdentity creates a new Identity struct.
func NewIdentity() *Identity {
	return &Identity{}
}

// NormType selects the normalization layer used inside conv blocks.
type NormType int

const (
	NoNorm NormType = iota
	GroupNorm2D
	BatchNorm2D
)

func (n NormType) String() string {
	switch n {
	case NoNorm:
		return "none"
	case GroupNorm2D:
		return "group"
	case BatchNorm2D:
		return "batch"
	default:
		return "NormType(" + strconv.Itoa(int(n)) + ")"
	}
}

// ParseNormType resolves the (useNorm, normType) pair of a network config.
// normType is ignored when useNorm is false.
func ParseNormType(useNorm bool, normType string) (NormType, error) {
	if !useNorm {
		return NoNorm, nil
	}
	switch normType {
	case "group", "":
		return GroupNorm2D, nil
	case "batch":
		return BatchNorm2D, nil
	default:
		return NoNorm, fmt.Errorf("unknown norm type %q (want group or batch)", normType)
	}
}

// GroupNorm normalizes channels in groups with per-sample statistics.
// With NumGroups = 1 it behaves as a layer norm over (C, H, W).
type GroupNorm struct {
	Ws        *ts.Tensor
	Bs        *ts.Tensor
	NumGroups int64
	Eps       float64
}

// NewGroupNorm creates a GroupNorm with affine weight (ones) and bias (zeros).
func NewGroupNorm(p *nn.Path, numGroups, numChannels int64) *GroupNorm {
	return &GroupNorm{
		Ws:        p.NewVar("weight", []int64{numChannels}, nn.NewConstInit(1.0)),
		Bs:        p.NewVar("bias", []int64{numChannels}, nn.NewConstInit(0.0)),
		NumGroups: numGroups,
		Eps:       1e-5,
	}
}

// ForwardT implements ts.ModuleT for GroupNorm.
func (g *GroupNorm) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return ts.MustGroupNorm(x, g.NumGroups, g.Ws, g.Bs, g.Eps, false)
}

// NewNorm creates the normalization layer of the given type over numChannels.
// numGroups only applies to group norm. It returns nil for NoNorm.
func NewNorm(p *nn.Path, typ NormType, numGroups, numChannels int64) ts.ModuleT {
	switch typ {
	case GroupNorm2D:
		return NewGroupNorm(p, numGroups, numChannels)
	case BatchNorm2D:
		return nn.BatchNorm2D(p, numChannels, nn.DefaultBatchNormConfig())
	default:
		return nil
	}
}

// LeakyRelu applies max(x, slope*x) for 0 <= slope < 1.
// The input tensor is kept.
func LeakyRelu(x *ts.Tensor, slope float64) *ts.Tensor {
	// (1-slope)*relu(x) + slope*x
	lin := x.MustMul1(ts.FloatScalar(slope), false)
	pos := x.MustRelu(false).MustMul1(ts.FloatScalar(1-slope), true)
	res := pos.MustAdd(lin, true)
	lin.MustDrop()

	return res
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Stack builds a nn.SequentialT whose parametrised layers are named by their
// position, so variables read `<path>.<index>.weight` the same way as a
// torch.nn.Sequential state dict.
type Stack struct {
	p   *nn.Path
	seq *nn.SequentialT
	n   int
}

// NewStack creates an empty Stack rooted at p.
func NewStack(p *nn.Path) *Stack {
	return &Stack{p: p, seq: nn.SeqT()}
}

func (s *Stack) next() *nn.Path {
	sub := s.p.Sub(strconv.Itoa(s.n))
	s.n++
	return sub
}

// Conv appends a square conv with bias.
func (s *Stack) Conv(cIn, cOut, ksize, padding, stride int64) *Stack {
	s.seq.Add(Conv2d(s.next(), cIn, cOut, ksize, padding, stride))
	return s
}

// Norm appends a normalization layer. NoNorm adds nothing and takes no index.
func (s *Stack) Norm(typ NormType, numGroups, numChannels int64) *Stack {
	if typ == NoNorm {
		return s
	}
	s.seq.Add(NewNorm(s.next(), typ, numGroups, numChannels))
	return s
}

// LeakyRelu appends a LeakyReLU(LeakySlope) activation.
func (s *Stack) LeakyRelu() *Stack {
	s.n++
	s.seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return LeakyRelu(xs, LeakySlope)
	}))
	return s
}

// Seq returns the built SequentialT.
func (s *Stack) Seq() *nn.SequentialT {
	return s.seq
}

// ConvNormAct creates a SequentialT of conv, optional norm and LeakyReLU.
// Kernel size must be odd; padding keeps the spatial size at stride 1.
func ConvNormAct(p *nn.Path, cIn, cOut, ksize, stride int64, norm NormType, numGroups int64) *nn.SequentialT {
	return NewStack(p).
		Conv(cIn, cOut, ksize, (ksize-1)/2, stride).
		Norm(norm, numGroups, cOut).
		LeakyRelu().
		Seq()
}
