package unet

import (
	"fmt"
	"log/slog"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dip/base"
	"github.com/sugarme/dip/encoder"
	"github.com/sugarme/dip/scale"
)

// OutputMode is the final activation of the network, fixed at construction.
type OutputMode int

const (
	OutputIdentity OutputMode = iota
	OutputSigmoid
	OutputScale
)

func (m OutputMode) String() string {
	switch m {
	case OutputSigmoid:
		return "sigmoid"
	case OutputScale:
		return "scale"
	default:
		return "none"
	}
}

// UNet is the image-prior encoder-decoder.
// Ref: https://arxiv.org/abs/1711.10925
type UNet struct {
	encoder *encoder.ConvEncoder
	decoder *UNetDecoder
	outc    *nn.Conv2D
	output  ts.ModuleT

	scaleIn  *scale.Module
	scaleOut *scale.Module

	cfg  Config
	mode OutputMode
	norm base.NormType
}

type options struct {
	factory scale.Factory
}

// Option configures New.
type Option func(*options)

// WithScaleFactory replaces scale.Modules as the source of the input and
// output scale modules.
func WithScaleFactory(f scale.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// New creates a UNet from cfg with variables rooted at p.
func New(p *nn.Path, cfg Config, opts ...Option) (*UNet, error) {
	o := options{factory: scale.Modules}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	norm, err := base.ParseNormType(cfg.UseNorm, cfg.NormType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	enc, err := encoder.NewConvEncoder(p, cfg.InChannels, cfg.Channels, norm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	n := &UNet{
		encoder: enc,
		decoder: NewUNetDecoder(p, cfg.Channels, cfg.SkipChannels, norm),
		outc:    base.NewProjectionHead(p.Sub("outc").Sub("conv"), cfg.Channels[0], cfg.OutChannels),
		cfg:     cfg,
		norm:    norm,
	}

	if cfg.UseScaleInLayer || cfg.UseScaleOutLayer {
		// the input scale layer only ever sees the first input channel
		n.scaleIn, n.scaleOut, err = o.factory(p, 1, cfg.OutChannels, cfg.Scaling)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if cfg.UseScaleInLayer && n.scaleIn == nil {
			return nil, fmt.Errorf("%w: scale factory returned no input scale module", ErrInvalidConfig)
		}
		if cfg.UseScaleOutLayer && n.scaleOut == nil {
			return nil, fmt.Errorf("%w: scale factory returned no output scale module", ErrInvalidConfig)
		}
	}

	switch {
	case cfg.UseSigmoid:
		n.mode = OutputSigmoid
		n.output = nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
			return xs.MustSigmoid(false)
		})
	case cfg.UseScaleOutLayer:
		n.mode = OutputScale
		n.output = n.scaleOut
	default:
		n.mode = OutputIdentity
		n.output = base.NewIdentity()
	}

	slog.Debug("unet created", "in_ch", cfg.InChannels, "out_ch", cfg.OutChannels,
		"scales", cfg.Scales, "channels", cfg.Channels, "skip_channels", cfg.SkipChannels,
		"norm", norm, "output", n.mode, "scale_in", cfg.UseScaleInLayer)

	return n, nil
}

// Scales returns the number of resolution levels.
func (n *UNet) Scales() int {
	return n.cfg.Scales
}

// OutputMode returns the resolved output activation.
func (n *UNet) OutputMode() OutputMode {
	return n.mode
}

// Config returns the config the network was built from.
func (n *UNet) Config() Config {
	return n.cfg
}

// Forward runs the network on x [B C H W] and returns [B out_ch H W].
// It fails with ErrUnsupportedShape when the input scale layer is enabled
// and x has neither 1 nor 2 channels.
func (n *UNet) Forward(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	x0, err := n.scaleInput(x, train)
	if err != nil {
		return nil, err
	}

	features := n.encoder.ForwardAll(x0, train)
	x0.MustDrop()
	z := n.decoder.ForwardFeatures(features, train)
	for _, f := range features {
		f.MustDrop()
	}

	logits := n.outc.ForwardT(z, train)
	z.MustDrop()
	out := n.output.ForwardT(logits, train)
	logits.MustDrop()

	return out, nil
}

// ForwardT implements ts.ModuleT for UNet. It panics where Forward returns
// an error.
func (n *UNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out, err := n.Forward(x, train)
	if err != nil {
		panic(err)
	}

	return out
}

// scaleInput applies the input scale layer to the first channel of x.
// With the layer disabled it returns a shallow clone of x.
func (n *UNet) scaleInput(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	if !n.cfg.UseScaleInLayer {
		return x.MustShallowClone(), nil
	}

	size := x.MustSize()
	switch size[1] {
	case 1:
		return n.scaleIn.ForwardT(x, train), nil
	case 2:
		first := x.MustNarrow(1, 0, 1, false)
		second := x.MustNarrow(1, 1, 1, false)
		scaled := n.scaleIn.ForwardT(first, train)
		out := ts.MustCat([]ts.Tensor{*scaled, *second}, 1)
		first.MustDrop()
		second.MustDrop()
		scaled.MustDrop()

		return out, nil
	default:
		return nil, fmt.Errorf("%w: input scale layer expects 1 or 2 channels, got %v", ErrUnsupportedShape, size[1])
	}
}

// LayerInfo describes one block of the network.
type LayerInfo struct {
	Name   string
	Kind   string
	In     int64
	Out    int64
	Skip   int64
	Stride int64
}

// Summary lists the blocks in forward order.
func (n *UNet) Summary() []LayerInfo {
	cfg := n.cfg
	var layers []LayerInfo
	if cfg.UseScaleInLayer {
		layers = append(layers, LayerInfo{Name: "scale_in", Kind: "Scale", In: 1, Out: 1, Stride: 1})
	}
	layers = append(layers, LayerInfo{Name: "inc", Kind: "InBlock", In: cfg.InChannels, Out: cfg.Channels[0], Stride: 1})
	for i := 1; i < cfg.Scales; i++ {
		layers = append(layers, LayerInfo{
			Name:   fmt.Sprintf("down.%d", i-1),
			Kind:   "DownBlock",
			In:     cfg.Channels[i-1],
			Out:    cfg.Channels[i],
			Stride: 2,
		})
	}
	s := cfg.Scales
	for i := 1; i < s; i++ {
		layers = append(layers, LayerInfo{
			Name:   fmt.Sprintf("up.%d", i-1),
			Kind:   "UpBlock",
			In:     cfg.Channels[s-i],
			Out:    cfg.Channels[s-i-1],
			Skip:   cfg.SkipChannels[s-i],
			Stride: 1,
		})
	}
	layers = append(layers, LayerInfo{Name: "outc", Kind: "OutBlock", In: cfg.Channels[0], Out: cfg.OutChannels, Stride: 1})
	switch n.mode {
	case OutputSigmoid:
		layers = append(layers, LayerInfo{Name: "sigmoid", Kind: "Sigmoid", In: cfg.OutChannels, Out: cfg.OutChannels, Stride: 1})
	case OutputScale:
		layers = append(layers, LayerInfo{Name: "scale_out", Kind: "Scale", In: cfg.OutChannels, Out: cfg.OutChannels, Stride: 1})
	}

	return layers
}
