// Package scale provides the input/output rescaling layers of the image-prior
// network: per-channel affine maps that normalize the network input and map
// the network output back to the data range.
package scale

import (
	"errors"
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

var (
	// ErrMissingConfig is returned when scale modules are requested without
	// their configuration.
	ErrMissingConfig = errors.New("scale: missing scaling config")
	// ErrInvalidConfig is returned for non-positive standard deviations.
	ErrInvalidConfig = errors.New("scale: invalid scaling config")
)

// Config holds the data statistics the scale modules are initialized with.
type Config struct {
	MeanIn  float64 `yaml:"mean_in"`
	MeanOut float64 `yaml:"mean_out"`
	StdIn   float64 `yaml:"std_in"`
	StdOut  float64 `yaml:"std_out"`

	// LearnableIn/LearnableOut register the affine parameters as trainable
	// variables. Frozen modules hold plain tensors outside the var store.
	LearnableIn  bool `yaml:"learnable_in"`
	LearnableOut bool `yaml:"learnable_out"`
}

// DefaultConfig returns identity statistics with a trainable output module.
func DefaultConfig() *Config {
	return &Config{
		StdIn:        1.0,
		StdOut:       1.0,
		LearnableOut: true,
	}
}

// Validate checks that both standard deviations are positive.
func (c *Config) Validate() error {
	if c.StdIn <= 0 || c.StdOut <= 0 {
		return fmt.Errorf("%w: std_in=%v std_out=%v must be > 0", ErrInvalidConfig, c.StdIn, c.StdOut)
	}
	return nil
}

// Module is a per-channel affine map y = x*w + b with w, b of shape [1 C 1 1].
type Module struct {
	Ws *ts.Tensor
	Bs *ts.Tensor
}

// ForwardT implements ts.ModuleT for Module.
func (m *Module) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustMul(m.Ws, false).MustAdd(m.Bs, true)
}

// Forward implements ts.Module for Module.
func (m *Module) Forward(x *ts.Tensor) *ts.Tensor {
	return m.ForwardT(x, false)
}

// NewModule creates an affine Module over ch channels initialized to
// weight w and bias b.
func NewModule(p *nn.Path, ch int64, w, b float64, learnable bool) *Module {
	dims := []int64{1, ch, 1, 1}
	if learnable {
		return &Module{
			Ws: p.NewVar("weight", dims, nn.NewConstInit(w)),
			Bs: p.NewVar("bias", dims, nn.NewConstInit(b)),
		}
	}

	return &Module{
		Ws: constant(p, dims, w),
		Bs: constant(p, dims, b),
	}
}

func constant(p *nn.Path, dims []int64, v float64) *ts.Tensor {
	vals := make([]float32, dims[1])
	for i := range vals {
		vals[i] = float32(v)
	}
	return ts.MustOfSlice(vals).MustView(dims, true).MustTo(p.Device(), true)
}

// Factory creates the (input, output) scale module pair for a network with
// chIn input and chOut output channels.
type Factory func(p *nn.Path, chIn, chOut int64, cfg *Config) (in, out *Module, err error)

// Modules is the default Factory. The input module normalizes
// (x - mean_in) / std_in; the output module maps back with
// x*std_out + mean_out. Variables live under `scale_in` and `scale_out`.
func Modules(p *nn.Path, chIn, chOut int64, cfg *Config) (*Module, *Module, error) {
	if cfg == nil {
		return nil, nil, ErrMissingConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	in := NewModule(p.Sub("scale_in"), chIn, 1/cfg.StdIn, -cfg.MeanIn/cfg.StdIn, cfg.LearnableIn)
	out := NewModule(p.Sub("scale_out"), chOut, cfg.StdOut, cfg.MeanOut, cfg.LearnableOut)

	return in, out, nil
}
