package unet

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sugarme/dip/base"
	"github.com/sugarme/dip/scale"
)

// MaxScales is the deepest supported encoder-decoder hierarchy.
const MaxScales = 6

var (
	// ErrInvalidConfig is wrapped by every construction-time validation error.
	ErrInvalidConfig = errors.New("unet: invalid config")
	// ErrUnsupportedShape is returned when the input rescale layer receives
	// an input with other than 1 or 2 channels.
	ErrUnsupportedShape = errors.New("unet: unsupported input shape")
)

var (
	defaultChannels     = []int64{32, 32, 64, 64, 128, 128}
	defaultSkipChannels = []int64{0, 0, 0, 0, 4, 4}
)

// Config describes an image-prior UNet.
type Config struct {
	InChannels   int64   `yaml:"in_ch"`
	OutChannels  int64   `yaml:"out_ch"`
	Scales       int     `yaml:"scales"`
	Channels     []int64 `yaml:"channels"`
	SkipChannels []int64 `yaml:"skip_channels"`

	UseSigmoid bool   `yaml:"use_sigmoid"`
	UseNorm    bool   `yaml:"use_norm"`
	NormType   string `yaml:"norm_type"`

	UseScaleInLayer  bool          `yaml:"use_scale_in_layer"`
	UseScaleOutLayer bool          `yaml:"use_scale_out_layer"`
	Scaling          *scale.Config `yaml:"scaling"`
}

// DefaultConfig returns the standard image-prior configuration for the given
// number of scales: channels (32, 32, 64, 64, 128, 128) and skip channels
// (0, 0, 0, 0, 4, 4), both cut to scales entries, group norm and sigmoid
// output.
func DefaultConfig(inCh, outCh int64, scales int) Config {
	cfg := Config{
		InChannels:  inCh,
		OutChannels: outCh,
		Scales:      scales,
		UseSigmoid:  true,
		UseNorm:     true,
		NormType:    "group",
	}
	if scales >= 1 && scales <= MaxScales {
		cfg.Channels = append([]int64(nil), defaultChannels[:scales]...)
		cfg.SkipChannels = append([]int64(nil), defaultSkipChannels[:scales]...)
	}

	return cfg
}

// Validate checks the config invariants. All errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Scales < 1 || c.Scales > MaxScales {
		return fmt.Errorf("%w: scales=%d out of range [1, %d]", ErrInvalidConfig, c.Scales, MaxScales)
	}
	if len(c.Channels) != len(c.SkipChannels) {
		return fmt.Errorf("%w: len(channels)=%d != len(skip_channels)=%d", ErrInvalidConfig, len(c.Channels), len(c.SkipChannels))
	}
	if len(c.Channels) != c.Scales {
		return fmt.Errorf("%w: len(channels)=%d != scales=%d", ErrInvalidConfig, len(c.Channels), c.Scales)
	}
	if c.InChannels < 1 || c.OutChannels < 1 {
		return fmt.Errorf("%w: in_ch=%d out_ch=%d must be positive", ErrInvalidConfig, c.InChannels, c.OutChannels)
	}
	for i, ch := range c.Channels {
		if ch < 1 {
			return fmt.Errorf("%w: channels[%d]=%d must be positive", ErrInvalidConfig, i, ch)
		}
		if c.SkipChannels[i] < 0 {
			return fmt.Errorf("%w: skip_channels[%d]=%d must not be negative", ErrInvalidConfig, i, c.SkipChannels[i])
		}
	}
	if _, err := base.ParseNormType(c.UseNorm, c.NormType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.UseSigmoid && c.UseScaleOutLayer {
		return fmt.Errorf("%w: cannot use both output scaling layer and sigmoid output activation; "+
			"set either use_scale_out_layer or use_sigmoid to false", ErrInvalidConfig)
	}
	if (c.UseScaleInLayer || c.UseScaleOutLayer) && c.Scaling == nil {
		return fmt.Errorf("%w: scale layers requested without scaling config", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig reads a YAML network config. Missing channel lists are taken
// from DefaultConfig for the configured number of scales.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig decodes a YAML network config and validates it.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig(1, 1, 5)
	cfg.Channels = nil
	cfg.SkipChannels = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unet: parse config: %w", err)
	}

	def := DefaultConfig(cfg.InChannels, cfg.OutChannels, cfg.Scales)
	if cfg.Channels == nil {
		cfg.Channels = def.Channels
	}
	if cfg.SkipChannels == nil {
		cfg.SkipChannels = def.SkipChannels
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
