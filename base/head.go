package base

import "github.com/sugarme/gotch/nn"

// NewProjectionHead creates the output head: a 1x1 conv with bias mapping
// cIn to cOut channels, no norm, no activation.
func NewProjectionHead(p *nn.Path, cIn, cOut int64) *nn.Conv2D {
	return Conv2d(p, cIn, cOut, 1, 0, 1)
}
