package unet_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/dip/scale"
	"github.com/sugarme/dip/unet"
)

func paramShapes(vs *nn.VarStore) map[string][]int64 {
	shapes := make(map[string][]int64)
	for name, v := range vs.Variables() {
		shapes[name] = v.MustSize()
	}
	return shapes
}

func sortedKeys(m map[string][]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func smallConfig(useNorm bool) unet.Config {
	// up.0 has a 2-channel skip, up.1 a zero skip (1-channel placeholder)
	return unet.Config{
		InChannels:   1,
		OutChannels:  1,
		Scales:       3,
		Channels:     []int64{4, 4, 8},
		SkipChannels: []int64{0, 0, 2},
		UseNorm:      useNorm,
		NormType:     "group",
	}
}

func TestParameterNamesGroupNorm(t *testing.T) {
	cfg := smallConfig(true)
	cfg.UseScaleInLayer = true
	cfg.UseScaleOutLayer = true
	cfg.Scaling = &scale.Config{StdIn: 1, StdOut: 1, LearnableIn: true, LearnableOut: true}

	vs := nn.NewVarStore(gotch.CPU)
	_, err := unet.New(vs.Root(), cfg)
	require.NoError(t, err)

	want := map[string][]int64{
		"scale_in.weight":  {1, 1, 1, 1},
		"scale_in.bias":    {1, 1, 1, 1},
		"scale_out.weight": {1, 1, 1, 1},
		"scale_out.bias":   {1, 1, 1, 1},

		"inc.conv.0.weight": {4, 1, 3, 3},
		"inc.conv.0.bias":   {4},
		"inc.conv.1.weight": {4},
		"inc.conv.1.bias":   {4},

		"down.0.conv.0.weight": {4, 4, 3, 3},
		"down.0.conv.0.bias":   {4},
		"down.0.conv.1.weight": {4},
		"down.0.conv.1.bias":   {4},
		"down.0.conv.3.weight": {4, 4, 3, 3},
		"down.0.conv.3.bias":   {4},
		"down.0.conv.4.weight": {4},
		"down.0.conv.4.bias":   {4},

		"down.1.conv.0.weight": {8, 4, 3, 3},
		"down.1.conv.0.bias":   {8},
		"down.1.conv.1.weight": {8},
		"down.1.conv.1.bias":   {8},
		"down.1.conv.3.weight": {8, 8, 3, 3},
		"down.1.conv.3.bias":   {8},
		"down.1.conv.4.weight": {8},
		"down.1.conv.4.bias":   {8},

		"up.0.conv.0.weight":      {10},
		"up.0.conv.0.bias":        {10},
		"up.0.conv.1.weight":      {4, 10, 3, 3},
		"up.0.conv.1.bias":        {4},
		"up.0.conv.2.weight":      {4},
		"up.0.conv.2.bias":        {4},
		"up.0.conv.4.weight":      {4, 4, 3, 3},
		"up.0.conv.4.bias":        {4},
		"up.0.conv.5.weight":      {4},
		"up.0.conv.5.bias":        {4},
		"up.0.skip_conv.0.weight": {2, 4, 1, 1},
		"up.0.skip_conv.0.bias":   {2},
		"up.0.skip_conv.1.weight": {2},
		"up.0.skip_conv.1.bias":   {2},

		"up.1.conv.0.weight":      {5},
		"up.1.conv.0.bias":        {5},
		"up.1.conv.1.weight":      {4, 5, 3, 3},
		"up.1.conv.1.bias":        {4},
		"up.1.conv.2.weight":      {4},
		"up.1.conv.2.bias":        {4},
		"up.1.conv.4.weight":      {4, 4, 3, 3},
		"up.1.conv.4.bias":        {4},
		"up.1.conv.5.weight":      {4},
		"up.1.conv.5.bias":        {4},
		"up.1.skip_conv.0.weight": {1, 4, 1, 1},
		"up.1.skip_conv.0.bias":   {1},
		"up.1.skip_conv.1.weight": {1},
		"up.1.skip_conv.1.bias":   {1},

		"outc.conv.weight": {1, 4, 1, 1},
		"outc.conv.bias":   {1},
	}

	got := paramShapes(vs)
	assert.Equal(t, sortedKeys(want), sortedKeys(got))
	assert.Equal(t, want, got)
}

func TestParameterNamesNoNorm(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	_, err := unet.New(vs.Root(), smallConfig(false))
	require.NoError(t, err)

	want := map[string][]int64{
		"inc.conv.0.weight": {4, 1, 3, 3},
		"inc.conv.0.bias":   {4},

		"down.0.conv.0.weight": {4, 4, 3, 3},
		"down.0.conv.0.bias":   {4},
		"down.0.conv.2.weight": {4, 4, 3, 3},
		"down.0.conv.2.bias":   {4},

		"down.1.conv.0.weight": {8, 4, 3, 3},
		"down.1.conv.0.bias":   {8},
		"down.1.conv.2.weight": {8, 8, 3, 3},
		"down.1.conv.2.bias":   {8},

		"up.0.conv.0.weight":      {4, 10, 3, 3},
		"up.0.conv.0.bias":        {4},
		"up.0.conv.2.weight":      {4, 4, 3, 3},
		"up.0.conv.2.bias":        {4},
		"up.0.skip_conv.0.weight": {2, 4, 1, 1},
		"up.0.skip_conv.0.bias":   {2},

		"up.1.conv.0.weight":      {4, 5, 3, 3},
		"up.1.conv.0.bias":        {4},
		"up.1.conv.2.weight":      {4, 4, 3, 3},
		"up.1.conv.2.bias":        {4},
		"up.1.skip_conv.0.weight": {1, 4, 1, 1},
		"up.1.skip_conv.0.bias":   {1},

		"outc.conv.weight": {1, 4, 1, 1},
		"outc.conv.bias":   {1},
	}

	got := paramShapes(vs)
	assert.Equal(t, sortedKeys(want), sortedKeys(got))
	assert.Equal(t, want, got)
}
