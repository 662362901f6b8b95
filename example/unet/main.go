package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sugarme/dip/scale"
	"github.com/sugarme/dip/unet"
)

// flag variables
var (
	ConfigPath string
	Cuda       bool
	Verbose    bool
)

func loadConfig() (*unet.Config, error) {
	if ConfigPath == "" {
		cfg := unet.DefaultConfig(1, 1, 5)
		return &cfg, nil
	}
	return unet.LoadConfig(ConfigPath)
}

func device() gotch.Device {
	if Cuda {
		return gotch.NewCuda().CudaIfAvailable()
	}
	return gotch.CPU
}

// printVars print variables sorted by name
func printVars(vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"VARIABLE", "SHAPE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, n := range names {
		table.Append([]string{n, fmt.Sprint(vars[n].MustSize())})
	}
	table.Render()
}

func printLayers(layers []unet.LayerInfo) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "KIND", "IN", "OUT", "SKIP", "STRIDE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, l := range layers {
		table.Append([]string{l.Name, l.Kind, fmt.Sprint(l.In), fmt.Sprint(l.Out), fmt.Sprint(l.Skip), fmt.Sprint(l.Stride)})
	}
	table.Render()
}

func writeLayersCSV(layers []unet.LayerInfo, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	df := dataframe.LoadStructs(layers)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(f)
}

// uniformNoise returns n float32 values drawn from U(0, 1) with the given seed.
func uniformNoise(n int64, seed int64) []float32 {
	dist := distuv.Uniform{Min: 0, Max: 1, Src: rand.NewSource(uint64(seed))}
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(dist.Rand())
	}

	return vals
}

func summaryHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), *cfg)
	if err != nil {
		return err
	}

	layers := net.Summary()
	printLayers(layers)
	printVars(vs)

	if csvPath, _ := cmd.Flags().GetString("csv"); csvPath != "" {
		if err := writeLayersCSV(layers, csvPath); err != nil {
			return err
		}
		slog.Info("layer summary written", "path", csvPath)
	}

	return nil
}

func runHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	imagePath, _ := cmd.Flags().GetString("image")
	size, _ := cmd.Flags().GetInt("size")
	seed, _ := cmd.Flags().GetInt64("seed")
	batch, _ := cmd.Flags().GetInt64("batch")
	outPath, _ := cmd.Flags().GetString("out")
	histPath, _ := cmd.Flags().GetString("hist")

	h, w := int64(size), int64(size)
	if imagePath != "" {
		img, err := readImage(imagePath)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("size") {
			size = 0
		}
		vals, ih, iw := grayPixels(resizeSquare(img, size))
		h, w = int64(ih), int64(iw)

		mean, std := stat.MeanStdDev(vals, nil)
		slog.Info("reference image", "path", imagePath, "height", h, "width", w, "mean", mean, "std", std)

		// data statistics initialize scale layers left unset in the config
		if (cfg.UseScaleInLayer || cfg.UseScaleOutLayer) && cfg.Scaling == nil {
			cfg.Scaling = scale.DefaultConfig()
		}
		if cfg.Scaling != nil && cfg.Scaling.StdOut == 0 && std > 0 {
			cfg.Scaling.MeanOut, cfg.Scaling.StdOut = mean, std
		}
	}
	if h <= 0 || w <= 0 {
		return fmt.Errorf("invalid input size %dx%d", h, w)
	}
	if batch <= 0 {
		return fmt.Errorf("invalid batch size %d", batch)
	}

	dev := device()
	vs := nn.NewVarStore(dev)
	net, err := unet.New(vs.Root(), *cfg)
	if err != nil {
		return err
	}

	shape := []int64{batch, cfg.InChannels, h, w}
	x := ts.MustOfSlice(uniformNoise(batch*cfg.InChannels*h*w, seed)).MustView(shape, true).MustTo(dev, true)
	defer x.MustDrop()

	var out *ts.Tensor
	ts.NoGrad(func() {
		out, err = net.Forward(x, false)
	})
	if err != nil {
		return err
	}
	defer out.MustDrop()

	// first sample, first channel
	first := out.MustNarrow(0, 0, 1, false).MustNarrow(1, 0, 1, true).MustContiguous(true).
		MustTo(gotch.CPU, true).MustTotype(gotch.Double, true)
	vals := first.Float64Values()
	first.MustDrop()

	mean, std := stat.MeanStdDev(vals, nil)
	slog.Info("forward done", "output", out.MustSize(), "mode", net.OutputMode(),
		"min", floats.Min(vals), "max", floats.Max(vals), "mean", mean, "std", std)

	if outPath != "" {
		if err := saveGray(vals, int(h), int(w), outPath); err != nil {
			return err
		}
		slog.Info("output image saved", "path", outPath)
	}
	if histPath != "" {
		if err := saveHistogram(vals, 50, "Output values", histPath); err != nil {
			return err
		}
		slog.Info("histogram saved", "path", histPath)
	}

	return nil
}

func newCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "unet",
		Short:         "Inspect and run deep-image-prior U-Nets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigPath, "config", "c", "", "network config YAML (default: 5-scale image-prior net)")
	rootCmd.PersistentFlags().BoolVar(&Cuda, "cuda", false, "run on CUDA if available")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "debug logging")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the network layers and variables",
		Args:  cobra.NoArgs,
		RunE:  summaryHandler,
	}
	summaryCmd.Flags().String("csv", "", "also write the layer summary to this CSV file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one forward pass on uniform noise",
		Args:  cobra.NoArgs,
		RunE:  runHandler,
	}
	runCmd.Flags().String("image", "", "reference image (png, jpeg, tiff) giving input size and data statistics")
	runCmd.Flags().Int("size", 64, "input height and width; resizes the reference image when set with --image")
	runCmd.Flags().Int64("seed", 42, "seed for the input noise (weights are initialized by libtorch)")
	runCmd.Flags().Int64("batch", 1, "batch size")
	runCmd.Flags().String("out", "", "save the first output channel as an image")
	runCmd.Flags().String("hist", "", "save a histogram of the output values")

	rootCmd.AddCommand(summaryCmd, runCmd)

	return rootCmd
}

func main() {
	if err := newCLI().Execute(); err != nil {
		slog.Error("unet", "error", err)
		os.Exit(1)
	}
}
