// Command dicom2vti stacks a directory of single-slice DICOM files into one VTI volume.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"dicom2vti/pkg/config"
	"dicom2vti/pkg/conversion"
	"dicom2vti/pkg/dicomio"
	"dicom2vti/pkg/logging"
	"dicom2vti/pkg/stacking"
	"dicom2vti/pkg/vti"
)

// errReported marks failures that the conversion already logged
var errReported = errors.New("conversion failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %s\n", err)
		}
		return 1
	}
	return 0
}

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "dicom2vti",
		Short:         "Convert a directory of DICOM slices into a VTK ImageData volume",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, or error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	cmd.AddCommand(newConvertCommand(opts, stderr))
	cmd.AddCommand(newInitConfigCommand(stdout))
	cmd.AddCommand(newInfoCommand(stdout))
	return cmd
}

// loadConfig reads the configuration file, if any, and applies the global flags
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
	return cfg, nil
}

type convertOptions struct {
	pattern       string
	headerType    string
	previewDir    string
	slicesDir     string
	noFlip        bool
	allowMismatch bool
}

// apply copies the flags the user set explicitly over the loaded configuration
func (o *convertOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("pattern") {
		cfg.Input.Pattern = o.pattern
	}
	if flags.Changed("header-type") {
		cfg.Output.HeaderType = o.headerType
	}
	if flags.Changed("preview-dir") {
		cfg.Output.PreviewDir = o.previewDir
	}
	if flags.Changed("slices-dir") {
		cfg.Output.SlicesDir = o.slicesDir
	}
	if flags.Changed("no-flip") {
		cfg.Decode.FlipRows = !o.noFlip
	}
	if flags.Changed("allow-mismatch") {
		cfg.Stack.AllowMismatch = o.allowMismatch
	}
}

func newConvertCommand(global *globalOptions, stderr io.Writer) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert <input_dir> <output_file>",
		Short: "Stack the slices of input_dir along z and write output_file",
		Long: "convert reads every file of input_dir matching the slice pattern in lexicographic " +
			"filename order, stacks the slices along the z axis and writes an uncompressed VTI " +
			"file with raw appended data.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			opts.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, stderr)
			if err != nil {
				return err
			}
			defer logger.Sync()

			params := paramsFromConfig(cfg, args[0], args[1])
			report, err := conversion.NewConverter(params, conversion.WithLogger(logger)).Process()
			if err != nil {
				return errReported
			}
			logger.Debug("Conversion finished",
				zap.Duration("duration", report.Duration),
				zap.Float64("min", report.Stats.Min),
				zap.Float64("max", report.Stats.Max),
				zap.Float64("mean", report.Stats.Mean),
				zap.Strings("skipped", report.SkippedSlices),
				zap.Int("slice_images", report.SliceImages))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.pattern, "pattern", "", "Case-sensitive glob selecting slice files (default *.dcm)")
	flags.StringVar(&opts.headerType, "header-type", "", "Byte-count header type: UInt32 or UInt64 (default UInt64)")
	flags.StringVar(&opts.previewDir, "preview-dir", "", "Write PNG previews of the central slices to this directory")
	flags.StringVar(&opts.slicesDir, "slices-dir", "", "Write every slice along x, y and z as PNG images under this directory")
	flags.BoolVar(&opts.noFlip, "no-flip", false, "Keep DICOM row order instead of VTK bottom-to-top order")
	flags.BoolVar(&opts.allowMismatch, "allow-mismatch", false, "Zero-pad slices smaller than the largest slice instead of failing")
	return cmd
}

func paramsFromConfig(cfg *config.Config, inputDir, outputFile string) *conversion.Params {
	params := conversion.DefaultParams(inputDir, outputFile)
	params.Pattern = cfg.Input.Pattern
	params.Decode = dicomio.Options{FlipRows: cfg.Decode.FlipRows}
	params.Stack = stacking.Options{AllowMismatch: cfg.Stack.AllowMismatch}
	params.Output.HeaderType = vti.HeaderType(cfg.Output.HeaderType)
	params.Output.ScalarName = cfg.Output.ScalarName
	params.PreviewDir = cfg.Output.PreviewDir
	params.SlicesDir = cfg.Output.SlicesDir
	return params
}

func newInitConfigCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "dicom2vti.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote default configuration to %s\n", path)
			return nil
		},
	}
}

func newInfoCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.vti>",
		Short: "Print the geometry and encoding of a VTI file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := vti.Read(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Dimensions: %d x %d x %d\n", doc.Dims[0], doc.Dims[1], doc.Dims[2])
			fmt.Fprintf(stdout, "Spacing:    %g %g %g\n", doc.Spacing[0], doc.Spacing[1], doc.Spacing[2])
			fmt.Fprintf(stdout, "Origin:     %g %g %g\n", doc.Origin[0], doc.Origin[1], doc.Origin[2])
			fmt.Fprintf(stdout, "Scalars:    %s %s x%d\n", doc.ScalarName, doc.ScalarType, doc.Components)
			fmt.Fprintf(stdout, "Format:     %s", doc.DataMode)
			if doc.Encoding != "" {
				fmt.Fprintf(stdout, " (%s)", doc.Encoding)
			}
			fmt.Fprintf(stdout, ", header %s, %d payload bytes\n", doc.HeaderType, len(doc.Payload))
			return nil
		},
	}
}
