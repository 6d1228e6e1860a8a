// Package conversion runs the DICOM directory to VTI pipeline.
//
// A run moves linearly through Discovering, Loading and Serializing and ends in
// Done or Failed. Every failure is terminal: it is logged once where it is
// detected and returned to the caller.
package conversion

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"dicom2vti/internal/models"
	"dicom2vti/pkg/dicomio"
	"dicom2vti/pkg/discovery"
	"dicom2vti/pkg/errdefs"
	"dicom2vti/pkg/stacking"
	"dicom2vti/pkg/visualization"
	"dicom2vti/pkg/vti"
)

// State is a stage of a conversion run
type State string

const (
	StateInit        State = "init"
	StateDiscovering State = "discovering"
	StateLoading     State = "loading"
	StateSerializing State = "serializing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Params holds the conversion parameters
type Params struct {
	// InputDir is the directory containing the slice files
	InputDir string

	// OutputFile is where the VTI volume is written
	OutputFile string

	// Pattern selects slice files; empty means *.dcm
	Pattern string

	Decode dicomio.Options
	Stack  stacking.Options
	Output vti.Options

	// PreviewDir receives PNG previews of the central slices when set
	PreviewDir string

	// SlicesDir receives every slice along each axis, one subdirectory per axis
	SlicesDir string
}

// DefaultParams returns parameters producing uncompressed, appended, raw VTI output
func DefaultParams(inputDir, outputFile string) *Params {
	return &Params{
		InputDir:   inputDir,
		OutputFile: outputFile,
		Pattern:    discovery.DefaultPattern,
		Decode:     dicomio.DefaultOptions(),
		Output:     vti.DefaultOptions(),
	}
}

// Report describes a finished run
type Report struct {
	InputDir   string
	OutputFile string

	// FileCount is the number of files matching the pattern
	FileCount int

	// FirstSliceDims is the extent of the first decoded slice
	FirstSliceDims [3]int

	// SkippedSlices lists files without pixel data
	SkippedSlices []string

	Dims         [3]int
	Scalar       models.ScalarType
	Stats        stacking.Stats
	BytesWritten int64
	Previews     []string

	// SliceImages counts the images written to SlicesDir
	SliceImages int

	Duration     time.Duration
}

// Option configures a Converter
type Option func(*Converter)

// WithDecoder replaces the DICOM decoder
func WithDecoder(d dicomio.Decoder) Option {
	return func(c *Converter) { c.decoder = d }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// Converter runs one conversion
type Converter struct {
	params  *Params
	decoder dicomio.Decoder
	logger  *zap.Logger
	state   State
}

// NewConverter creates a converter for params
func NewConverter(params *Params, opts ...Option) *Converter {
	c := &Converter{
		params: params,
		logger: zap.NewNop(),
		state:  StateInit,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.decoder == nil {
		c.decoder = dicomio.NewDICOMDecoder(params.Decode, c.logger)
	}
	return c
}

// State returns the current stage of the run
func (c *Converter) State() State {
	return c.state
}

// Process runs discovery, decoding, stacking and serialization
func (c *Converter) Process() (*Report, error) {
	start := time.Now()
	p := c.params
	report := &Report{InputDir: p.InputDir, OutputFile: p.OutputFile}

	c.logger.Info("Starting conversion", zap.String("input", p.InputDir), zap.String("output", p.OutputFile))

	c.state = StateDiscovering
	files, err := discovery.List(p.InputDir, p.Pattern)
	if err != nil {
		return nil, c.fail(err)
	}
	report.FileCount = len(files)
	c.logger.Info(fmt.Sprintf("Found %d DICOM files", len(files)), zap.Int("count", len(files)))

	c.state = StateLoading
	arena := stacking.NewArena(len(files))
	// The volume borrows the slices' buffers until it has been written.
	defer arena.Release()

	appender := stacking.NewAppender(arena, p.Stack, c.logger)
	c.logger.Info("Reading files and appending")
	for i, path := range files {
		slice, err := c.decoder.Decode(path, i)
		if err != nil {
			return nil, c.fail(err)
		}
		if i == 0 {
			report.FirstSliceDims = slice.Dims()
			c.logger.Info("First slice dimensions", zap.Ints("dims", report.FirstSliceDims[:]))
		}
		c.logger.Debug("Decoded slice", zap.String("file", path), zap.Int("index", i),
			zap.Int("width", slice.Width), zap.Int("height", slice.Height))

		if err := appender.AddInput(slice); err != nil {
			return nil, c.fail(err)
		}
	}
	report.SkippedSlices = appender.Skipped()

	vol, err := appender.Build()
	if err != nil {
		return nil, c.fail(err)
	}
	report.Dims = vol.Dims
	report.Scalar = vol.Scalar
	c.logger.Info("Final volume dimensions", zap.Ints("dims", vol.Dims[:]), zap.Stringer("type", vol.Scalar))

	report.Stats = stacking.Summarize(vol)

	c.state = StateSerializing
	c.logger.Info("Writing VTI file")
	out := p.Output
	if vol.Components == 1 {
		out.Range = &[2]float64{report.Stats.Min, report.Stats.Max}
	}
	n, err := vti.NewWriter(out).WriteFile(p.OutputFile, vol)
	if err != nil {
		return nil, c.fail(err)
	}
	report.BytesWritten = n
	c.logger.Info(fmt.Sprintf("Successfully wrote %s", p.OutputFile), zap.String("size", humanize.Bytes(uint64(n))))

	if p.PreviewDir != "" {
		viewer := visualization.NewViewer(vol, report.Stats.Min, report.Stats.Max)
		previews, err := viewer.SavePreviews(p.PreviewDir)
		if err != nil {
			c.logger.Warn("Failed to save previews", zap.String("dir", p.PreviewDir), zap.Error(err))
		}
		report.Previews = previews
	}

	if p.SlicesDir != "" {
		report.SliceImages = c.saveSlices(vol, report.Stats)
	}

	c.state = StateDone
	report.Duration = time.Since(start)
	return report, nil
}

// saveSlices writes every slice along each axis. Failures are logged per axis
// and never fail the run.
func (c *Converter) saveSlices(vol *models.Volume, stats stacking.Stats) int {
	dir := c.params.SlicesDir
	viewer := visualization.NewViewer(vol, stats.Min, stats.Max)

	c.logger.Info("Extracting slices along all axes", zap.String("dir", dir))
	total := 0
	for _, axis := range []string{"x", "y", "z"} {
		n, err := viewer.SaveSliceSequence(axis, filepath.Join(dir, axis))
		total += n
		if err != nil {
			c.logger.Warn("Failed to save slices", zap.String("axis", axis), zap.Error(err))
		}
	}
	return total
}

// fail logs err once and moves the run to StateFailed
func (c *Converter) fail(err error) error {
	c.state = StateFailed
	p := c.params

	var (
		notFound   *errdefs.NotFoundError
		emptyInput *errdefs.EmptyInputError
		emptyVol   *errdefs.EmptyVolumeError
		writeErr   *errdefs.WriteError
		decodeErr  *errdefs.DecodeError
		mismatch   *errdefs.DimensionMismatchError
	)
	switch {
	case errors.As(err, &notFound):
		c.logger.Error(fmt.Sprintf("Input directory %s does not exist", notFound.Dir))
	case errors.As(err, &emptyInput):
		c.logger.Error(fmt.Sprintf("No %s files found in %s", strings.TrimPrefix(emptyInput.Pattern, "*"), emptyInput.Dir))
	case errors.As(err, &emptyVol):
		c.logger.Error("Resulting volume is empty", zap.Ints("dims", emptyVol.Dims[:]))
	case errors.As(err, &writeErr):
		c.logger.Error(fmt.Sprintf("Error writing %s", p.OutputFile), zap.Error(writeErr.Err))
	case errors.As(err, &decodeErr):
		c.logger.Error("Failed to decode slice", zap.String("file", decodeErr.Path), zap.Error(decodeErr.Err))
	case errors.As(err, &mismatch):
		c.logger.Error("Slice does not match the first slice",
			zap.String("file", mismatch.Path), zap.String("want", mismatch.Want), zap.String("got", mismatch.Got))
	default:
		c.logger.Error("Conversion failed", zap.Error(err))
	}
	return err
}
