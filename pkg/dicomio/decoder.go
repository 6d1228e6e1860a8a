// Package dicomio decodes single-frame DICOM files into slices.
package dicomio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"

	"dicom2vti/internal/models"
	"dicom2vti/pkg/errdefs"
)

// Decoder turns one slice file into a Slice
type Decoder interface {
	Decode(path string, index int) (*models.Slice, error)
}

// Options controls how pixel data is laid out in the decoded slice
type Options struct {
	// FlipRows stores rows bottom-to-top so that row 0 is the lower-left
	// corner of the image, which is the VTK convention.
	FlipRows bool
}

// DefaultOptions returns the options matching VTK's own DICOM reader
func DefaultOptions() Options {
	return Options{FlipRows: true}
}

// DICOMDecoder reads DICOM Part 10 files
type DICOMDecoder struct {
	opts   Options
	logger *zap.Logger
}

// NewDICOMDecoder creates a decoder. A nil logger disables logging.
func NewDICOMDecoder(opts Options, logger *zap.Logger) *DICOMDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DICOMDecoder{opts: opts, logger: logger}
}

// Decode parses path and returns the first frame as a slice.
//
// A dataset without pixel data produces an empty slice rather than an error, so
// the stacking stage can skip it. Files that cannot be parsed, compressed pixel
// data, and unsupported sample layouts return a DecodeError.
func (d *DICOMDecoder) Decode(path string, index int) (*models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, &errdefs.DecodeError{Path: path, Err: err}
	}

	slice := &models.Slice{
		Path:    path,
		Index:   index,
		Spacing: [3]float64{1, 1, 1},
	}
	readGeometry(&ds, slice)

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		d.logger.Warn("Slice has no pixel data", zap.String("file", path))
		return slice, nil
	}

	bitsAllocated, err := intValue(&ds, tag.BitsAllocated)
	if err != nil {
		return nil, &errdefs.DecodeError{Path: path, Err: err}
	}
	pixelRepresentation, err := intValue(&ds, tag.PixelRepresentation)
	if err != nil {
		pixelRepresentation = 0
	}
	scalar, err := models.ScalarTypeFor(bitsAllocated, pixelRepresentation)
	if err != nil {
		return nil, &errdefs.DecodeError{Path: path, Err: err}
	}
	components, err := intValue(&ds, tag.SamplesPerPixel)
	if err != nil {
		components = 1
	}

	info, ok := pixelElem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, &errdefs.DecodeError{Path: path, Err: errors.New("unexpected pixel data value")}
	}
	if len(info.Frames) == 0 {
		d.logger.Warn("Slice has no frames", zap.String("file", path))
		return slice, nil
	}
	if len(info.Frames) > 1 {
		d.logger.Warn("Multi-frame file, using the first frame only",
			zap.String("file", path), zap.Int("frames", len(info.Frames)))
	}

	if info.Frames[0].IsEncapsulated() {
		return nil, &errdefs.DecodeError{Path: path, Err: errors.New("compressed pixel data is not supported")}
	}
	native, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return nil, &errdefs.DecodeError{Path: path, Err: err}
	}

	slice.Width = native.Cols
	slice.Height = native.Rows
	slice.Components = components
	slice.Scalar = scalar

	data, err := pack(native.Data, slice, d.opts.FlipRows)
	if err != nil {
		return nil, &errdefs.DecodeError{Path: path, Err: err}
	}
	slice.Data = data

	return slice, nil
}

// pack converts per-pixel samples into little-endian bytes
func pack(pixels [][]int, s *models.Slice, flip bool) ([]byte, error) {
	if len(pixels) != s.Width*s.Height {
		return nil, fmt.Errorf("frame has %d pixels, want %d", len(pixels), s.Width*s.Height)
	}

	size := s.Scalar.Size()
	rowBytes := s.Width * s.Components * size
	out := make([]byte, rowBytes*s.Height)

	for y := 0; y < s.Height; y++ {
		dstRow := y
		if flip {
			dstRow = s.Height - 1 - y
		}
		row := out[dstRow*rowBytes : (dstRow+1)*rowBytes]
		for x := 0; x < s.Width; x++ {
			px := pixels[y*s.Width+x]
			if len(px) < s.Components {
				return nil, fmt.Errorf("pixel (%d,%d) has %d samples, want %d", x, y, len(px), s.Components)
			}
			for c := 0; c < s.Components; c++ {
				off := (x*s.Components + c) * size
				s.Scalar.Put(row[off:off+size], px[c])
			}
		}
	}
	return out, nil
}

// readGeometry fills spacing and origin from the dataset, keeping defaults for missing elements
func readGeometry(ds *dicom.Dataset, s *models.Slice) {
	if ps, err := floatValues(ds, tag.PixelSpacing); err == nil && len(ps) >= 2 {
		// PixelSpacing is row spacing (y) then column spacing (x)
		s.Spacing[0] = ps[1]
		s.Spacing[1] = ps[0]
	}
	if st, err := floatValues(ds, tag.SliceThickness); err == nil && len(st) > 0 && st[0] > 0 {
		s.Spacing[2] = st[0]
	} else if sb, err := floatValues(ds, tag.SpacingBetweenSlices); err == nil && len(sb) > 0 && sb[0] > 0 {
		s.Spacing[2] = sb[0]
	}
	if ipp, err := floatValues(ds, tag.ImagePositionPatient); err == nil && len(ipp) >= 3 {
		copy(s.Origin[:], ipp[:3])
	}
}

func intValue(ds *dicom.Dataset, t tag.Tag) (int, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, errors.Wrapf(err, "element %s", t)
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], nil
		}
	case []string:
		if len(v) > 0 {
			return strconv.Atoi(strings.TrimSpace(v[0]))
		}
	}
	return 0, errors.Errorf("element %s has no integer value", t)
}

func floatValues(ds *dicom.Dataset, t tag.Tag) ([]float64, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, err
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "element %s", t)
			}
			out = append(out, f)
		}
		return out, nil
	case []float64:
		return v, nil
	}
	return nil, errors.Errorf("element %s has no decimal value", t)
}
