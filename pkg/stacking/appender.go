// Package stacking combines decoded slices into a volume along the depth axis.
//
// Slices are owned by an Arena for the whole run. The Appender and the Volume it
// builds only borrow the slices' pixel buffers, so the Arena must not be released
// until the volume has been written.
package stacking

import (
	"fmt"

	"go.uber.org/zap"

	"dicom2vti/internal/models"
	"dicom2vti/pkg/errdefs"
)

// Axis is the index of the stacking axis (z, depth).
const Axis = 2

// Arena keeps every decoded slice alive until Release is called
type Arena struct {
	slices []*models.Slice
}

// NewArena creates an arena sized for n slices
func NewArena(n int) *Arena {
	return &Arena{slices: make([]*models.Slice, 0, n)}
}

// Add pins s in the arena
func (a *Arena) Add(s *models.Slice) {
	a.slices = append(a.slices, s)
}

// Len is the number of pinned slices
func (a *Arena) Len() int {
	return len(a.slices)
}

// Slices returns the pinned slices in insertion order
func (a *Arena) Slices() []*models.Slice {
	return a.slices
}

// Release drops every pinned slice. Volumes built from the arena must not be used afterwards.
func (a *Arena) Release() {
	for i := range a.slices {
		a.slices[i] = nil
	}
	a.slices = nil
}

// Options controls how the appender treats slices with differing geometry
type Options struct {
	// AllowMismatch zero-pads slices smaller than the largest slice instead of
	// rejecting them. Scalar type and component count must still match.
	AllowMismatch bool
}

// Appender stacks slices along Axis in the order they are added
type Appender struct {
	arena  *Arena
	opts   Options
	logger *zap.Logger

	inputs  []*models.Slice
	skipped []string
}

// NewAppender creates an appender whose inputs are pinned in arena
func NewAppender(arena *Arena, opts Options, logger *zap.Logger) *Appender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Appender{arena: arena, opts: opts, logger: logger}
}

// AddInput pins s in the arena and registers it as the next depth plane.
// Empty slices are pinned but not stacked.
func (a *Appender) AddInput(s *models.Slice) error {
	a.arena.Add(s)

	if s.Empty() {
		a.logger.Warn("Skipping slice without pixel data", zap.String("file", s.Path))
		a.skipped = append(a.skipped, s.Path)
		return nil
	}
	if err := s.Validate(); err != nil {
		return &errdefs.DecodeError{Path: s.Path, Err: err}
	}

	if len(a.inputs) > 0 {
		first := a.inputs[0]
		if s.Scalar != first.Scalar || s.Components != first.Components {
			return &errdefs.DimensionMismatchError{
				Path: s.Path,
				Want: fmt.Sprintf("%s x%d", first.Scalar, first.Components),
				Got:  fmt.Sprintf("%s x%d", s.Scalar, s.Components),
			}
		}
		if (s.Width != first.Width || s.Height != first.Height) && !a.opts.AllowMismatch {
			return &errdefs.DimensionMismatchError{
				Path: s.Path,
				Want: fmt.Sprintf("%dx%d", first.Width, first.Height),
				Got:  fmt.Sprintf("%dx%d", s.Width, s.Height),
			}
		}
	}

	a.inputs = append(a.inputs, s)
	return nil
}

// Skipped lists the files that contributed no plane
func (a *Appender) Skipped() []string {
	return a.skipped
}

// Build produces the stacked volume. Geometry comes from the first stacked slice.
func (a *Appender) Build() (*models.Volume, error) {
	if len(a.inputs) == 0 {
		return nil, &errdefs.EmptyVolumeError{}
	}

	first := a.inputs[0]
	width, height := first.Width, first.Height
	for _, s := range a.inputs[1:] {
		width = max(width, s.Width)
		height = max(height, s.Height)
	}

	vol := &models.Volume{
		Dims:       [3]int{width, height, len(a.inputs)},
		Spacing:    first.Spacing,
		Origin:     first.Origin,
		Scalar:     first.Scalar,
		Components: first.Components,
		Planes:     make([][]byte, 0, len(a.inputs)),
	}
	if vol.Empty() {
		return nil, &errdefs.EmptyVolumeError{Dims: vol.Dims}
	}

	for _, s := range a.inputs {
		if s.Width == width && s.Height == height {
			vol.Planes = append(vol.Planes, s.Data)
			continue
		}
		vol.Planes = append(vol.Planes, pad(s, width, height))
	}

	return vol, nil
}

// pad copies s into a zero-filled plane of width x height
func pad(s *models.Slice, width, height int) []byte {
	pixelBytes := s.Components * s.Scalar.Size()
	srcRow := s.Width * pixelBytes
	dstRow := width * pixelBytes

	out := make([]byte, dstRow*height)
	for y := 0; y < s.Height; y++ {
		copy(out[y*dstRow:], s.Data[y*srcRow:(y+1)*srcRow])
	}
	return out
}
