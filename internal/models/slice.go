package models

import "fmt"

// Slice represents a single decoded DICOM slice with its geometry
type Slice struct {
	// Path is the file the slice was decoded from
	Path string

	// Index is the position of this slice in the sorted input sequence
	Index int

	// Width and Height are the in-plane dimensions in pixels
	Width  int
	Height int

	// Components is the number of samples per pixel (1 for grayscale)
	Components int

	// Scalar is the on-disk sample type
	Scalar ScalarType

	// Spacing is the physical voxel size in mm along x, y and z
	Spacing [3]float64

	// Origin is the position of the first voxel in patient coordinates
	Origin [3]float64

	// Data holds the little-endian samples in row-major order
	Data []byte
}

// Empty reports whether the slice carries no pixels
func (s *Slice) Empty() bool {
	return s == nil || s.Width == 0 || s.Height == 0
}

// Dims returns the slice extent as a one-voxel-thick 3D dimension triple
func (s *Slice) Dims() [3]int {
	if s.Empty() {
		return [3]int{0, 0, 0}
	}
	return [3]int{s.Width, s.Height, 1}
}

// PlaneSize is the number of bytes one slice plane occupies
func (s *Slice) PlaneSize() int {
	return s.Width * s.Height * s.Components * s.Scalar.Size()
}

// Validate checks that Data matches the declared geometry
func (s *Slice) Validate() error {
	if s.Empty() {
		return nil
	}
	if s.Components <= 0 {
		return fmt.Errorf("slice %s: invalid component count %d", s.Path, s.Components)
	}
	if len(s.Data) != s.PlaneSize() {
		return fmt.Errorf("slice %s: have %d bytes, want %d", s.Path, len(s.Data), s.PlaneSize())
	}
	return nil
}

// Volume is a stack of slices along the depth axis.
// Planes borrow the Data buffers of the slices it was built from.
type Volume struct {
	// Dims is the extent in voxels along x, y and z
	Dims [3]int

	Spacing    [3]float64
	Origin     [3]float64
	Scalar     ScalarType
	Components int

	// Planes holds one row-major buffer per depth index
	Planes [][]byte
}

// Empty reports whether any dimension of the volume is zero
func (v *Volume) Empty() bool {
	return v == nil || v.Dims[0] == 0 || v.Dims[1] == 0 || v.Dims[2] == 0
}

// NumberOfTuples is the voxel count
func (v *Volume) NumberOfTuples() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// ByteLength is the size of the raw sample payload
func (v *Volume) ByteLength() int {
	return v.NumberOfTuples() * v.Components * v.Scalar.Size()
}

// At returns the first component of the voxel at (x, y, z) as a float
func (v *Volume) At(x, y, z int) float64 {
	size := v.Scalar.Size()
	off := (y*v.Dims[0] + x) * v.Components * size
	return v.Scalar.Decode(v.Planes[z][off : off+size])
}
