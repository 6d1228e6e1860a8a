// Package errdefs defines the terminal failures of a conversion run.
//
// Each failure is detected at exactly one point of the pipeline and aborts the run.
// Use the Is* helpers to classify an error returned by the conversion package.
package errdefs

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when the input directory does not exist.
type NotFoundError struct {
	Dir string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input directory %s does not exist: %v", e.Dir, e.Err)
	}
	return fmt.Sprintf("input directory %s does not exist", e.Dir)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// EmptyInputError is returned when no file in the input directory matches the slice pattern.
type EmptyInputError struct {
	Dir     string
	Pattern string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("no files matching %s found in %s", e.Pattern, e.Dir)
}

// EmptyVolumeError is returned when stacking produced a volume with a zero dimension.
type EmptyVolumeError struct {
	Dims [3]int
}

func (e *EmptyVolumeError) Error() string {
	return fmt.Sprintf("resulting volume is empty (dimensions %d x %d x %d)", e.Dims[0], e.Dims[1], e.Dims[2])
}

// WriteError is returned when the volume could not be serialized.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DecodeError is returned when a slice file cannot be parsed.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DimensionMismatchError is returned when a slice does not share the geometry of the first slice.
type DimensionMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("slice %s does not match the first slice: want %s, got %s", e.Path, e.Want, e.Got)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsEmptyInput reports whether err is, or wraps, an EmptyInputError.
func IsEmptyInput(err error) bool {
	var target *EmptyInputError
	return errors.As(err, &target)
}

// IsEmptyVolume reports whether err is, or wraps, an EmptyVolumeError.
func IsEmptyVolume(err error) bool {
	var target *EmptyVolumeError
	return errors.As(err, &target)
}

// IsWrite reports whether err is, or wraps, a WriteError.
func IsWrite(err error) bool {
	var target *WriteError
	return errors.As(err, &target)
}

// IsDecode reports whether err is, or wraps, a DecodeError.
func IsDecode(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// IsDimensionMismatch reports whether err is, or wraps, a DimensionMismatchError.
func IsDimensionMismatch(err error) bool {
	var target *DimensionMismatchError
	return errors.As(err, &target)
}
