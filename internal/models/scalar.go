package models

import (
	"encoding/binary"
	"fmt"
)

// ScalarType identifies a VTK sample type
type ScalarType int

const (
	UInt8 ScalarType = iota
	Int8
	UInt16
	Int16
	UInt32
	Int32
)

var scalarNames = map[ScalarType]string{
	UInt8:  "UInt8",
	Int8:   "Int8",
	UInt16: "UInt16",
	Int16:  "Int16",
	UInt32: "UInt32",
	Int32:  "Int32",
}

// String returns the VTK XML type name
func (t ScalarType) String() string {
	if name, ok := scalarNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ScalarType(%d)", int(t))
}

// Size is the number of bytes per sample
func (t ScalarType) Size() int {
	switch t {
	case UInt8, Int8:
		return 1
	case UInt16, Int16:
		return 2
	case UInt32, Int32:
		return 4
	}
	return 0
}

// ScalarTypeFor maps DICOM BitsAllocated and PixelRepresentation to a scalar type
func ScalarTypeFor(bitsAllocated, pixelRepresentation int) (ScalarType, error) {
	signed := pixelRepresentation == 1
	switch bitsAllocated {
	case 8:
		if signed {
			return Int8, nil
		}
		return UInt8, nil
	case 16:
		if signed {
			return Int16, nil
		}
		return UInt16, nil
	case 32:
		if signed {
			return Int32, nil
		}
		return UInt32, nil
	}
	return 0, fmt.Errorf("unsupported bits allocated: %d", bitsAllocated)
}

// Put stores v in buf using the little-endian layout of t
func (t ScalarType) Put(buf []byte, v int) {
	switch t.Size() {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	}
}

// Decode reads one little-endian sample of type t
func (t ScalarType) Decode(buf []byte) float64 {
	switch t {
	case UInt8:
		return float64(buf[0])
	case Int8:
		return float64(int8(buf[0]))
	case UInt16:
		return float64(binary.LittleEndian.Uint16(buf))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(buf)))
	case UInt32:
		return float64(binary.LittleEndian.Uint32(buf))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(buf)))
	}
	return 0
}
