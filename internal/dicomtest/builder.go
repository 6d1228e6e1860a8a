// Package dicomtest writes small DICOM files for tests.
package dicomtest

import (
	"os"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
)

const (
	mrImageStorage = "1.2.840.10008.5.1.4.1.1.4"
	jpegBaseline   = "1.2.840.10008.1.2.4.50"
	instanceUID    = "1.2.826.0.1.3680043.2.1125.1"
)

// Image describes one slice
type Image struct {
	Rows    int
	Columns int

	// BitsAllocated defaults to 16
	BitsAllocated       int
	PixelRepresentation int

	// SamplesPerPixel defaults to 1
	SamplesPerPixel int

	// PixelSpacing is row spacing then column spacing; zero omits the element
	PixelSpacing   [2]float64
	SliceThickness float64
	Position       *[3]float64

	// Pixels holds Rows*Columns*SamplesPerPixel samples in row-major order
	Pixels []int

	// ExtraFrames are written after Pixels as further frames of a multi-frame image
	ExtraFrames [][]int

	// Compressed stores Pixels as an encapsulated frame under a JPEG transfer syntax
	Compressed bool

	// OmitPixelData leaves out the PixelData element entirely
	OmitPixelData bool
}

// Fill returns rows*cols samples all set to v
func Fill(rows, cols, v int) []int {
	px := make([]int, rows*cols)
	for i := range px {
		px[i] = v
	}
	return px
}

// Ramp returns rows*cols samples where each pixel is base + y*cols + x
func Ramp(rows, cols, base int) []int {
	px := make([]int, rows*cols)
	for i := range px {
		px[i] = base + i
	}
	return px
}

// WriteFile encodes img and writes it to path
func WriteFile(path string, img Image) error {
	ds, err := Dataset(img)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dicom.Write(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Dataset builds the DICOM dataset describing img
func Dataset(img Image) (dicom.Dataset, error) {
	if img.BitsAllocated == 0 {
		img.BitsAllocated = 16
	}
	if img.SamplesPerPixel == 0 {
		img.SamplesPerPixel = 1
	}
	transferSyntax := uid.ExplicitVRLittleEndian
	if img.Compressed {
		transferSyntax = jpegBaseline
	}

	b := &builder{}
	b.add(tag.MediaStorageSOPClassUID, []string{mrImageStorage})
	b.add(tag.MediaStorageSOPInstanceUID, []string{instanceUID})
	b.add(tag.TransferSyntaxUID, []string{transferSyntax})

	b.add(tag.SOPClassUID, []string{mrImageStorage})
	b.add(tag.Modality, []string{"MR"})
	if img.SliceThickness != 0 {
		b.add(tag.SliceThickness, decimals(img.SliceThickness))
	}
	if img.Position != nil {
		b.add(tag.ImagePositionPatient, decimals(img.Position[:]...))
	}
	b.add(tag.SamplesPerPixel, []int{img.SamplesPerPixel})
	if img.SamplesPerPixel == 1 {
		b.add(tag.PhotometricInterpretation, []string{"MONOCHROME2"})
	} else {
		b.add(tag.PhotometricInterpretation, []string{"RGB"})
		b.add(tag.PlanarConfiguration, []int{0})
	}
	if len(img.ExtraFrames) > 0 {
		b.add(tag.NumberOfFrames, []string{strconv.Itoa(1 + len(img.ExtraFrames))})
	}
	b.add(tag.Rows, []int{img.Rows})
	b.add(tag.Columns, []int{img.Columns})
	if img.PixelSpacing != [2]float64{} {
		b.add(tag.PixelSpacing, decimals(img.PixelSpacing[:]...))
	}
	b.add(tag.BitsAllocated, []int{img.BitsAllocated})
	b.add(tag.BitsStored, []int{img.BitsAllocated})
	b.add(tag.HighBit, []int{img.BitsAllocated - 1})
	b.add(tag.PixelRepresentation, []int{img.PixelRepresentation})

	if !img.OmitPixelData {
		b.addPixelData(img)
	}
	if b.err != nil {
		return dicom.Dataset{}, b.err
	}
	return dicom.Dataset{Elements: b.elems}, nil
}

type builder struct {
	elems []*dicom.Element
	err   error
}

func (b *builder) add(t tag.Tag, data interface{}) *dicom.Element {
	if b.err != nil {
		return nil
	}
	elem, err := dicom.NewElement(t, data)
	if err != nil {
		b.err = err
		return nil
	}
	b.elems = append(b.elems, elem)
	return elem
}

func (b *builder) addPixelData(img Image) {
	if img.Compressed {
		elem := b.add(tag.PixelData, dicom.PixelDataInfo{
			IsEncapsulated: true,
			Frames: []*frame.Frame{{
				Encapsulated:     true,
				EncapsulatedData: frame.EncapsulatedFrame{Data: rawBytes(img.Pixels)},
			}},
		})
		if elem != nil {
			elem.ValueLength = tag.VLUndefinedLength
		}
		return
	}

	// The writer cannot pad native frames, so an odd 8-bit payload goes out pre-padded.
	if img.BitsAllocated == 8 && len(img.Pixels)%2 == 1 && len(img.ExtraFrames) == 0 {
		b.add(tag.PixelData, dicom.PixelDataInfo{
			IntentionallyUnprocessed: true,
			UnprocessedValueData:     rawBytes(img.Pixels),
		})
		return
	}

	frames := []*frame.Frame{nativeFrame(img, img.Pixels)}
	for _, px := range img.ExtraFrames {
		frames = append(frames, nativeFrame(img, px))
	}
	b.add(tag.PixelData, dicom.PixelDataInfo{Frames: frames})
}

func nativeFrame(img Image, pixels []int) *frame.Frame {
	data := make([][]int, 0, img.Rows*img.Columns)
	for i := 0; i+img.SamplesPerPixel <= len(pixels); i += img.SamplesPerPixel {
		data = append(data, pixels[i:i+img.SamplesPerPixel])
	}
	return &frame.Frame{
		NativeData: frame.NativeFrame{
			BitsPerSample: img.BitsAllocated,
			Rows:          img.Rows,
			Cols:          img.Columns,
			Data:          data,
		},
	}
}

// rawBytes keeps the low byte of each sample, padded to an even length
func rawBytes(pixels []int) []byte {
	out := make([]byte, len(pixels), len(pixels)+1)
	for i, v := range pixels {
		out[i] = byte(v)
	}
	if len(out)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func decimals(values ...float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}
