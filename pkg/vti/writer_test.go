package vti

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicom2vti/internal/models"
	"dicom2vti/pkg/errdefs"
)

// testVolume builds a 3x2xdepth UInt16 volume where every voxel of plane z holds 1000+z
func testVolume(depth int) *models.Volume {
	v := &models.Volume{
		Dims:       [3]int{3, 2, depth},
		Spacing:    [3]float64{0.5, 0.5, 2.5},
		Origin:     [3]float64{-10, 0, 4.25},
		Scalar:     models.UInt16,
		Components: 1,
	}
	for z := 0; z < depth; z++ {
		plane := make([]byte, 3*2*2)
		for i := 0; i < 6; i++ {
			v.Scalar.Put(plane[i*2:], 1000+z)
		}
		v.Planes = append(v.Planes, plane)
	}
	return v
}

func encode(t *testing.T, opts Options, v *models.Volume) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := NewWriter(opts).Encode(&buf, v)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	return buf.Bytes()
}

func TestEncodeAppendedRaw(t *testing.T) {
	vol := testVolume(4)
	out := encode(t, DefaultOptions(), vol)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, `<?xml version="1.0"?>`+"\n"))
	assert.Contains(t, text, `<VTKFile type="ImageData" version="1.0" byte_order="LittleEndian" header_type="UInt64">`)
	assert.Contains(t, text, `WholeExtent="0 2 0 1 0 3" Origin="-10 0 4.25" Spacing="0.5 0.5 2.5"`)
	assert.Contains(t, text, `<DataArray type="UInt16" Name="DICOMImage" format="appended" offset="0" />`)
	assert.Contains(t, text, `<AppendedData encoding="raw">`)
	assert.NotContains(t, text, "compressor")
	assert.True(t, strings.HasSuffix(text, "\n  </AppendedData>\n</VTKFile>\n"))

	marker := bytes.Index(out, []byte("   _")) + 4
	size := binary.LittleEndian.Uint64(out[marker:])
	assert.Equal(t, uint64(vol.ByteLength()), size)

	payload := out[marker+8 : marker+8+int(size)]
	for z := 0; z < 4; z++ {
		assert.Equal(t, vol.Planes[z], payload[z*12:(z+1)*12])
	}
}

func TestEncodeRange(t *testing.T) {
	opts := DefaultOptions()
	opts.Range = &[2]float64{-1024, 3071.5}
	text := string(encode(t, opts, testVolume(1)))

	assert.Contains(t, text, `format="appended" RangeMin="-1024" RangeMax="3071.5" offset="0" />`)
}

func TestEncodeComponents(t *testing.T) {
	vol := &models.Volume{
		Dims:       [3]int{1, 1, 1},
		Spacing:    [3]float64{1, 1, 1},
		Scalar:     models.UInt8,
		Components: 3,
		Planes:     [][]byte{{1, 2, 3}},
	}
	text := string(encode(t, DefaultOptions(), vol))
	assert.Contains(t, text, `type="UInt8" Name="DICOMImage" NumberOfComponents="3" format="appended"`)
}

func TestEncodeIsDeterministic(t *testing.T) {
	first := encode(t, DefaultOptions(), testVolume(3))
	second := encode(t, DefaultOptions(), testVolume(3))
	assert.Equal(t, first, second)
}

func TestRoundTripModes(t *testing.T) {
	cases := map[string]Options{
		"appended-raw":    {DataMode: Appended, HeaderType: UInt64},
		"appended-base64": {DataMode: Appended, EncodeAppended: true, HeaderType: UInt64},
		"appended-uint32": {DataMode: Appended, HeaderType: UInt32},
		"inline-binary":   {DataMode: Binary, HeaderType: UInt32},
	}

	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			vol := testVolume(3)
			out := encode(t, opts, vol)

			f, err := Read(bytes.NewReader(out))
			require.NoError(t, err)

			assert.Equal(t, opts.DataMode, f.DataMode)
			assert.Equal(t, opts.HeaderType, f.HeaderType)
			assert.Equal(t, vol.Dims, f.Dims)
			assert.Equal(t, vol.Origin, f.Origin)
			assert.Equal(t, vol.Spacing, f.Spacing)
			assert.Equal(t, "UInt16", f.ScalarType)
			assert.Equal(t, DefaultScalarName, f.ScalarName)
			assert.Equal(t, 1, f.Components)
			assert.Equal(t, bytes.Join(vol.Planes, nil), f.Payload)

			switch {
			case opts.DataMode == Binary:
				assert.Empty(t, f.Encoding)
			case opts.EncodeAppended:
				assert.Equal(t, "base64", f.Encoding)
			default:
				assert.Equal(t, "raw", f.Encoding)
			}
		})
	}
}

func TestEncodeEscapesScalarName(t *testing.T) {
	vol := testVolume(2)
	opts := DefaultOptions()
	opts.ScalarName = `T1 "fat" & <water>`
	out := encode(t, opts, vol)

	assert.Contains(t, string(out), `Name="T1 &#34;fat&#34; &amp; &lt;water&gt;"`)

	doc, err := Read(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, opts.ScalarName, doc.ScalarName)
	assert.Equal(t, vol.Dims, doc.Dims)
	assert.Len(t, doc.Payload, vol.ByteLength())
}

func TestEncodeRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer

	_, err := NewWriter(DefaultOptions()).Encode(&buf, &models.Volume{})
	assert.Error(t, err)

	_, err = NewWriter(Options{DataMode: "ascii"}).Encode(&buf, testVolume(1))
	assert.Error(t, err)

	_, err = NewWriter(Options{HeaderType: "UInt16"}).Encode(&buf, testVolume(1))
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.vti")

	n, err := NewWriter(DefaultOptions()).WriteFile(path, testVolume(2))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), n)
}

func TestWriteFileFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "volume.vti")

	_, err := NewWriter(DefaultOptions()).WriteFile(path, testVolume(1))
	require.Error(t, err)
	assert.True(t, errdefs.IsWrite(err))
}

func TestReadRejectsCompressed(t *testing.T) {
	doc := `<?xml version="1.0"?>
<VTKFile type="ImageData" version="1.0" byte_order="LittleEndian" header_type="UInt64" compressor="vtkZLibDataCompressor">
  <ImageData WholeExtent="0 0 0 0 0 0" Origin="0 0 0" Spacing="1 1 1">
    <Piece Extent="0 0 0 0 0 0">
      <PointData>
        <DataArray type="UInt8" Name="a" format="appended" offset="0" />
      </PointData>
    </Piece>
  </ImageData>
  <AppendedData encoding="raw">
   _
  </AppendedData>
</VTKFile>`
	_, err := Read(strings.NewReader(doc))
	assert.Error(t, err)
}
