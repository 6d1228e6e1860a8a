package vti

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// File is the parsed content of an uncompressed VTI file
type File struct {
	HeaderType HeaderType
	Compressor string
	DataMode   DataMode

	// Encoding of the appended section: raw or base64. Empty for inline data.
	Encoding string

	Dims       [3]int
	Origin     [3]float64
	Spacing    [3]float64
	ScalarType string
	ScalarName string
	Components int

	// Payload is the sample data without the byte-count header
	Payload []byte
}

type xmlFile struct {
	XMLName    xml.Name `xml:"VTKFile"`
	Type       string   `xml:"type,attr"`
	ByteOrder  string   `xml:"byte_order,attr"`
	HeaderType string   `xml:"header_type,attr"`
	Compressor string   `xml:"compressor,attr"`
	ImageData  struct {
		WholeExtent string `xml:"WholeExtent,attr"`
		Origin      string `xml:"Origin,attr"`
		Spacing     string `xml:"Spacing,attr"`
		Piece       struct {
			DataArrays []xmlDataArray `xml:"PointData>DataArray"`
		} `xml:"Piece"`
	} `xml:"ImageData"`
}

type xmlDataArray struct {
	Type       string `xml:"type,attr"`
	Name       string `xml:"Name,attr"`
	Components int    `xml:"NumberOfComponents,attr"`
	Format     string `xml:"format,attr"`
	Offset     int    `xml:"offset,attr"`
	Text       string `xml:",chardata"`
}

var appendedOpen = []byte("<AppendedData")

// Read parses a VTI file written with one point data array and no compression
func Read(r io.Reader) (*File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}

	markupEnd := bytes.Index(raw, appendedOpen)
	var doc xmlFile
	if markupEnd < 0 {
		err = xml.Unmarshal(raw, &doc)
	} else {
		head := append(append([]byte{}, raw[:markupEnd]...), "</VTKFile>"...)
		err = xml.Unmarshal(head, &doc)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse markup")
	}
	if doc.Type != "ImageData" {
		return nil, errors.Errorf("unsupported VTK file type %q", doc.Type)
	}
	if doc.ByteOrder != "LittleEndian" {
		return nil, errors.Errorf("unsupported byte order %q", doc.ByteOrder)
	}
	if len(doc.ImageData.Piece.DataArrays) != 1 {
		return nil, errors.Errorf("expected one point data array, found %d", len(doc.ImageData.Piece.DataArrays))
	}

	arr := doc.ImageData.Piece.DataArrays[0]
	f := &File{
		HeaderType: HeaderType(doc.HeaderType),
		Compressor: doc.Compressor,
		DataMode:   DataMode(arr.Format),
		ScalarType: arr.Type,
		ScalarName: arr.Name,
		Components: max(arr.Components, 1),
	}
	if f.HeaderType == "" {
		f.HeaderType = UInt32
	}
	if f.Compressor != "" {
		return nil, errors.Errorf("compressed files are not supported (%s)", f.Compressor)
	}
	if f.Dims, err = parseExtent(doc.ImageData.WholeExtent); err != nil {
		return nil, err
	}
	if f.Origin, err = parseTriple(doc.ImageData.Origin); err != nil {
		return nil, errors.Wrap(err, "Origin")
	}
	if f.Spacing, err = parseTriple(doc.ImageData.Spacing); err != nil {
		return nil, errors.Wrap(err, "Spacing")
	}

	var block []byte
	switch f.DataMode {
	case Binary:
		block, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(arr.Text), ""))
		if err != nil {
			return nil, errors.Wrap(err, "inline data")
		}
	case Appended:
		if markupEnd < 0 {
			return nil, errors.New("missing AppendedData section")
		}
		block, f.Encoding, err = appendedBlock(raw[markupEnd:], arr.Offset)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unsupported data format %q", f.DataMode)
	}

	f.Payload, err = stripHeader(block, f.HeaderType)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// appendedBlock returns the header and payload bytes starting at offset after the '_' marker
func appendedBlock(section []byte, offset int) ([]byte, string, error) {
	tagEnd := bytes.IndexByte(section, '>')
	if tagEnd < 0 {
		return nil, "", errors.New("malformed AppendedData element")
	}
	encoding := "raw"
	if bytes.Contains(section[:tagEnd], []byte(`encoding="base64"`)) {
		encoding = "base64"
	}

	rest := section[tagEnd+1:]
	marker := bytes.IndexByte(rest, '_')
	if marker < 0 {
		return nil, "", errors.New("missing appended data marker")
	}
	data := rest[marker+1:]

	if encoding == "base64" {
		end := bytes.IndexByte(data, '<')
		if end < 0 {
			return nil, "", errors.New("unterminated AppendedData section")
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data[:end])))
		if err != nil {
			return nil, "", errors.Wrap(err, "appended data")
		}
		data = decoded
	}
	if offset > len(data) {
		return nil, "", errors.Errorf("offset %d beyond appended data", offset)
	}
	return data[offset:], encoding, nil
}

func stripHeader(block []byte, ht HeaderType) ([]byte, error) {
	var size uint64
	var headerLen int
	switch ht {
	case UInt32:
		headerLen = 4
		if len(block) < headerLen {
			return nil, errors.New("truncated data header")
		}
		size = uint64(binary.LittleEndian.Uint32(block))
	case UInt64:
		headerLen = 8
		if len(block) < headerLen {
			return nil, errors.New("truncated data header")
		}
		size = binary.LittleEndian.Uint64(block)
	default:
		return nil, errors.Errorf("unsupported header type %q", ht)
	}
	if uint64(len(block)-headerLen) < size {
		return nil, errors.Errorf("data block holds %d bytes, header declares %d", len(block)-headerLen, size)
	}
	return block[headerLen : headerLen+int(size)], nil
}

func parseExtent(s string) ([3]int, error) {
	var dims [3]int
	fields := strings.Fields(s)
	if len(fields) != 6 {
		return dims, errors.Errorf("malformed extent %q", s)
	}
	for i := 0; i < 3; i++ {
		lo, err := strconv.Atoi(fields[2*i])
		if err != nil {
			return dims, errors.Wrapf(err, "extent %q", s)
		}
		hi, err := strconv.Atoi(fields[2*i+1])
		if err != nil {
			return dims, errors.Wrapf(err, "extent %q", s)
		}
		dims[i] = hi - lo + 1
	}
	return dims, nil
}

func parseTriple(s string) ([3]float64, error) {
	var out [3]float64
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return out, errors.Errorf("expected three values, got %q", s)
	}
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}
