// Package vti writes volumes as VTK XML ImageData files.
//
// Compression is never applied. The sample payload is either appended after the
// XML markup (raw or base64) or inlined as base64 inside the DataArray element.
package vti

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"dicom2vti/internal/models"
	"dicom2vti/pkg/errdefs"
)

// DataMode selects where the sample payload is stored
type DataMode string

const (
	// Appended stores the payload in an AppendedData section after the markup
	Appended DataMode = "appended"
	// Binary inlines the payload, base64 encoded, inside the DataArray element
	Binary DataMode = "binary"
)

// HeaderType is the integer type of the byte-count header preceding the payload
type HeaderType string

const (
	UInt32 HeaderType = "UInt32"
	UInt64 HeaderType = "UInt64"
)

// DefaultScalarName is the name of the point data array
const DefaultScalarName = "DICOMImage"

// Options configures the writer
type Options struct {
	DataMode DataMode

	// EncodeAppended base64-encodes the appended payload; false writes raw bytes
	EncodeAppended bool

	HeaderType HeaderType
	ScalarName string

	// Range is emitted as RangeMin/RangeMax when set
	Range *[2]float64
}

// DefaultOptions returns uncompressed, appended, raw output
func DefaultOptions() Options {
	return Options{
		DataMode:       Appended,
		EncodeAppended: false,
		HeaderType:     UInt64,
		ScalarName:     DefaultScalarName,
	}
}

// Validate checks the option values
func (o Options) Validate() error {
	switch o.DataMode {
	case Appended, Binary:
	default:
		return errors.Errorf("unknown data mode %q", o.DataMode)
	}
	switch o.HeaderType {
	case UInt32, UInt64:
	default:
		return errors.Errorf("unknown header type %q", o.HeaderType)
	}
	return nil
}

// Writer serializes volumes
type Writer struct {
	opts Options
}

// NewWriter creates a writer. Empty option fields fall back to DefaultOptions.
func NewWriter(opts Options) *Writer {
	def := DefaultOptions()
	if opts.DataMode == "" {
		opts.DataMode = def.DataMode
	}
	if opts.HeaderType == "" {
		opts.HeaderType = def.HeaderType
	}
	if opts.ScalarName == "" {
		opts.ScalarName = def.ScalarName
	}
	return &Writer{opts: opts}
}

// WriteFile writes v to path and returns the number of bytes written.
// Every failure is reported as a WriteError; a partially written file is left in place.
func (w *Writer) WriteFile(path string, v *models.Volume) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, &errdefs.WriteError{Path: path, Err: err}
	}

	buf := bufio.NewWriterSize(f, 1<<20)
	n, err := w.Encode(buf, v)
	if err == nil {
		err = buf.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, &errdefs.WriteError{Path: path, Err: err}
	}
	return n, nil
}

// Encode writes the VTI representation of v to out
func (w *Writer) Encode(out io.Writer, v *models.Volume) (int64, error) {
	if err := w.opts.Validate(); err != nil {
		return 0, err
	}
	if v.Empty() {
		return 0, errors.New("cannot write an empty volume")
	}
	payload := uint64(v.ByteLength())
	if w.opts.HeaderType == UInt32 && payload > math.MaxUint32 {
		return 0, errors.Errorf("payload of %d bytes does not fit a UInt32 header", payload)
	}

	cw := &countingWriter{w: out}
	if err := markup.Execute(cw, w.document(v)); err != nil {
		return cw.n, errors.Wrap(err, "failed to write header")
	}

	switch {
	case w.opts.DataMode == Binary:
		if err := w.writeBase64(cw, v); err != nil {
			return cw.n, err
		}
		_, err := io.WriteString(cw, "\n        </DataArray>\n"+pieceFooter+"\n</VTKFile>\n")
		return cw.n, err
	case w.opts.EncodeAppended:
		if err := w.writeBase64(cw, v); err != nil {
			return cw.n, err
		}
	default:
		if err := w.writeRaw(cw, v); err != nil {
			return cw.n, err
		}
	}

	_, err := io.WriteString(cw, "\n  </AppendedData>\n</VTKFile>\n")
	return cw.n, err
}

func (w *Writer) header(v *models.Volume) []byte {
	if w.opts.HeaderType == UInt32 {
		return binary.LittleEndian.AppendUint32(nil, uint32(v.ByteLength()))
	}
	return binary.LittleEndian.AppendUint64(nil, uint64(v.ByteLength()))
}

func (w *Writer) writeRaw(out io.Writer, v *models.Volume) error {
	if _, err := out.Write(w.header(v)); err != nil {
		return err
	}
	for _, plane := range v.Planes {
		if _, err := out.Write(plane); err != nil {
			return err
		}
	}
	return nil
}

// writeBase64 encodes the header and the planes as one base64 stream
func (w *Writer) writeBase64(out io.Writer, v *models.Volume) error {
	enc := base64.NewEncoder(base64.StdEncoding, out)
	if err := w.writeRaw(enc, v); err != nil {
		return err
	}
	return enc.Close()
}

type document struct {
	HeaderType  HeaderType
	Extent      string
	Origin      string
	Spacing     string
	ScalarName  string
	Type        string
	Components  int
	Format      string
	Range       *scalarRange
	Appended    bool
	Encoding    string
	PieceFooter string
}

func (w *Writer) document(v *models.Volume) document {
	doc := document{
		HeaderType:  w.opts.HeaderType,
		Extent:      fmt.Sprintf("0 %d 0 %d 0 %d", v.Dims[0]-1, v.Dims[1]-1, v.Dims[2]-1),
		Origin:      formatTriple(v.Origin),
		Spacing:     formatTriple(v.Spacing),
		ScalarName:  w.opts.ScalarName,
		Type:        v.Scalar.String(),
		Components:  v.Components,
		Format:      string(w.opts.DataMode),
		Appended:    w.opts.DataMode == Appended,
		Encoding:    "raw",
		PieceFooter: pieceFooter,
	}
	if w.opts.EncodeAppended {
		doc.Encoding = "base64"
	}
	if w.opts.Range != nil {
		doc.Range = &scalarRange{Min: formatFloat(w.opts.Range[0]), Max: formatFloat(w.opts.Range[1])}
	}
	return doc
}

type scalarRange struct {
	Min, Max string
}

const pieceFooter = `      </PointData>
      <CellData>
      </CellData>
    </Piece>
  </ImageData>`

var markup = template.Must(template.New("vti").Funcs(template.FuncMap{"attr": escapeAttr}).Parse(`<?xml version="1.0"?>
<VTKFile type="ImageData" version="1.0" byte_order="LittleEndian" header_type="{{.HeaderType}}">
  <ImageData WholeExtent="{{.Extent}}" Origin="{{.Origin}}" Spacing="{{.Spacing}}" Direction="1 0 0 0 1 0 0 0 1">
    <Piece Extent="{{.Extent}}">
      <PointData Scalars="{{attr .ScalarName}}">
        <DataArray type="{{.Type}}" Name="{{attr .ScalarName}}"{{if gt .Components 1}} NumberOfComponents="{{.Components}}"{{end}} format="{{.Format}}"{{with .Range}} RangeMin="{{.Min}}" RangeMax="{{.Max}}"{{end}}
{{- if .Appended}} offset="0" />
{{.PieceFooter}}
  <AppendedData encoding="{{.Encoding}}">
   _{{else}}>
          {{end}}`))

// escapeAttr makes s safe inside a double-quoted XML attribute
func escapeAttr(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}

func formatTriple(v [3]float64) string {
	parts := make([]string, 3)
	for i, f := range v {
		parts[i] = formatFloat(f)
	}
	return strings.Join(parts, " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
