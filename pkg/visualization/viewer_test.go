package visualization

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"dicom2vti/internal/models"
)

// createTestVolume builds a UInt16 volume where each voxel holds x + 10*y + 100*z
func createTestVolume(width, height, depth int) *models.Volume {
	vol := &models.Volume{
		Dims:       [3]int{width, height, depth},
		Spacing:    [3]float64{1, 1, 1},
		Scalar:     models.UInt16,
		Components: 1,
	}
	for z := 0; z < depth; z++ {
		plane := make([]byte, width*height*2)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Scalar.Put(plane[(y*width+x)*2:], x+10*y+100*z)
			}
		}
		vol.Planes = append(vol.Planes, plane)
	}
	return vol
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 4, 3, 5
	vol := createTestVolume(width, height, depth)
	viewer := NewViewer(vol, 0, 65535)

	tests := []struct {
		axis          string
		position      int
		wantW, wantH  int
		x, y          int
		wantVoxelFrom [3]int
	}{
		// Row 0 of the image is the highest y of the volume
		{"z", 2, width, height, 1, 0, [3]int{1, height - 1, 2}},
		{"x", 3, depth, height, 4, 2, [3]int{3, 0, 4}},
		{"y", 1, width, depth, 2, 0, [3]int{2, 1, depth - 1}},
	}

	for _, tt := range tests {
		img, err := viewer.ExtractSlice(tt.axis, tt.position)
		if err != nil {
			t.Fatalf("Failed to extract %s slice at position %d: %v", tt.axis, tt.position, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != tt.wantW || bounds.Dy() != tt.wantH {
			t.Errorf("Axis %s: expected %dx%d image, got %dx%d", tt.axis, tt.wantW, tt.wantH, bounds.Dx(), bounds.Dy())
		}

		gray := img.(*image.Gray16).Gray16At(tt.x, tt.y).Y
		v := tt.wantVoxelFrom
		want := viewer.gray(vol.At(v[0], v[1], v[2])).Y
		if gray != want {
			t.Errorf("Axis %s: pixel (%d,%d) = %d, want %d", tt.axis, tt.x, tt.y, gray, want)
		}
	}
}

// TestExtractSliceBounds verifies that invalid positions and axes are rejected
func TestExtractSliceBounds(t *testing.T) {
	viewer := NewViewer(createTestVolume(4, 3, 2), 0, 1000)

	if _, err := viewer.ExtractSlice("z", 2); err == nil {
		t.Error("Expected error for z position beyond depth")
	}
	if _, err := viewer.ExtractSlice("x", -1); err == nil {
		t.Error("Expected error for negative position")
	}
	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Error("Expected error for invalid axis")
	}
}

// TestGrayMapping verifies the window mapping and its clamping
func TestGrayMapping(t *testing.T) {
	viewer := NewViewer(createTestVolume(1, 1, 1), 100, 200)

	if got := viewer.gray(50).Y; got != 0 {
		t.Errorf("Expected values below the window to be black, got %d", got)
	}
	if got := viewer.gray(300).Y; got != 65535 {
		t.Errorf("Expected values above the window to be white, got %d", got)
	}
	if got := viewer.gray(150).Y; got < 32000 || got > 33000 {
		t.Errorf("Expected mid-window value near 32767, got %d", got)
	}

	flat := NewViewer(createTestVolume(1, 1, 1), 5, 5)
	if got := flat.gray(5).Y; got != 0 {
		t.Errorf("Expected a degenerate window to render black, got %d", got)
	}
}

// TestSavePreviews verifies that one preview per axis is written
func TestSavePreviews(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "previews")
	viewer := NewViewer(createTestVolume(6, 4, 3), 0, 600)

	written, err := viewer.SavePreviews(outputDir)
	if err != nil {
		t.Fatalf("Failed to save previews: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("Expected 3 previews, got %d", len(written))
	}

	expected := []string{"preview_x_003.png", "preview_y_002.png", "preview_z_001.png"}
	for i, name := range expected {
		if filepath.Base(written[i]) != name {
			t.Errorf("Expected preview %s, got %s", name, filepath.Base(written[i]))
		}
		if _, err := os.Stat(written[i]); err != nil {
			t.Errorf("Preview %s was not written: %v", written[i], err)
		}
	}
}

// TestSaveSliceSequence verifies that every slice along an axis is written
func TestSaveSliceSequence(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "slices")
	viewer := NewViewer(createTestVolume(4, 3, 5), 0, 600)

	for axis, want := range map[string]int{"x": 4, "y": 3, "z": 5} {
		axisDir := filepath.Join(outputDir, axis)
		n, err := viewer.SaveSliceSequence(axis, axisDir)
		if err != nil {
			t.Fatalf("Failed to save %s slices: %v", axis, err)
		}
		if n != want {
			t.Errorf("Axis %s: expected %d slices, got %d", axis, want, n)
		}

		entries, err := os.ReadDir(axisDir)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", axisDir, err)
		}
		if len(entries) != want {
			t.Errorf("Axis %s: expected %d files, got %d", axis, want, len(entries))
		}
	}

	last := filepath.Join(outputDir, "z", "slice_z_004.png")
	f, err := os.Open(last)
	if err != nil {
		t.Fatalf("Missing %s: %v", last, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode %s: %v", last, err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected a 4x3 image, got %dx%d", b.Dx(), b.Dy())
	}

	if _, err := viewer.SaveSliceSequence("w", outputDir); err == nil {
		t.Error("Expected error for invalid axis")
	}
}
