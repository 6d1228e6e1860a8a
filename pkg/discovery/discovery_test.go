package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicom2vti/pkg/errdefs"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
}

func TestListSortsLexicographically(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "slice010.dcm", "slice002.dcm", "slice001.dcm", "notes.txt", "slice003.DCM")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.dcm"), 0755))

	files, err := List(dir, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "slice001.dcm"),
		filepath.Join(dir, "slice002.dcm"),
		filepath.Join(dir, "slice010.dcm"),
	}, files)
}

func TestListIsNotNumericAware(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "2.dcm", "10.dcm", "1.dcm")

	files, err := List(dir, DefaultPattern)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"1.dcm", "10.dcm", "2.dcm"}, names)
}

func TestListMissingDirectory(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "missing"), "")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestListFileInsteadOfDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.dcm")

	_, err := List(filepath.Join(dir, "a.dcm"), "")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestListNoMatches(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "readme.txt", "other.txt")

	_, err := List(dir, "")
	require.Error(t, err)
	assert.True(t, errdefs.IsEmptyInput(err))
}

func TestListCustomPattern(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "IM_0001", "IM_0002", "a.dcm")

	files, err := List(dir, "IM_*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = List(dir, "[")
	assert.Error(t, err)
	assert.False(t, errdefs.IsEmptyInput(err))
}

func TestListSkipsHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "slice001.dcm", "._slice001.dcm", ".DS_Store.dcm")

	files, err := List(dir, DefaultPattern)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "slice001.dcm")}, files)

	hidden, err := List(dir, ".*.dcm")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, ".DS_Store.dcm"),
		filepath.Join(dir, "._slice001.dcm"),
	}, hidden)
}

func TestListOnlyHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "._slice001.dcm")

	_, err := List(dir, "")
	assert.True(t, errdefs.IsEmptyInput(err))
}
