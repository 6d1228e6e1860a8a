// Package discovery finds the slice files of a conversion run.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"dicom2vti/pkg/errdefs"
)

// DefaultPattern matches DICOM slice files. Matching is case-sensitive.
const DefaultPattern = "*.dcm"

// List returns the files in dir whose name matches pattern, sorted in
// ascending lexicographic order of their names.
//
// Names starting with a dot are ignored unless pattern starts with a dot.
// The order determines the depth index of every slice, so inputs must be named
// sortably (zero-padded). No numeric-aware sort is applied.
func List(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "invalid slice pattern %q", pattern)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, &errdefs.NotFoundError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &errdefs.NotFoundError{Dir: dir, Err: errors.New("not a directory")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read input directory %s", dir)
	}

	// Hidden files (macOS "._" resource forks, editor backups) only match a
	// pattern that starts with a dot itself.
	matchHidden := strings.HasPrefix(pattern, ".")

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), ".") && !matchHidden {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); ok {
			names = append(names, entry.Name())
		}
	}

	if len(names) == 0 {
		return nil, &errdefs.EmptyInputError{Dir: dir, Pattern: pattern}
	}

	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}
