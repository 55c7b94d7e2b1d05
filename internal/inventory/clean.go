package inventory

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CleanByExtension removes regular files in dir (not recursive) whose
// extension is one of exts, e.g. ".xls". A missing dir removes nothing.
func CleanByExtension(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = true
	}
	var removed []string
	var errs []error
	for _, ent := range entries {
		if !ent.Type().IsRegular() || !want[strings.ToLower(filepath.Ext(ent.Name()))] {
			continue
		}
		p := filepath.Join(dir, ent.Name())
		if err := os.Remove(p); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, p)
	}
	return removed, errors.Join(errs...)
}
