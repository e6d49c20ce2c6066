package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioNotFoundError is returned when a named scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios expands paths into scenario files. Files are taken as
// given; directories are walked for .yaml and .yml files, skipping golden
// directories. If filter is set, only files whose base name without
// extension matches the glob are returned. The result is sorted and free
// of duplicates.
func FindScenarios(paths []string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	keep := func(path string) {
		ext := filepath.Ext(path)
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return
			}
		}
		files = append(files, path)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			keep(p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "golden" && path != p {
					return filepath.SkipDir
				}
				return nil
			}
			if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
				keep(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}
