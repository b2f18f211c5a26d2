// Package backlog tracks dates whose FMV is still missing from reports.
package backlog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cryptofmv/internal/dates"
	"cryptofmv/internal/fsutil"
	"cryptofmv/logger"
	"cryptofmv/models"
)

// File is the YAML list of backlog dates. A missing file is an empty
// backlog, and saving an empty backlog removes the file.
type File struct {
	path string
	log  *logger.Log
}

// NewFile returns the backlog stored at path.
func NewFile(path string) *File {
	return &File{path: path, log: logger.GetLogger()}
}

// Path is the backing file.
func (f *File) Path() string { return f.path }

// Load returns the sorted, de-duplicated backlog. Entries that are not
// dates are logged and dropped.
func (f *File) Load() ([]models.Date, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backlog %s: %w", f.path, err)
	}

	var raw []string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse backlog %s: %w", f.path, err)
	}

	out := make([]models.Date, 0, len(raw))
	for _, s := range raw {
		d, err := dates.Parse(s)
		if err != nil {
			f.log.WithComponent("backlog").WithFields(logger.Fields{"entry": s}).Warn("ignoring invalid backlog entry")
			continue
		}
		out = append(out, d)
	}
	return Normalize(out), nil
}

// Save writes dates sorted and de-duplicated, or removes the file when
// there are none.
func (f *File) Save(ds []models.Date) error {
	ds = Normalize(ds)
	if len(ds) == 0 {
		if err := fsutil.RemoveIfExists(f.path); err != nil {
			return fmt.Errorf("remove empty backlog: %w", err)
		}
		return nil
	}

	raw := make([]string, len(ds))
	for i, d := range ds {
		raw[i] = d.String()
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode backlog: %w", err)
	}
	return fsutil.WriteFileAtomic(f.path, data, 0o644)
}

// Normalize sorts and de-duplicates in a new slice.
func Normalize(ds []models.Date) []models.Date {
	seen := make(map[models.Date]bool, len(ds))
	out := make([]models.Date, 0, len(ds))
	for _, d := range ds {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	models.SortDates(out)
	return out
}
