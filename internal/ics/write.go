package ics

import (
	"fmt"
	"path/filepath"

	"gebetskalender/internal/atomicfile"
)

// WriteError reports a filesystem failure while writing the calendar.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WriteFile replaces dir/name with data and returns the written path. dir
// is created if missing; on failure the previous calendar stays intact.
func WriteFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return path, &WriteError{Path: path, Err: err}
	}
	return path, nil
}
