package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage is a flat key/value view over files. Paths use forward slashes and
// are relative to the backend's root.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the files directly under prefix; sub-directories are skipped.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// DeleteTree removes every file under prefix, descending into the given
// sub-directories. Missing files are not an error.
func DeleteTree(ctx context.Context, s Storage, prefix string, subdirs ...string) error {
	dirs := append([]string{prefix}, subdirs...)
	for i, d := range dirs {
		if i > 0 {
			d = prefix + "/" + d
		}
		paths, err := s.List(ctx, d)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := s.Delete(ctx, p); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
	}
	return nil
}
