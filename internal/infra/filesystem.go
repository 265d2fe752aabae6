package infra

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// EnsureDir expands a leading ~ in path and creates the directory tree.
func EnsureDir(path string, parts ...string) (string, error) {
	dir, err := homedir.Expand(filepath.Join(append([]string{path}, parts...)...))
	if err != nil {
		return "", errors.Wrap(err, "expand path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create dir")
	}
	return dir, nil
}

// ResolvePath makes a relative path absolute against base. Absolute paths and
// paths starting with ~ are returned expanded.
func ResolvePath(base, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrap(err, "expand path")
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Join(base, expanded), nil
}
