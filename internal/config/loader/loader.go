// Package loader reads configuration sources into nested maps.
//
// File loaders decode TOML or YAML documents; the environment loader maps
// prefixed variables onto dotted paths. Results are combined with
// DeepMerge, later sources overriding earlier ones.
package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader is a configuration source.
type Loader interface {
	// Load reads the source. A missing source yields nil, nil.
	Load() (map[string]any, error)
}

// FileSystem is the file access loaders need. fstest.MapFS satisfies it.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// ForPath returns a file loader chosen by the extension of path:
// .yaml and .yml decode as YAML, anything else as TOML.
func ForPath(fsys FileSystem, path string) *FileLoader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLLoader(fsys, path)
	default:
		return NewTOMLLoader(fsys, path)
	}
}
