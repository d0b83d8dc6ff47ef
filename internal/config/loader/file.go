package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// IncludeKey names the top-level key listing files to merge underneath
// the including document.
const IncludeKey = "include"

// MaxIncludeDepth bounds nested includes.
const MaxIncludeDepth = 8

// ErrIncludeDepth is returned when includes nest deeper than MaxIncludeDepth.
var ErrIncludeDepth = errors.New("include depth exceeded")

type decodeFunc func(data []byte, out *map[string]any) error

// FileLoader loads one configuration file and the files it includes.
type FileLoader struct {
	fs     FileSystem
	path   string
	format string
	decode decodeFunc
}

// NewTOMLLoader creates a loader for a TOML file.
func NewTOMLLoader(fsys FileSystem, path string) *FileLoader {
	return newFileLoader(fsys, path, "toml", func(data []byte, out *map[string]any) error {
		return toml.Unmarshal(data, out)
	})
}

// NewYAMLLoader creates a loader for a YAML file.
func NewYAMLLoader(fsys FileSystem, path string) *FileLoader {
	return newFileLoader(fsys, path, "yaml", func(data []byte, out *map[string]any) error {
		return yaml.Unmarshal(data, out)
	})
}

func newFileLoader(fsys FileSystem, path, format string, decode decodeFunc) *FileLoader {
	if fsys == nil {
		fsys = OSFS{}
	}
	return &FileLoader{fs: fsys, path: path, format: format, decode: decode}
}

// Path returns the file the loader reads.
func (l *FileLoader) Path() string {
	return l.path
}

// Format returns "toml" or "yaml".
func (l *FileLoader) Format() string {
	return l.format
}

// Load reads the file, resolving includes relative to its directory.
// Values in the including file override included values.
func (l *FileLoader) Load() (map[string]any, error) {
	return l.load(l.path, MaxIncludeDepth)
}

// Parse decodes data without touching the file system.
func (l *FileLoader) Parse(data []byte) (map[string]any, error) {
	return l.parse("<data>", data)
}

func (l *FileLoader) load(path string, depth int) (map[string]any, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncludeDepth, path)
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg, err := l.parse(path, data)
	if err != nil || cfg == nil {
		return cfg, err
	}

	includes, err := includeList(cfg[IncludeKey])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	delete(cfg, IncludeKey)

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		sub, err := l.load(inc, depth-1)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", inc, err)
		}
		merged = DeepMerge(merged, sub)
	}
	return DeepMerge(merged, cfg), nil
}

func (l *FileLoader) parse(source string, data []byte) (map[string]any, error) {
	var cfg map[string]any
	if err := l.decode(data, &cfg); err != nil {
		return nil, &ParseError{Path: source, Format: l.format, Err: err}
	}
	return cfg, nil
}

func includeList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", IncludeKey, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string or list of strings, got %T", IncludeKey, v)
	}
}

// ParseError reports a configuration document that failed to decode.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s config %s: %v", e.Format, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
