package loader

import (
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// EnvLoader maps prefixed environment variables onto configuration paths.
//
// With prefix "HOOKBUS_", HOOKBUS_BUS_FAULT_ISOLATED sets bus.fault_isolated:
// the first segment after the prefix is the section and the rest, joined
// with underscores, is the key.
type EnvLoader struct {
	prefix  string
	environ func() []string
}

// NewEnvLoader creates an environment loader. The prefix should include
// the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{prefix: prefix, environ: os.Environ}
}

// NewEnvLoaderFrom creates a loader over a fixed KEY=VALUE list.
func NewEnvLoaderFrom(prefix string, environ []string) *EnvLoader {
	return &EnvLoader{prefix: prefix, environ: func() []string { return environ }}
}

// Load returns the prefixed variables as a nested map. Empty values are
// kept as empty strings.
func (l *EnvLoader) Load() (map[string]any, error) {
	cfg := make(map[string]any)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, ok := l.path(name)
		if !ok {
			continue
		}
		SetPath(cfg, path, ParseValue(value))
	}
	return cfg, nil
}

// path converts PREFIX_SECTION_SOME_KEY to section.some_key.
func (l *EnvLoader) path(name string) (string, bool) {
	section, key, ok := strings.Cut(strings.TrimPrefix(name, l.prefix), "_")
	if !ok || section == "" || key == "" {
		return "", false
	}
	return strings.ToLower(section) + "." + strings.ToLower(key), true
}

// ParseValue converts an environment string to a bool, integer, float,
// JSON array or object, or leaves it a string.
func ParseValue(s string) any {
	switch strings.ToLower(s) {
	case "":
		return s
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if (strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")) && gjson.Valid(s) {
		return gjson.Parse(s).Value()
	}
	return s
}
