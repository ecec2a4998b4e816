package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so settings files carry human-readable values
// like "15s" or "10m" instead of raw nanosecond counts. It decodes from both
// YAML (operator config) and TOML (device config, via encoding.TextUnmarshaler).
type Duration time.Duration

// UnmarshalYAML parses a duration string from the operator config. An empty
// value stays zero so Validate can apply the default.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText parses a duration string from the device config.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

// MarshalText renders the duration back as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) parse(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		*d = 0

		return nil
	}

	parsed, err := time.ParseDuration(trimmed)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}

	*d = Duration(parsed)

	return nil
}
