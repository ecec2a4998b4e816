// Package config defines the settings files used by the drydock binaries and
// provides helpers to load, validate and save them.
//
// The operator-side Config (coordinator and publisher) is YAML; the
// per-appliance DeviceConfig consumed by the agent is TOML with plain
// key = "value" lines. Validate applies defaults, so zero-value sections are
// usable out of the box.
package config
