// Package config loads runtime settings: built-in defaults, an optional YAML
// file and MBP10_* environment overrides, in that order. Command-line flags
// are applied on top by cmd/mbp10.
package config
