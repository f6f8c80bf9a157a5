// Package config loads, normalizes, and validates shortreel's TOML
// configuration, including the immutable per-run channel list, collaborator
// connection settings, per-stage retry tuning, and YAML style presets.
package config
