// Package config loads, normalizes, and validates retake configuration from
// TOML files with environment-variable credential overrides.
package config
