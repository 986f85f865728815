// Package config loads, validates and normalizes the TOML configuration
// file. All path fields are expanded to absolute paths during load, and a
// handful of secrets can be supplied through environment variables instead
// of the file.
package config
