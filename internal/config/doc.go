// Package config loads, validates, and normalizes the TOML configuration that
// drives the daemon and CLI. Paths are expanded (including ~) and the loader
// falls back to built-in defaults when no config file exists.
package config
