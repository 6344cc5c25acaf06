// Package config loads and validates the engine configuration from explicit
// values, environment variables, and an optional YAML file, in that order of
// precedence.
package config
