// Package config defines the marble configuration file format and its
// loader. Configuration is YAML, validated with struct tags, with defaults
// applied before validation so a minimal file only needs the API base URL.
package config
