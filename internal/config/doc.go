// Package config loads vulntrack configuration from local and global YAML
// files plus VULNTRACK_* environment variables. Every field is a pointer so
// the CLI can layer flags > env > local > global > defaults.
package config
