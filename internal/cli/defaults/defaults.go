// Package defaults provides embedded default files for pawbot initialization.
package defaults

import "embed"

//go:embed knowledge/*
var defaultsFS embed.FS

// GetDefaultsFS returns the embedded filesystem containing default files.
func GetDefaultsFS() embed.FS {
	return defaultsFS
}
