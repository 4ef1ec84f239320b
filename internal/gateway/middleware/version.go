package middleware

import (
	"net/http"
	"time"
)

// VersionConfig configures API versioning.
type VersionConfig struct {
	CurrentVersion string
	// DeprecatedVersions maps a version to its sunset date.
	DeprecatedVersions map[string]time.Time
	DefaultVersion     string
}

// DefaultVersionConfig returns the default version configuration.
func DefaultVersionConfig() VersionConfig {
	return VersionConfig{
		CurrentVersion:     "1",
		DeprecatedVersions: make(map[string]time.Time),
		DefaultVersion:     "1",
	}
}

// Version reads Accept-Version and sets API-Version, plus Deprecation and
// Sunset for deprecated versions.
func Version(config VersionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			version := r.Header.Get("Accept-Version")
			if version == "" {
				version = config.DefaultVersion
			}
			w.Header().Set("API-Version", version)

			if sunset, deprecated := config.DeprecatedVersions[version]; deprecated {
				w.Header().Set("Deprecation", "true")
				w.Header().Set("Sunset", sunset.Format(http.TimeFormat))
			}

			next.ServeHTTP(w, r)
		})
	}
}
