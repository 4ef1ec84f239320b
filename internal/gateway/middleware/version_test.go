package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVersionMiddleware(t *testing.T) {
	sunset := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultVersionConfig()
	cfg.DeprecatedVersions["0"] = sunset

	handler := Version(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name        string
		accept      string
		wantVersion string
		wantSunset  string
	}{
		{"default", "", "1", ""},
		{"current", "1", "1", ""},
		{"deprecated", "0", "0", sunset.Format(http.TimeFormat)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Version", tt.accept)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("API-Version"); got != tt.wantVersion {
				t.Errorf("API-Version = %q, want %q", got, tt.wantVersion)
			}
			if got := w.Header().Get("Sunset"); got != tt.wantSunset {
				t.Errorf("Sunset = %q, want %q", got, tt.wantSunset)
			}
			if (tt.wantSunset != "") != (w.Header().Get("Deprecation") == "true") {
				t.Errorf("Deprecation header = %q", w.Header().Get("Deprecation"))
			}
		})
	}
}
