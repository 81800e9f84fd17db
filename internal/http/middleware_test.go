package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP_xForwardedFor(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{
			name:     "single IP",
			header:   "192.168.1.1",
			expected: "192.168.1.1",
		},
		{
			name:     "multiple IPs (take first)",
			header:   "203.0.113.1, 198.51.100.1",
			expected: "203.0.113.1",
		},
		{
			name:     "multiple IPs with extra spaces",
			header:   " 203.0.113.1  ,  198.51.100.1",
			expected: "203.0.113.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Forwarded-For", tt.header)

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestExtractClientIP_xForwardedForTakesPreference(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1, 198.51.100.1")
	r.Header.Set("X-Real-IP", "192.168.1.100")

	require.Equal(t, "203.0.113.1", ExtractClientIP(r))
}

func TestExtractClientIP_remoteAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		expected   string
	}{
		{
			name:       "IPv4 with port",
			remoteAddr: "192.168.1.1:54321",
			expected:   "192.168.1.1",
		},
		{
			name:       "IPv6 with port",
			remoteAddr: "[2001:db8::1]:54321",
			expected:   "2001:db8::1",
		},
		{
			name:       "no port",
			remoteAddr: "192.168.1.1",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := ClientIPMiddleware()(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))

	r := httptest.NewRequest(http.MethodGet, "/assets/js/main.bundle.js", nil)
	r.Header.Set("X-Real-IP", "198.51.100.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "/assets/js/main.bundle.js", entry["path"])
	require.Equal(t, "198.51.100.7", entry["client_ip"])
	require.Equal(t, float64(http.StatusNotFound), entry["status"])
	require.Equal(t, float64(len("missing")), entry["bytes"])
}

func TestPrecompressedFileServer(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets", "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "js", "main.js"), []byte("plain"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "js", "main.js.gz"), []byte("gzipped"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "js", "main.js.zst"), []byte("zstd"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "logo.svg"), []byte("<svg/>"), 0o600))

	server := PrecompressedFileServer(root)

	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		body           string
		encoding       string
	}{
		{name: "prefers zstd", path: "/assets/js/main.js", acceptEncoding: "gzip, zstd", body: "zstd", encoding: "zstd"},
		{name: "falls back to gzip", path: "/assets/js/main.js", acceptEncoding: "gzip", body: "gzipped", encoding: "gzip"},
		{name: "zstd refused", path: "/assets/js/main.js", acceptEncoding: "zstd;q=0, gzip", body: "gzipped", encoding: "gzip"},
		{name: "identity", path: "/assets/js/main.js", acceptEncoding: "", body: "plain", encoding: ""},
		{name: "no sidecar", path: "/logo.svg", acceptEncoding: "gzip, zstd", body: "<svg/>", encoding: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.acceptEncoding != "" {
				r.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			server.ServeHTTP(w, r)

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, tt.body, w.Body.String())
			require.Equal(t, tt.encoding, w.Header().Get("Content-Encoding"))
			require.Contains(t, w.Header().Get("Content-Type"), map[string]string{
				"/assets/js/main.js": "javascript",
				"/logo.svg":          "image/svg+xml",
			}[tt.path])
		})
	}
}
