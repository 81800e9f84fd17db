package http

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// sidecar encodings in preference order
var encodings = []struct {
	name string
	ext  string
}{
	{name: "zstd", ext: ".zst"},
	{name: "gzip", ext: ".gz"},
}

// PrecompressedFileServer serves files from root, answering with a .zst or
// .gz sidecar when the client accepts that encoding and the sidecar exists.
func PrecompressedFileServer(root string) http.Handler {
	files := http.FileServer(http.Dir(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		name := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			files.ServeHTTP(w, r)
			return
		}

		for _, enc := range encodings {
			if !acceptsEncoding(r.Header.Get("Accept-Encoding"), enc.name) {
				continue
			}

			sidecar := filepath.Join(root, filepath.FromSlash(name)+enc.ext)
			if info, err := os.Stat(sidecar); err != nil || info.IsDir() {
				continue
			}

			if typ := mime.TypeByExtension(path.Ext(name)); typ != "" {
				w.Header().Set("Content-Type", typ)
			}
			w.Header().Set("Content-Encoding", enc.name)
			http.ServeFile(w, r, sidecar)
			return
		}

		files.ServeHTTP(w, r)
	})
}

// acceptsEncoding reports whether an Accept-Encoding header allows name.
func acceptsEncoding(header, name string) bool {
	for part := range strings.SplitSeq(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), name) {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}
