package assets

import (
	"encoding/binary"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
)

// Checksum returns the base58 encoded CRC64-NVME checksum of data
func Checksum(data []byte) string {
	h := crc64nvme.New()
	h.Write(data)

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return base58.Encode(sum[:])
}

// ExpandName substitutes [name], [ext] and [hash] in a naming template.
// [name] and [ext] come from file, [hash] from contents.
func ExpandName(template, file string, contents []byte) string {
	base := filepath.Base(file)
	ext := filepath.Ext(base)

	r := strings.NewReplacer(
		"[name]", strings.TrimSuffix(base, ext),
		"[ext]", strings.TrimPrefix(ext, "."),
		"[hash]", cond(strings.Contains(template, "[hash]"), Checksum(contents), ""),
	)
	return path.Clean(r.Replace(template))
}

// expandEntry substitutes the entry name into an output template.
func expandEntry(template, name string) string {
	return path.Clean(strings.ReplaceAll(template, "[name]", name))
}

// publicURL joins the public path and a path relative to Dest.
func publicURL(publicPath, rel string) string {
	if !strings.HasSuffix(publicPath, "/") {
		publicPath += "/"
	}
	return publicPath + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// within returns path relative to root, slash separated, when path is inside root.
func within(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
