package assets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

// minCompressSize is the smallest file worth a precompressed sidecar
const minCompressSize = 1024

var compressible = map[string]bool{
	".css":  true,
	".html": true,
	".js":   true,
	".json": true,
	".map":  true,
	".svg":  true,
	".txt":  true,
}

// compressOutputs writes .gz and .zst sidecars next to every compressible
// file so they can be served without compressing per request.
func (p *Pipeline) compressOutputs(ctx context.Context, written []string) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	defer enc.Close()

	count := 0
	for _, rel := range written {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !compressible[strings.ToLower(filepath.Ext(rel))] {
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.desc.Dest, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if len(data) < minCompressSize {
			continue
		}

		gz, err := gzipBytes(data)
		if err != nil {
			return fmt.Errorf("failed to gzip %s: %w", rel, err)
		}
		if err := p.writeFile(rel+".gz", gz); err != nil {
			return err
		}

		if err := p.writeFile(rel+".zst", enc.EncodeAll(data, nil)); err != nil {
			return err
		}
		count++
	}

	telemetry.GetMetrics().CompressedFilesTotal.Add(ctx, int64(count))
	log.Info().Int("files", count).Msg("Wrote precompressed sidecars")
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
