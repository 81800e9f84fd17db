package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

// ErrCopySource indicates a static copy rule whose source cannot be read
var ErrCopySource = errors.New("static copy source not found")

// copyStatic applies the static copy rules. Copies never go through
// classification, whatever the file extension.
func (p *Pipeline) copyStatic(ctx context.Context) ([]string, error) {
	var written []string

	for i, rule := range p.desc.Copy {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		files, err := p.copyRule(rule)
		if err != nil {
			return nil, fmt.Errorf("copy %d (%s): %w", i, rule.From, err)
		}
		telemetry.GetMetrics().FilesCopiedTotal.Add(ctx, int64(len(files)))
		log.Debug().Str("from", rule.From).Str("to", rule.To).Int("files", len(files)).Msg("Copied static files")

		written = append(written, files...)
	}

	return written, nil
}

func (p *Pipeline) copyRule(rule config.CopyRule) ([]string, error) {
	from := rule.From
	if !filepath.IsAbs(from) {
		from = filepath.Join(p.desc.Context, filepath.FromSlash(from))
	}

	if doublestar.ValidatePattern(rule.From) && strings.ContainsAny(rule.From, "*?[{") {
		base, pattern := doublestar.SplitPattern(filepath.ToSlash(from))
		return p.copyGlob(base, pattern, rule)
	}

	info, err := os.Stat(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCopySource, err)
	}

	if rule.ToType == config.ToTypeFile || (!info.IsDir() && rule.ToType == "" && !strings.HasSuffix(rule.To, "/")) {
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory but toType is file", rule.From)
		}
		to := cond(rule.To != "", rule.To, filepath.Base(from))
		if err := p.copyFile(from, to); err != nil {
			return nil, err
		}
		return []string{path.Clean(filepath.ToSlash(to))}, nil
	}

	if !info.IsDir() {
		to := path.Join(filepath.ToSlash(rule.To), filepath.Base(from))
		if err := p.copyFile(from, to); err != nil {
			return nil, err
		}
		return []string{to}, nil
	}

	var written []string
	err = filepath.WalkDir(from, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, ok := within(from, file)
		if !ok || ignored(rule.Ignore, rel) {
			return nil
		}
		to := path.Join(filepath.ToSlash(rule.To), rel)
		if err := p.copyFile(file, to); err != nil {
			return err
		}
		written = append(written, to)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return written, nil
}

func (p *Pipeline) copyGlob(base, pattern string, rule config.CopyRule) ([]string, error) {
	var written []string

	err := doublestar.GlobWalk(os.DirFS(filepath.FromSlash(base)), pattern, func(rel string, d fs.DirEntry) error {
		if d.IsDir() || ignored(rule.Ignore, rel) {
			return nil
		}
		to := path.Join(filepath.ToSlash(rule.To), rel)
		if err := p.copyFile(filepath.Join(filepath.FromSlash(base), filepath.FromSlash(rel)), to); err != nil {
			return err
		}
		written = append(written, to)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCopySource, err)
	}

	return written, nil
}

func (p *Pipeline) copyFile(src, rel string) error {
	if _, ok := within(p.desc.Dest, filepath.Join(p.desc.Dest, filepath.FromSlash(rel))); !ok {
		return fmt.Errorf("copy destination %s escapes %s", rel, p.desc.Dest)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopySource, err)
	}
	return p.writeFile(rel, data)
}

func ignored(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}
