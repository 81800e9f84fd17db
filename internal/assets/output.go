package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

type outputFile struct {
	rel      string
	contents []byte
}

// assemble maps esbuild output files onto their final paths. Stylesheets
// extracted for an entry move to the stylesheet template along with their
// source maps, and assets emitted by the classification plugin are appended.
func (p *Pipeline) assemble(files []api.OutputFile, md *BuildMetadata) ([]outputFile, map[string]string, error) {
	moves := map[string]string{}
	stylesheets := map[string]string{}

	for _, e := range p.desc.Entries {
		css, script := entryOutputs(md, e.Import)
		if css == "" {
			continue
		}

		target := expandEntry(p.desc.Output.Stylesheets, e.Name)
		moves[css] = target
		moves[css+".map"] = target + ".map"
		stylesheets[e.Name] = target

		if cssInfo, ok := md.Outputs[css]; ok {
			delete(md.Outputs, css)
			md.Outputs[target] = cssInfo
		}
		if info, ok := md.Outputs[script]; ok {
			info.CSSBundle = target
			md.Outputs[script] = info
		}
	}

	outputs := make([]outputFile, 0, len(files))
	for _, f := range files {
		rel, ok := within(p.desc.Dest, f.Path)
		if !ok {
			return nil, nil, fmt.Errorf("output %s is outside %s", f.Path, p.desc.Dest)
		}

		contents := f.Contents
		if target, moved := moves[rel]; moved {
			var err error
			if strings.HasSuffix(rel, ".map") {
				contents, err = relocateSourceMap(contents, path.Dir(rel), path.Dir(target))
				if err != nil {
					return nil, nil, fmt.Errorf("failed to relocate %s: %w", rel, err)
				}
			} else {
				contents = bytes.ReplaceAll(contents,
					[]byte("sourceMappingURL="+path.Base(rel)+".map"),
					[]byte("sourceMappingURL="+path.Base(target)+".map"))
			}
			rel = target
		}

		outputs = append(outputs, outputFile{rel: rel, contents: contents})
	}

	p.emitMu.Lock()
	emitted := make([]string, 0, len(p.emitted))
	for name := range p.emitted {
		emitted = append(emitted, name)
	}
	slices.Sort(emitted)
	for _, name := range emitted {
		if slices.ContainsFunc(outputs, func(o outputFile) bool { return o.rel == name }) {
			p.emitMu.Unlock()
			return nil, nil, fmt.Errorf("emitted asset %s collides with a bundle output", name)
		}
		outputs = append(outputs, outputFile{rel: name, contents: p.emitted[name]})
	}
	p.emitMu.Unlock()

	return outputs, stylesheets, nil
}

// entryOutputs finds the stylesheet and script outputs of an entry. A
// stylesheet entry has no script output.
func entryOutputs(md *BuildMetadata, importPath string) (css, script string) {
	input := filepath.ToSlash(filepath.Clean(importPath))

	for rel, info := range md.Outputs {
		if filepath.ToSlash(filepath.Clean(info.EntryPoint)) != input {
			continue
		}
		switch {
		case strings.HasSuffix(rel, ".js"):
			script = rel
		case strings.HasSuffix(rel, ".css"):
			css = rel
		}
	}

	if script == "" {
		return css, ""
	}
	if info := md.Outputs[script]; info.CSSBundle != "" {
		return info.CSSBundle, script
	}
	if css == "" {
		candidate := strings.TrimSuffix(script, ".js") + ".css"
		if _, ok := md.Outputs[candidate]; ok {
			css = candidate
		}
	}
	return css, script
}

func (p *Pipeline) writeOutputs(ctx context.Context, outputs []outputFile) ([]string, error) {
	m := telemetry.GetMetrics()

	written := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if err := p.writeFile(o.rel, o.contents); err != nil {
			return nil, err
		}
		m.BytesWrittenTotal.Add(ctx, int64(len(o.contents)))
		log.Debug().Str("file", o.rel).Int("bytes", len(o.contents)).Msg("Built file")
		written = append(written, o.rel)
	}

	return written, nil
}

// relocateSourceMap rewrites the sources of a map moved from oldDir to newDir
// so they keep pointing at the same files.
func relocateSourceMap(data []byte, oldDir, newDir string) ([]byte, error) {
	var sm map[string]json.RawMessage
	if err := json.Unmarshal(data, &sm); err != nil {
		return nil, err
	}

	var sources []string
	if raw, ok := sm["sources"]; ok {
		if err := json.Unmarshal(raw, &sources); err != nil {
			return nil, err
		}
	}

	for i, src := range sources {
		// namespaced and absolute sources do not depend on the map location
		if strings.Contains(src, ":") || path.IsAbs(src) {
			continue
		}
		rel, err := filepath.Rel(filepath.FromSlash(newDir), filepath.FromSlash(path.Join(oldDir, src)))
		if err != nil {
			return nil, err
		}
		sources[i] = filepath.ToSlash(rel)
	}

	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	sm["sources"] = raw

	return json.Marshal(sm)
}
