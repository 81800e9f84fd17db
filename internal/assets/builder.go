package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const tracerName = "github.com/wolfeidau/assetpipe/internal/assets"

// Build runs esbuild with the descriptor's rules, writes every output under
// Dest, applies the static copy rules and writes the manifest.
func (p *Pipeline) Build(ctx context.Context) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "assets.Build")
	defer span.End()

	m := telemetry.GetMetrics()
	started := time.Now()
	defer func() {
		result := cond(err == nil, "success", "error")
		attrs := metric.WithAttributes(attribute.String("result", result))
		m.BuildsTotal.Add(ctx, 1, attrs)
		m.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	// a failed build leaves nothing for LoadScripts to serve
	p.metadata, p.stylesheets, p.written = nil, nil, nil

	p.emitMu.Lock()
	p.emitted = map[string][]byte{}
	p.emitMu.Unlock()

	entryPoints := make([]api.EntryPoint, 0, len(p.desc.Entries))
	names := make([]string, 0, len(p.desc.Entries))
	for _, e := range p.desc.Entries {
		entryPoints = append(entryPoints, api.EntryPoint{
			InputPath:  e.Import,
			OutputPath: strings.TrimSuffix(expandEntry(p.desc.Output.Scripts, e.Name), ".js"),
		})
		names = append(names, e.Name)
	}

	log.Info().Strs("entrypoints", names).Str("context", p.desc.Context).Msg("Building assets")

	define := maps.Clone(p.desc.Define)
	var inject []string
	if len(p.desc.Provide) > 0 {
		if define == nil {
			define = map[string]string{}
		}
		maps.Copy(define, provideDefines(p.desc.Provide))
		inject = provideInjects(p.desc.Provide)
	}

	minify := p.desc.ShouldMinify()

	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: entryPoints,
		AbsWorkingDir:       p.desc.Context,
		Bundle:              true,
		Splitting:           true,
		Write:               false,
		Outdir:              p.desc.Dest,
		ChunkNames:          p.desc.Output.Chunks,
		Format:              api.FormatESModule,
		Platform:            api.PlatformBrowser,
		Target:              p.target,
		Engines:             p.engines,
		Define:              define,
		Inject:              inject,
		MinifyWhitespace:    minify,
		MinifyIdentifiers:   minify,
		MinifySyntax:        minify,
		LegalComments:       cond(minify, api.LegalCommentsNone, api.LegalCommentsDefault),
		Drop:                cond(p.desc.DropConsole, api.DropConsole, 0),
		TreeShaking:         api.TreeShakingTrue,
		Sourcemap:           cond(p.desc.ShouldSourceMap(), api.SourceMapLinked, api.SourceMapNone),
		Metafile:            true,
		Plugins:             []api.Plugin{p.classifyPlugin()},
		LogLevel:            api.LogLevelSilent,
	})

	for _, msg := range result.Warnings {
		log.Warn().Str("warning", msg.Text).Msg("Build warning")
	}

	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			log.Error().Str("error", msg.Text).Msg("Build error")
		}
		return fmt.Errorf("%w: %w", ErrBuildFailed, messagesError(result.Errors))
	}

	var raw BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &raw); err != nil {
		return fmt.Errorf("failed to parse metafile: %w", err)
	}
	metadata := p.relativeMetadata(raw)

	outputs, stylesheets, err := p.assemble(result.OutputFiles, metadata)
	if err != nil {
		return err
	}

	// every entry must map to its outputs before anything is written
	for _, e := range p.desc.Entries {
		if _, _, err := p.scriptsFor(metadata, e.Name); err != nil {
			return err
		}
	}

	written, err := p.writeOutputs(ctx, outputs)
	if err != nil {
		return err
	}

	copied, err := p.copyStatic(ctx)
	if err != nil {
		return err
	}
	// copy rules may target files the bundle already wrote
	written = uniqueFiles(append(written, copied...))

	if err := p.writeFile(p.desc.MetafilePath, []byte(result.Metafile)); err != nil {
		return err
	}

	if p.desc.Compress {
		if err := p.compressOutputs(ctx, written); err != nil {
			return err
		}
	}

	if err := p.writeManifest(metadata, stylesheets, written); err != nil {
		return err
	}

	p.metadata = metadata
	p.stylesheets = stylesheets
	p.written = written

	log.Info().Int("files", len(written)).Dur("duration", time.Since(started)).Msg("Build complete")
	return nil
}

// relativeMetadata rekeys metafile outputs, which esbuild reports relative to
// the working directory, to paths relative to Dest.
func (p *Pipeline) relativeMetadata(raw BuildMetadata) *BuildMetadata {
	metadata := &BuildMetadata{Outputs: make(map[string]OutputInfo, len(raw.Outputs))}

	for key, info := range raw.Outputs {
		imports := make([]ImportInfo, 0, len(info.Imports))
		for _, imp := range info.Imports {
			if rel, ok := p.destRel(imp.Path); ok {
				imp.Path = rel
			}
			imports = append(imports, imp)
		}
		info.Imports = imports

		if info.CSSBundle != "" {
			if rel, ok := p.destRel(info.CSSBundle); ok {
				info.CSSBundle = rel
			}
		}

		rel, ok := p.destRel(key)
		if !ok {
			continue
		}
		metadata.Outputs[rel] = info
	}

	return metadata
}

func (p *Pipeline) destRel(workingRel string) (string, bool) {
	abs := workingRel
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.desc.Context, filepath.FromSlash(workingRel))
	}
	rel, ok := within(p.desc.Dest, abs)
	return rel, ok
}

// LoadScripts returns the ordered list of script paths needed for the given entry
// and the entry bundle path
func (p *Pipeline) LoadScripts(entryName string) ([]string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.loadScripts(entryName)
}

func (p *Pipeline) loadScripts(entryName string) ([]string, string, error) {
	if p.metadata == nil {
		return nil, "", ErrNotBuilt
	}
	return p.scriptsFor(p.metadata, entryName)
}

func (p *Pipeline) scriptsFor(md *BuildMetadata, entryName string) ([]string, string, error) {
	entry, err := p.entry(entryName)
	if err != nil {
		return nil, "", err
	}
	input := filepath.ToSlash(filepath.Clean(entry.Import))

	scripts := []string{}
	visited := make(map[string]bool)
	stylesheetOnly := false

	// Find the output file for this entrypoint
	for outputPath, info := range md.Outputs {
		if filepath.ToSlash(filepath.Clean(info.EntryPoint)) != input {
			continue
		}
		if !strings.HasSuffix(outputPath, ".js") {
			stylesheetOnly = true
			continue
		}
		entrypoint := publicURL(p.desc.Output.PublicPath, outputPath)
		scripts = append(scripts, entrypoint)
		visited[outputPath] = true
		addDependencies(md, info, p.desc.Output.PublicPath, &scripts, visited)
		return scripts, entrypoint, nil
	}

	if stylesheetOnly {
		return scripts, "", nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnknownEntry, entryName)
}

func addDependencies(md *BuildMetadata, output OutputInfo, publicPath string, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.Kind != "import-statement" || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true

		chunkInfo, exists := md.Outputs[imp.Path]
		if !exists {
			continue
		}
		*scripts = append(*scripts, publicURL(publicPath, imp.Path))
		addDependencies(md, chunkInfo, publicPath, scripts, visited)
	}
}

// uniqueFiles drops repeated paths, keeping the first occurrence.
func uniqueFiles(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := files[:0]
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Stylesheet returns the public path of the extracted stylesheet of an entry.
// The second result is false when the entry imports no styles.
func (p *Pipeline) Stylesheet(entryName string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return "", false, ErrNotBuilt
	}
	if _, err := p.entry(entryName); err != nil {
		return "", false, err
	}

	rel, ok := p.stylesheets[entryName]
	if !ok {
		return "", false, nil
	}
	return publicURL(p.desc.Output.PublicPath, rel), true, nil
}

func (p *Pipeline) writeFile(rel string, data []byte) error {
	target := filepath.Join(p.desc.Dest, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil { //nolint:gosec // build output is public
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}
