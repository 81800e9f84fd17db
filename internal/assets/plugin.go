package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/classify"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	pluginName       = "assetpipe-classify"
	provideImport    = "assetpipe:provide/"
	provideNamespace = "assetpipe-provide"

	defaultAssetName = "[name]-[hash].[ext]"
)

// fonts are missing from the builtin mime table on most systems
var fontTypes = map[string]string{
	".eot":   "application/vnd.ms-fontobject",
	".otf":   "font/otf",
	".ttf":   "font/ttf",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// loadState carries a file through its transform chain
type loadState struct {
	path     string
	match    classify.Match
	contents []byte
	loader   api.Loader
}

// classifyPlugin applies the classification rules while esbuild walks the
// module graph. Files outside every include root fall through to esbuild's
// default loaders.
func (p *Pipeline) classifyPlugin() api.Plugin {
	return api.Plugin{
		Name: pluginName,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(provideImport)},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					// unused provides are dropped from every bundle that never names them
					return api.OnResolveResult{
						Path:        strings.TrimPrefix(args.Path, provideImport),
						Namespace:   provideNamespace,
						SideEffects: api.SideEffectsFalse,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: provideNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					shim := p.loadProvide(build, args.Path)
					return api.OnLoadResult{
						Contents:   &shim,
						ResolveDir: p.desc.Context,
						Loader:     api.LoaderJS,
					}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, p.resolveURLToken)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"}, p.load)
		},
	}
}

// resolveURLToken rewrites url() references in stylesheets to emitted asset
// paths or data URLs. Every other import kind is left to esbuild.
func (p *Pipeline) resolveURLToken(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if args.Kind != api.ResolveCSSURLToken || args.ResolveDir == "" {
		return api.OnResolveResult{}, nil
	}

	ref := args.Path
	switch {
	case strings.HasPrefix(ref, "data:"), strings.HasPrefix(ref, "#"),
		strings.HasPrefix(ref, "//"), strings.Contains(ref, "://"):
		return api.OnResolveResult{}, nil
	case strings.HasPrefix(ref, "/"):
		// site absolute references are already public paths
		return api.OnResolveResult{Path: ref, External: true}, nil
	}

	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	abs := filepath.Join(args.ResolveDir, filepath.FromSlash(ref))

	m, err := p.classifier.Classify(abs)
	if errors.Is(err, classify.ErrOutsideRoot) {
		return api.OnResolveResult{}, nil
	}
	if err != nil {
		return api.OnResolveResult{}, err
	}
	p.recordClassified(m)

	if m.Rule.Kind != classify.KindEmit && m.Rule.Kind != classify.KindInline {
		return api.OnResolveResult{}, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		// let esbuild report the unresolved reference
		return api.OnResolveResult{}, nil
	}

	return api.OnResolveResult{Path: p.assetURL(m.Rule, abs, data), External: true}, nil
}

func (p *Pipeline) load(args api.OnLoadArgs) (api.OnLoadResult, error) {
	m, err := p.classifier.Classify(args.Path)
	if errors.Is(err, classify.ErrOutsideRoot) {
		return api.OnLoadResult{}, nil
	}
	if err != nil {
		return api.OnLoadResult{}, err
	}
	p.recordClassified(m)

	data, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("failed to read %s: %w", args.Path, err)
	}

	st := &loadState{path: args.Path, match: m, contents: data}
	for _, step := range m.Rule.Kind.Chain() {
		if err := p.runStep(step, st); err != nil {
			return api.OnLoadResult{}, err
		}
	}

	contents := string(st.contents)
	return api.OnLoadResult{
		PluginName: pluginName,
		Contents:   &contents,
		Loader:     st.loader,
		ResolveDir: filepath.Dir(args.Path),
	}, nil
}

func (p *Pipeline) runStep(step classify.Step, st *loadState) error {
	log.Debug().Str("file", st.path).Str("rule", st.match.Rule.Name).Str("step", string(step)).Msg("Transform step")

	switch step {
	case classify.StepEmit, classify.StepInline:
		st.contents = []byte("export default " + strconv.Quote(p.assetURL(st.match.Rule, st.path, st.contents)) + ";\n")
		st.loader = api.LoaderJS

	case classify.StepSass:
		css, err := p.compiler.Compile(st.path, st.contents)
		if err != nil {
			return err
		}
		st.contents = css
		st.loader = api.LoaderCSS

	case classify.StepPrefix:
		res := api.Transform(string(st.contents), api.TransformOptions{
			Loader:     api.LoaderCSS,
			Engines:    p.engines,
			Sourcefile: st.path,
			LogLevel:   api.LogLevelSilent,
		})
		if err := messagesError(res.Errors); err != nil {
			return fmt.Errorf("failed to prefix %s: %w", st.path, err)
		}
		st.contents = res.Code

	case classify.StepDownlevel:
		res := api.Transform(string(st.contents), api.TransformOptions{
			Loader:     api.LoaderJS,
			Target:     p.target,
			Engines:    p.engines,
			Sourcefile: st.path,
			LogLevel:   api.LogLevelSilent,
		})
		if err := messagesError(res.Errors); err != nil {
			return fmt.Errorf("failed to downlevel %s: %w", st.path, err)
		}
		st.contents = res.Code
		st.loader = api.LoaderJS

	case classify.StepBundle:
		if st.loader == api.LoaderNone {
			st.loader = cond(st.match.Rule.Kind == classify.KindStylesheet, api.LoaderCSS, api.LoaderJS)
		}

	default:
		return fmt.Errorf("unknown transform step %q", step)
	}

	return nil
}

// assetURL inlines data below the rule's limit, otherwise records the asset
// for emission and returns its public path.
func (p *Pipeline) assetURL(r *classify.Rule, path string, data []byte) string {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("rule", r.Name))

	if classify.ShouldInline(r, int64(len(data))) {
		m.AssetsInlinedTotal.Add(context.Background(), 1, attrs)
		return dataURL(path, data)
	}

	name := ExpandName(cond(r.Filename != "", r.Filename, defaultAssetName), path, data)

	p.emitMu.Lock()
	if prev, ok := p.emitted[name]; ok && !bytes.Equal(prev, data) {
		log.Warn().Str("asset", name).Str("file", path).Msg("Emitted asset name collides with a different file, last one wins")
	}
	p.emitted[name] = data
	p.emitMu.Unlock()

	m.AssetsEmittedTotal.Add(context.Background(), 1, attrs)
	return publicURL(p.desc.Output.PublicPath, name)
}

func (p *Pipeline) recordClassified(m classify.Match) {
	telemetry.GetMetrics().FilesClassifiedTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("rule", m.Rule.Name)))
}

func dataURL(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))

	typ, ok := fontTypes[ext]
	if !ok {
		typ = mime.TypeByExtension(ext)
	}
	if typ == "" {
		typ = "application/octet-stream"
	}
	if i := strings.Index(typ, ";"); i >= 0 {
		typ = typ[:i]
	}

	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// provideInjects returns one inject path per provided global, in a stable order.
func provideInjects(provide map[string]string) []string {
	keys := slices.Sorted(maps.Keys(provide))
	injects := make([]string, 0, len(keys))
	for _, k := range keys {
		injects = append(injects, provideImport+k)
	}
	return injects
}

// provideAlias is the export name of a provided global. Dotted globals such
// as window.jQuery cannot be exported directly, so they get an alias that a
// define maps back to the global.
func provideAlias(global string) (string, bool) {
	if identPattern.MatchString(global) {
		return global, false
	}
	return "__provide_" + strings.NewReplacer(".", "_", "$", "_").Replace(global), true
}

// provideDefines returns the defines mapping dotted globals to their alias.
func provideDefines(provide map[string]string) map[string]string {
	defines := map[string]string{}
	for k := range provide {
		if alias, ok := provideAlias(k); ok {
			defines[k] = alias
		}
	}
	return defines
}

// provideShim is the injected module for one provided global.
func provideShim(global, module string) string {
	alias, _ := provideAlias(global)
	return fmt.Sprintf("export { default as %s } from %s;\n", alias, strconv.Quote(module))
}

// loadProvide generates the shim for a provided global. A module that does
// not resolve yields an empty shim, leaving the global unbound.
func (p *Pipeline) loadProvide(build api.PluginBuild, global string) string {
	module, ok := p.desc.Provide[global]
	if !ok {
		return ""
	}

	res := build.Resolve(module, api.ResolveOptions{
		ResolveDir: p.desc.Context,
		Kind:       api.ResolveJSImportStatement,
	})
	if len(res.Errors) > 0 {
		log.Warn().Str("global", global).Str("module", module).Err(messagesError(res.Errors)).
			Msg("Provided module does not resolve, global left unbound")
		return ""
	}

	return provideShim(global, module)
}

func messagesError(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	texts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			texts = append(texts, fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		texts = append(texts, msg.Text)
	}
	return errors.New(strings.Join(texts, "; "))
}
