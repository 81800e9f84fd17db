package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/config"
)

// recordingCompiler stands in for libsass and returns fixed CSS
type recordingCompiler struct {
	mu     sync.Mutex
	inputs map[string]string
	css    string
}

func (r *recordingCompiler) Compile(path string, src []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inputs == nil {
		r.inputs = map[string]string{}
	}
	r.inputs[filepath.Base(path)] = string(src)
	return []byte(r.css), nil
}

const fixtureCSS = `.btn {
  appearance: none;
  background: url(../images/big.png);
}
.icon {
  background: url(../images/small.png);
}
@font-face {
  font-family: icons;
  src: url(../fonts/icons.woff);
}
`

func writeFixture(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o600))
	}
}

func readOutput(t *testing.T, dest, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func fixtureDescriptor(t *testing.T) *config.Descriptor {
	t.Helper()

	base := t.TempDir()
	desc := config.Default()
	require.NoError(t, desc.Resolve(base))

	minify := false
	desc.Minify = &minify
	desc.Provide = nil
	desc.Copy = []config.CopyRule{
		{From: "assets/images/", To: "assets/images/"},
	}

	writeFixture(t, desc.Context, map[string][]byte{
		"assets/js/app.js": []byte(`import "../scss/main.scss";
import { greet } from "./shared.js";
import logo from "../images/small.png";

const settings = { theme: { name: "dark" } };
console.log(greet("main"), logo, settings.theme?.name, process.env.NODE_ENV);
`),
		"assets/js/styleguide.js": []byte(`import { greet } from "./shared.js";

console.log(greet("styleguide"));
`),
		"assets/js/shared.js":     []byte("export function greet(name) {\n  return \"shared-marker \" + name;\n}\n"),
		"assets/scss/main.scss":   []byte("$primary: #336699;\n.btn { color: $primary; }\n"),
		"assets/images/small.png": bytes.Repeat([]byte{0x89}, 100),
		"assets/images/big.png":   bytes.Repeat([]byte{0x42}, 12000),
		"assets/fonts/icons.woff": bytes.Repeat([]byte{0x77}, 50),
	})

	return desc
}

func TestBuild(t *testing.T) {
	desc := fixtureDescriptor(t)
	compiler := &recordingCompiler{css: fixtureCSS}

	p, err := New(desc, WithStyleCompiler(compiler))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	main := readOutput(t, desc.Dest, "assets/js/main.bundle.js")
	styleguide := readOutput(t, desc.Dest, "assets/js/styleguide.bundle.js")

	// defines are substituted at build time
	require.Contains(t, main, `"production"`)
	require.NotContains(t, main, "process.env.NODE_ENV")

	// scripts are downleveled before inclusion
	require.NotContains(t, main, "?.")

	// small images imported from scripts are inlined
	require.Contains(t, main, "data:image/png;base64,")

	// styles are extracted, never bundled into scripts
	require.NotContains(t, main, "appearance")
	require.NotContains(t, main, "shared-marker")
	require.NotContains(t, styleguide, "shared-marker")

	css := readOutput(t, desc.Dest, "assets/css/main.bundle.css")
	require.Contains(t, css, "-webkit-appearance")
	require.Contains(t, css, "url(/assets/fonts/icons.woff)")
	require.Contains(t, css, "url(/assets/images/big-")
	require.Contains(t, css, "url(data:image/png;base64,")
	require.Contains(t, css, "sourceMappingURL=main.bundle.css.map")
	require.FileExists(t, filepath.Join(desc.Dest, "assets", "css", "main.bundle.css.map"))
	require.NoFileExists(t, filepath.Join(desc.Dest, "assets", "js", "main.bundle.css"))
	require.NoFileExists(t, filepath.Join(desc.Dest, "assets", "css", "styleguide.bundle.css"))

	// fonts are emitted whatever their size
	require.Equal(t, strings.Repeat("w", 50), readOutput(t, desc.Dest, "assets/fonts/icons.woff"))

	// the sass stage received the raw source
	require.Contains(t, compiler.inputs["main.scss"], "$primary")

	scripts, entrypoint, err := p.LoadScripts("main")
	require.NoError(t, err)
	require.Equal(t, "/assets/js/main.bundle.js", entrypoint)
	require.Len(t, scripts, 2)
	require.Equal(t, entrypoint, scripts[0])
	require.True(t, strings.HasPrefix(scripts[1], "/assets/js/common-"), scripts[1])

	shared := readOutput(t, desc.Dest, strings.TrimPrefix(scripts[1], "/"))
	require.Contains(t, shared, "shared-marker")

	scripts, _, err = p.LoadScripts("styleguide")
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	stylesheet, ok, err := p.Stylesheet("main")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/assets/css/main.bundle.css", stylesheet)

	_, ok, err = p.Stylesheet("styleguide")
	require.NoError(t, err)
	require.False(t, ok)

	manifest, err := ReadManifest(filepath.Join(desc.Dest, "manifest.json"))
	require.NoError(t, err)
	require.NotEmpty(t, manifest.BuildID)
	require.Equal(t, "/assets/css/main.bundle.css", manifest.Entries["main"].Stylesheet)
	require.Equal(t, scripts, manifest.Entries["styleguide"].Scripts)
	require.Contains(t, manifest.Files, "assets/js/main.bundle.js")
	require.Contains(t, manifest.Files, "assets/images/big.png")
	require.Equal(t, Checksum(bytes.Repeat([]byte{0x77}, 50)), manifest.Files["assets/fonts/icons.woff"].Checksum)

	require.FileExists(t, filepath.Join(desc.Dest, "meta.json"))
}

func TestBuildNoMatchingRule(t *testing.T) {
	desc := fixtureDescriptor(t)
	writeFixture(t, desc.Context, map[string][]byte{
		"assets/js/app.js":    []byte("import notes from \"./notes.txt\";\nconsole.log(notes);\n"),
		"assets/js/notes.txt": []byte("not classified"),
	})

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{}))
	require.NoError(t, err)

	err = p.Build(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)
	require.Contains(t, err.Error(), "no transform rule matches file")

	_, _, err = p.LoadScripts("main")
	require.ErrorIs(t, err, ErrNotBuilt)
}

func TestBuildInlineThreshold(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil
	writeFixture(t, desc.Context, map[string][]byte{
		"assets/js/app.js": []byte(`import below from "../images/below.jpg";
import at from "../images/at.jpg";
console.log(below, at);
`),
		"assets/images/below.jpg": bytes.Repeat([]byte{1}, 9999),
		"assets/images/at.jpg":    bytes.Repeat([]byte{2}, 10000),
	})

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	main := readOutput(t, desc.Dest, "assets/js/main.bundle.js")
	require.Contains(t, main, "data:image/jpeg;base64,")

	name := ExpandName("assets/images/[name]-[hash].[ext]", "at.jpg", bytes.Repeat([]byte{2}, 10000))
	require.Contains(t, main, "/"+name)
	require.FileExists(t, filepath.Join(desc.Dest, filepath.FromSlash(name)))

	below := ExpandName("assets/images/[name]-[hash].[ext]", "below.jpg", bytes.Repeat([]byte{1}, 9999))
	require.NoFileExists(t, filepath.Join(desc.Dest, filepath.FromSlash(below)))
}

func TestBuildProvide(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil
	desc.Provide = map[string]string{"$": "./assets/vendor/dollar.js"}
	writeFixture(t, desc.Context, map[string][]byte{
		"assets/js/app.js":        []byte("console.log($(\"#app\"));\n"),
		"assets/vendor/dollar.js": []byte("export default function dollar(sel) {\n  return \"dollar-marker \" + sel;\n}\n"),
	})

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	scripts, _, err := p.LoadScripts("main")
	require.NoError(t, err)

	var all strings.Builder
	for _, s := range scripts {
		all.WriteString(readOutput(t, desc.Dest, strings.TrimPrefix(s, "/")))
	}
	require.Contains(t, all.String(), "dollar-marker")
}

func TestBuildCompress(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil
	desc.Compress = true
	writeFixture(t, desc.Context, map[string][]byte{
		"assets/js/app.js": []byte("console.log(\"" + strings.Repeat("compressible ", 200) + "\");\n"),
	})

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	plain := readOutput(t, desc.Dest, "assets/js/main.bundle.js")

	gz, err := os.Open(filepath.Join(desc.Dest, "assets", "js", "main.bundle.js.gz"))
	require.NoError(t, err)
	defer gz.Close()
	gr, err := gzip.NewReader(gz)
	require.NoError(t, err)
	var unzipped bytes.Buffer
	_, err = unzipped.ReadFrom(gr)
	require.NoError(t, err)
	require.Equal(t, plain, unzipped.String())

	zst, err := os.ReadFile(filepath.Join(desc.Dest, "assets", "js", "main.bundle.js.zst"))
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	out, err := dec.DecodeAll(zst, nil)
	require.NoError(t, err)
	require.Equal(t, plain, string(out))

	// small files are left alone
	require.NoFileExists(t, filepath.Join(desc.Dest, "assets", "js", "styleguide.bundle.js.gz"))
}

func TestBuildCanceled(t *testing.T) {
	desc := fixtureDescriptor(t)

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Build(ctx), context.Canceled)
}

func TestLoadScriptsUnknownEntry(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{css: fixtureCSS}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	_, _, err = p.LoadScripts("admin")
	require.ErrorIs(t, err, ErrUnknownEntry)
}

func scriptsContent(t *testing.T, p *Pipeline, dest, entry string) string {
	t.Helper()

	scripts, _, err := p.LoadScripts(entry)
	require.NoError(t, err)

	var all strings.Builder
	for _, s := range scripts {
		all.WriteString(readOutput(t, dest, strings.TrimPrefix(s, "/")))
	}
	return all.String()
}

func TestBuildDefaultProvideWithoutModule(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil
	desc.Provide = config.Default().Provide
	writeFixture(t, desc.Context, map[string][]byte{
		"assets/js/app.js": []byte("console.log(1);\n"),
	})

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	require.NotContains(t, scriptsContent(t, p, desc.Dest, "main"), "jquery")
}

func TestBuildProvideOnlyWhereUsed(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil
	desc.Provide = config.Default().Provide
	writeFixture(t, desc.Context, map[string][]byte{
		"assets/js/app.js":                 []byte("console.log($(\"#app\"), window.jQuery);\n"),
		"assets/js/styleguide.js":          []byte("console.log(\"styleguide\");\n"),
		"node_modules/jquery/package.json": []byte(`{"name": "jquery", "main": "jquery.js"}`),
		"node_modules/jquery/jquery.js":    []byte("module.exports = function jq(sel) {\n  return \"jquery-marker \" + sel;\n};\n"),
	})

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	require.Contains(t, scriptsContent(t, p, desc.Dest, "main"), "jquery-marker")
	require.NotContains(t, scriptsContent(t, p, desc.Dest, "styleguide"), "jquery-marker")
}

func TestBuildStylesheetEntry(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil
	desc.Entries = append(desc.Entries, config.Entry{Name: "theme", Import: "./assets/scss/theme.scss"})
	writeFixture(t, desc.Context, map[string][]byte{
		"assets/scss/theme.scss": []byte("$accent: #ff6600;\n"),
	})

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{css: fixtureCSS}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	require.Contains(t, readOutput(t, desc.Dest, "assets/css/theme.bundle.css"), "-webkit-appearance")
	require.NoFileExists(t, filepath.Join(desc.Dest, "assets", "js", "theme.bundle.css"))

	scripts, entrypoint, err := p.LoadScripts("theme")
	require.NoError(t, err)
	require.Empty(t, scripts)
	require.Empty(t, entrypoint)

	stylesheet, ok, err := p.Stylesheet("theme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/assets/css/theme.bundle.css", stylesheet)

	manifest, err := ReadManifest(filepath.Join(desc.Dest, "manifest.json"))
	require.NoError(t, err)
	require.Equal(t, "/assets/css/theme.bundle.css", manifest.Entries["theme"].Stylesheet)
	require.Empty(t, manifest.Entries["theme"].Scripts)
	require.Equal(t, "/assets/css/main.bundle.css", manifest.Entries["main"].Stylesheet)
}

func TestBuildWrittenUnique(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = []config.CopyRule{
		{From: "assets/fonts/", To: "assets/fonts/"},
	}

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{css: fixtureCSS}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	count := 0
	for _, f := range p.Written() {
		if f == "assets/fonts/icons.woff" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestBuildFailureLeavesNoResults(t *testing.T) {
	desc := fixtureDescriptor(t)
	desc.Copy = nil

	p, err := New(desc, WithStyleCompiler(&recordingCompiler{css: fixtureCSS}))
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background()))

	// the manifest cannot replace a directory
	desc.ManifestPath = "assets/js"
	require.Error(t, p.Build(context.Background()))

	_, _, err = p.LoadScripts("main")
	require.ErrorIs(t, err, ErrNotBuilt)
	require.Empty(t, p.Written())
}
