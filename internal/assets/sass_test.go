package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSassCompiler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_colors.scss"), []byte("$primary: #336699;\n"), 0o600))

	src := []byte(`@import "colors";

.nav {
  .item { color: $primary; }
}
`)

	css, err := NewSassCompiler(nil).Compile(filepath.Join(dir, "main.scss"), src)
	require.NoError(t, err)
	require.Contains(t, string(css), ".nav .item")
	require.Contains(t, string(css), "#336699")
}

func TestSassCompilerIncludePaths(t *testing.T) {
	vendor := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(vendor, "_grid.scss"), []byte(".row { display: flex; }\n"), 0o600))

	css, err := NewSassCompiler([]string{vendor}).Compile(filepath.Join(t.TempDir(), "main.scss"), []byte(`@import "grid";`))
	require.NoError(t, err)
	require.Contains(t, string(css), ".row")
}

func TestSassCompilerSyntaxError(t *testing.T) {
	_, err := NewSassCompiler(nil).Compile("broken.scss", []byte(".a { color: $missing; }"))
	require.ErrorContains(t, err, "broken.scss")
}
