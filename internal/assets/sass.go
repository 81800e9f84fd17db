package assets

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bep/golibsass/libsass"
)

// StyleCompiler compiles a stylesheet dialect to plain CSS.
type StyleCompiler interface {
	Compile(path string, src []byte) ([]byte, error)
}

// SassCompiler compiles SCSS with libsass.
type SassCompiler struct {
	includePaths []string
	mu           sync.Mutex
}

// NewSassCompiler returns a compiler resolving imports from the source file's
// directory first, then from includePaths.
func NewSassCompiler(includePaths []string) *SassCompiler {
	return &SassCompiler{includePaths: includePaths}
}

func (s *SassCompiler) Compile(path string, src []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transpiler, err := libsass.New(libsass.Options{
		IncludePaths: append([]string{filepath.Dir(path)}, s.includePaths...),
		OutputStyle:  libsass.ExpandedStyle,
		Precision:    8,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sass transpiler: %w", err)
	}

	res, err := transpiler.Execute(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}

	return []byte(res.CSS), nil
}
