package assets

import (
	"errors"
	"fmt"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpipe/internal/classify"
	"github.com/wolfeidau/assetpipe/internal/config"
)

var (
	// ErrBuildFailed indicates esbuild reported errors
	ErrBuildFailed = errors.New("esbuild failed with errors")
	// ErrNotBuilt indicates metadata was requested before a build
	ErrNotBuilt = errors.New("assets not built yet, call Build() first")
	// ErrUnknownEntry indicates an entry name that is not in the descriptor
	ErrUnknownEntry = errors.New("entrypoint not found in metadata")
)

// BuildMetadata is the subset of the esbuild metafile the pipeline reads.
type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int          `json:"bytes"`
}

type ImportInfo struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// Pipeline manages the asset build process and script loading
type Pipeline struct {
	desc       *config.Descriptor
	classifier *classify.Classifier
	compiler   StyleCompiler
	engines    []api.Engine
	target     api.Target

	mu sync.RWMutex
	// metadata is keyed by output path relative to Dest
	metadata *BuildMetadata
	// stylesheets maps entry name to its relocated stylesheet
	stylesheets map[string]string
	written     []string

	// emitted collects assets written by the classification plugin during a build
	emitMu  sync.Mutex
	emitted map[string][]byte
}

// New creates a new asset pipeline for the given descriptor
func New(desc *config.Descriptor, opts ...Option) (*Pipeline, error) {
	classifier, err := classify.NewFromDescriptor(desc)
	if err != nil {
		return nil, err
	}

	engines, err := ParseBrowsers(desc.Browsers)
	if err != nil {
		return nil, err
	}

	target, err := ParseTarget(desc.Target)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		desc:       desc,
		classifier: classifier,
		engines:    engines,
		target:     target,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.compiler == nil {
		p.compiler = NewSassCompiler(desc.SassIncludePaths)
	}

	return p, nil
}

// Classifier returns the classifier the pipeline applies while bundling.
func (p *Pipeline) Classifier() *classify.Classifier {
	return p.classifier
}

// Written returns the paths, relative to Dest, written by the last build.
func (p *Pipeline) Written() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]string(nil), p.written...)
}

func (p *Pipeline) entry(name string) (config.Entry, error) {
	for _, e := range p.desc.Entries {
		if e.Name == name {
			return e, nil
		}
	}
	return config.Entry{}, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
}
