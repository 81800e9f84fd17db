package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// ErrInvalidConfig is returned when a descriptor fails validation
var ErrInvalidConfig = errors.New("invalid build descriptor")

// Transform kinds understood by the pipeline
const (
	UseEmit       = "emit"
	UseInline     = "inline"
	UseStylesheet = "stylesheet"
	UseScript     = "script"
)

// Copy rule destination types
const (
	ToTypeDir  = "dir"
	ToTypeFile = "file"
)

// Descriptor is the full build pipeline description consumed once per build.
type Descriptor struct {
	// Context is the source root, entry and rule paths are relative to it
	Context string `yaml:"context" hcl:"context,optional"`
	// Dest is the destination root for every emitted file
	Dest string `yaml:"dest" hcl:"dest,optional"`

	Entries []Entry    `yaml:"entries" hcl:"entry,block"`
	Output  *Output    `yaml:"output" hcl:"output,block"`
	Rules   []Rule     `yaml:"rules" hcl:"rule,block"`
	Copy    []CopyRule `yaml:"copy" hcl:"copy,block"`

	// Define maps expressions to literal JS text substituted at build time
	Define map[string]string `yaml:"define" hcl:"define,optional"`
	// Provide maps global identifiers to the module injected for them
	Provide map[string]string `yaml:"provide" hcl:"provide,optional"`

	// Browsers is the browser support policy, e.g. "chrome58" or "safari11"
	Browsers []string `yaml:"browsers" hcl:"browsers,optional"`
	// Target is the language level scripts are downleveled to
	Target string `yaml:"target" hcl:"target,optional"`

	SassIncludePaths []string `yaml:"sassIncludePaths" hcl:"sass_include_paths,optional"`

	Minify      *bool `yaml:"minify" hcl:"minify,optional"`
	SourceMap   *bool `yaml:"sourceMap" hcl:"source_map,optional"`
	DropConsole bool  `yaml:"dropConsole" hcl:"drop_console,optional"`
	Compress    bool  `yaml:"compress" hcl:"compress,optional"`

	// MetafilePath and ManifestPath are relative to Dest
	MetafilePath string `yaml:"metafile" hcl:"metafile,optional"`
	ManifestPath string `yaml:"manifest" hcl:"manifest,optional"`
}

// Entry is a named root of the module graph.
type Entry struct {
	Name   string `yaml:"name" hcl:"name,label"`
	Import string `yaml:"import" hcl:"import"`
}

// Output holds the naming templates of emitted bundles.
type Output struct {
	Scripts     string `yaml:"scripts" hcl:"scripts,optional"`
	Chunks      string `yaml:"chunks" hcl:"chunks,optional"`
	Stylesheets string `yaml:"stylesheets" hcl:"stylesheets,optional"`
	PublicPath  string `yaml:"publicPath" hcl:"public_path,optional"`
}

// Rule selects a transform for files matching any of its patterns.
type Rule struct {
	Name string   `yaml:"name" hcl:"name,label"`
	Test []string `yaml:"test" hcl:"test"`
	// Include restricts the rule to a directory, relative to Context
	Include  string `yaml:"include" hcl:"include,optional"`
	Use      string `yaml:"use" hcl:"use"`
	Limit    int64  `yaml:"limit" hcl:"limit,optional"`
	Filename string `yaml:"filename" hcl:"filename,optional"`
}

// CopyRule copies files verbatim from Context to Dest.
type CopyRule struct {
	From   string   `yaml:"from" hcl:"from"`
	To     string   `yaml:"to" hcl:"to,optional"`
	ToType string   `yaml:"toType" hcl:"to_type,optional"`
	Ignore []string `yaml:"ignore" hcl:"ignore,optional"`
}

// ShouldMinify reports whether output is minified, defaulting to true.
func (d *Descriptor) ShouldMinify() bool { return d.Minify == nil || *d.Minify }

// ShouldSourceMap reports whether source maps are emitted, defaulting to true.
func (d *Descriptor) ShouldSourceMap() bool { return d.SourceMap == nil || *d.SourceMap }

// IncludeRoot returns the absolute include directory of a rule.
func (d *Descriptor) IncludeRoot(r Rule) string {
	if r.Include == "" {
		return d.Context
	}
	if filepath.IsAbs(r.Include) {
		return filepath.Clean(r.Include)
	}
	return filepath.Join(d.Context, r.Include)
}

// Resolve makes Context and Dest absolute against base.
func (d *Descriptor) Resolve(base string) error {
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	d.Context = resolvePath(abs, d.Context)
	d.Dest = resolvePath(abs, d.Dest)
	return nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Validate checks the descriptor for structural problems.
func (d *Descriptor) Validate() error {
	var errs []error

	if d.Context == "" {
		errs = append(errs, errors.New("context is required"))
	}
	if d.Dest == "" {
		errs = append(errs, errors.New("dest is required"))
	}
	if len(d.Entries) == 0 {
		errs = append(errs, errors.New("at least one entry is required"))
	}

	seen := map[string]bool{}
	for _, e := range d.Entries {
		switch {
		case e.Name == "":
			errs = append(errs, fmt.Errorf("entry %q: name is required", e.Import))
		case seen[e.Name]:
			errs = append(errs, fmt.Errorf("entry %q: duplicate name", e.Name))
		case e.Import == "":
			errs = append(errs, fmt.Errorf("entry %q: import is required", e.Name))
		}
		seen[e.Name] = true
	}

	if d.Output == nil {
		errs = append(errs, errors.New("output is required"))
	} else {
		if !strings.Contains(d.Output.Scripts, "[name]") || !strings.HasSuffix(d.Output.Scripts, ".js") {
			errs = append(errs, fmt.Errorf("output scripts %q must contain [name] and end in .js", d.Output.Scripts))
		}
		if !strings.Contains(d.Output.Stylesheets, "[name]") || !strings.HasSuffix(d.Output.Stylesheets, ".css") {
			errs = append(errs, fmt.Errorf("output stylesheets %q must contain [name] and end in .css", d.Output.Stylesheets))
		}
		if d.Output.Chunks == "" {
			errs = append(errs, errors.New("output chunks is required"))
		}
	}

	if len(d.Rules) == 0 {
		errs = append(errs, errors.New("at least one rule is required"))
	}
	uses := []string{UseEmit, UseInline, UseStylesheet, UseScript}
	for i, r := range d.Rules {
		if len(r.Test) == 0 {
			errs = append(errs, fmt.Errorf("rule %d (%s): test is required", i, r.Name))
		}
		if !slices.Contains(uses, r.Use) {
			errs = append(errs, fmt.Errorf("rule %d (%s): unknown use %q", i, r.Name, r.Use))
		}
		if r.Use == UseInline && r.Limit <= 0 {
			errs = append(errs, fmt.Errorf("rule %d (%s): inline requires a positive limit", i, r.Name))
		}
	}

	for i, c := range d.Copy {
		if c.From == "" {
			errs = append(errs, fmt.Errorf("copy %d: from is required", i))
		}
		if c.ToType != "" && c.ToType != ToTypeDir && c.ToType != ToTypeFile {
			errs = append(errs, fmt.Errorf("copy %d: unknown toType %q", i, c.ToType))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
