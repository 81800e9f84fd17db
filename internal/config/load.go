package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for descriptor files that are neither YAML nor HCL
var ErrUnsupportedFormat = errors.New("unsupported descriptor format")

// Load reads a descriptor from a .yaml, .yml or .hcl file. Unset fields take
// their default, and relative paths resolve against the file's directory.
func Load(path string) (*Descriptor, error) {
	var (
		d   Descriptor
		err error
	)

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = decodeYAML(path, &d)
	case ".hcl":
		err = decodeHCL(path, &d)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	d.applyDefaults()

	if err := d.Resolve(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// LoadDefault returns the built-in descriptor resolved against base.
func LoadDefault(base string) (*Descriptor, error) {
	d := Default()
	if err := d.Resolve(base); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeYAML(path string, d *Descriptor) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read descriptor: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(d); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode YAML descriptor %s: %w", path, err)
	}
	return nil
}

func decodeHCL(path string, d *Descriptor) error {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL descriptor %s: %w", path, diags)
	}

	diags = gohcl.DecodeBody(file.Body, nil, d)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL descriptor %s: %w", path, diags)
	}

	// gohcl allocates empty slices for absent blocks; absent means default
	if len(d.Entries) == 0 {
		d.Entries = nil
	}
	if len(d.Rules) == 0 {
		d.Rules = nil
	}
	if len(d.Copy) == 0 {
		d.Copy = nil
	}
	return nil
}
