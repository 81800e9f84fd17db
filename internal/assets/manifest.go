package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Manifest describes the files of one build
type Manifest struct {
	BuildID string                   `json:"buildId"`
	BuiltAt time.Time                `json:"builtAt"`
	Entries map[string]ManifestEntry `json:"entries"`
	Files   map[string]ManifestFile  `json:"files"`
}

type ManifestEntry struct {
	// Scripts lists the entry bundle first, then the shared chunks it imports
	Scripts    []string `json:"scripts"`
	Stylesheet string   `json:"stylesheet,omitempty"`
}

type ManifestFile struct {
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

func (p *Pipeline) writeManifest(md *BuildMetadata, stylesheets map[string]string, written []string) error {
	manifest := Manifest{
		BuildID: uuid.NewString(),
		BuiltAt: time.Now().UTC(),
		Entries: make(map[string]ManifestEntry, len(p.desc.Entries)),
		Files:   make(map[string]ManifestFile, len(written)),
	}

	for _, e := range p.desc.Entries {
		scripts, _, err := p.scriptsFor(md, e.Name)
		if err != nil {
			return err
		}
		entry := ManifestEntry{Scripts: scripts}
		if rel, ok := stylesheets[e.Name]; ok {
			entry.Stylesheet = publicURL(p.desc.Output.PublicPath, rel)
		}
		manifest.Entries[e.Name] = entry
	}

	for _, rel := range written {
		data, err := os.ReadFile(filepath.Join(p.desc.Dest, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("failed to read %s for manifest: %w", rel, err)
		}
		manifest.Files[rel] = ManifestFile{Size: int64(len(data)), Checksum: Checksum(data)}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	return p.writeFile(p.desc.ManifestPath, data)
}

// ReadManifest loads a manifest written by a previous build
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}
