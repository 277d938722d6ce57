package filter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/dudu/facefilter/internal/detector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AnchorDef is one named anchor point in asset coordinates.
type AnchorDef struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Entry describes one filter in the manifest.
type Entry struct {
	Name    string               `json:"name" validate:"required"`
	Path    string               `json:"path" validate:"required"`
	Z       int                  `json:"z"`
	Enabled *bool                `json:"enabled"`
	Anchors map[string]AnchorDef `json:"anchors" validate:"required,min=2"`
}

// Manifest is the configuration artifact binding filter assets to the
// detector's landmark names. Keeping the anchor-index contract here
// means no landmark index is hard-coded in the pipeline.
type Manifest struct {
	Filters []Entry `json:"filters" validate:"required,min=1,dive"`
}

// LoadManifest parses and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %v", ErrAssetLoad, path, err)
	}
	return ParseManifest(data)
}

// ParseManifest parses and validates raw manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: invalid manifest JSON: %v", ErrAssetLoad, err)
	}

	if err := validator.New().Struct(&m); err != nil {
		return nil, fmt.Errorf("%w: invalid manifest: %v", ErrAssetLoad, err)
	}

	for _, entry := range m.Filters {
		for name := range entry.Anchors {
			if _, known := (detector.Landmarks{}).ByName(detector.AnchorName(name)); !known {
				return nil, fmt.Errorf("%w: filter %q: unknown anchor name %q", ErrAssetLoad, entry.Name, name)
			}
		}
	}

	return &m, nil
}

// Build loads every asset the manifest names and assembles a Manager.
// Relative asset paths resolve against baseDir.
func (m *Manifest) Build(baseDir string) (*Manager, error) {
	mgr := NewManager()
	for _, entry := range m.Filters {
		anchors := make(map[detector.AnchorName]detector.Point, len(entry.Anchors))
		for name, def := range entry.Anchors {
			anchors[detector.AnchorName(name)] = detector.Point{X: def.X, Y: def.Y}
		}

		path := entry.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		asset, err := LoadAsset(entry.Name, path, anchors)
		if err != nil {
			mgr.Close()
			return nil, err
		}

		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		mgr.Add(asset, enabled, entry.Z)
	}
	return mgr, nil
}
