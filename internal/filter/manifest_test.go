package filter

import (
	"errors"
	"testing"
)

func TestParseManifestValid(t *testing.T) {
	data := []byte(`{
		"filters": [
			{
				"name": "mustache",
				"path": "assets/mustache.png",
				"z": 1,
				"anchors": {
					"nose":        {"x": 100, "y": 20},
					"left_mouth":  {"x": 40,  "y": 70},
					"right_mouth": {"x": 160, "y": 70}
				}
			},
			{
				"name": "red_dot",
				"path": "assets/red_dot.png",
				"z": 2,
				"enabled": false,
				"anchors": {
					"left_eye":  {"x": 10, "y": 10},
					"right_eye": {"x": 30, "y": 10}
				}
			}
		]
	}`)

	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if len(m.Filters) != 2 {
		t.Fatalf("parsed %d filters, want 2", len(m.Filters))
	}
	if m.Filters[0].Name != "mustache" || m.Filters[0].Z != 1 {
		t.Errorf("first filter = %q z=%d, want mustache z=1", m.Filters[0].Name, m.Filters[0].Z)
	}
	if m.Filters[1].Enabled == nil || *m.Filters[1].Enabled {
		t.Error("red_dot should parse as explicitly disabled")
	}
	if got := m.Filters[0].Anchors["nose"]; got.X != 100 || got.Y != 20 {
		t.Errorf("nose anchor = (%v, %v), want (100, 20)", got.X, got.Y)
	}
}

func TestParseManifestRejects(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty filter list", `{"filters": []}`},
		{"missing name", `{"filters": [{"path": "a.png", "anchors": {"left_eye": {"x":1,"y":1}, "right_eye": {"x":2,"y":1}}}]}`},
		{"missing path", `{"filters": [{"name": "a", "anchors": {"left_eye": {"x":1,"y":1}, "right_eye": {"x":2,"y":1}}}]}`},
		{"single anchor", `{"filters": [{"name": "a", "path": "a.png", "anchors": {"nose": {"x":1,"y":1}}}]}`},
		{"unknown anchor name", `{"filters": [{"name": "a", "path": "a.png", "anchors": {"chin": {"x":1,"y":1}, "nose": {"x":2,"y":2}}}]}`},
		{"not json", `{"filters": [`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tc.data))
			if !errors.Is(err, ErrAssetLoad) {
				t.Fatalf("ParseManifest() = %v, want ErrAssetLoad", err)
			}
		})
	}
}
