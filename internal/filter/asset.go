// Package filter manages overlay assets and the manifest that binds
// their anchor points to detector landmarks.
package filter

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/detector"
)

// ErrAssetLoad is returned for any startup-time asset problem: missing
// file, unusable pixel format, or an unusable anchor definition.
var ErrAssetLoad = errors.New("filter asset load failed")

// Asset is an immutable overlay image with alpha and named anchor
// points in its own coordinate space. Loaded once at startup and shared
// read-only across frames.
type Asset struct {
	name    string
	image   gocv.Mat // BGRA
	anchors map[detector.AnchorName]detector.Point
}

// LoadAsset reads a PNG and pairs it with its anchor definitions.
// Images without an alpha channel are promoted to fully opaque BGRA.
// At least two anchors with canonical names are required for a
// similarity solve.
func LoadAsset(name, path string, anchors map[detector.AnchorName]detector.Point) (*Asset, error) {
	img := gocv.IMRead(path, gocv.IMReadUnchanged)
	if img.Empty() {
		return nil, fmt.Errorf("%w: cannot read %s", ErrAssetLoad, path)
	}

	switch ch := img.Channels(); ch {
	case 4:
	case 3:
		bgra := gocv.NewMat()
		gocv.CvtColor(img, &bgra, gocv.ColorBGRToBGRA)
		img.Close()
		img = bgra
	default:
		img.Close()
		return nil, fmt.Errorf("%w: %s has %d channels, want 3 or 4", ErrAssetLoad, path, ch)
	}

	asset, err := NewAsset(name, img, anchors)
	if err != nil {
		img.Close()
		return nil, err
	}
	return asset, nil
}

// NewAsset wraps an already-decoded BGRA image. The asset takes
// ownership of the Mat.
func NewAsset(name string, img gocv.Mat, anchors map[detector.AnchorName]detector.Point) (*Asset, error) {
	valid := make(map[detector.AnchorName]detector.Point, len(anchors))
	for anchorName, pt := range anchors {
		if _, known := (detector.Landmarks{}).ByName(anchorName); !known {
			return nil, fmt.Errorf("%w: %s: unknown anchor name %q", ErrAssetLoad, name, anchorName)
		}
		valid[anchorName] = pt
	}
	if len(valid) < 2 {
		return nil, fmt.Errorf("%w: %s: %d anchors, need at least 2", ErrAssetLoad, name, len(valid))
	}

	return &Asset{name: name, image: img, anchors: valid}, nil
}

// Name returns the asset's manifest name.
func (a *Asset) Name() string {
	return a.name
}

// Image returns the BGRA pixel buffer. Callers must treat it as read-only.
func (a *Asset) Image() gocv.Mat {
	return a.image
}

// Anchors returns the asset-space anchor map.
func (a *Asset) Anchors() map[detector.AnchorName]detector.Point {
	return a.anchors
}

// Correspondences pairs asset anchors with the matching frame-space
// landmarks, in canonical anchor order so the pairing is deterministic.
func (a *Asset) Correspondences(lms detector.Landmarks) (src, dst []detector.Point) {
	for _, name := range detector.AnchorNames {
		assetPt, ok := a.anchors[name]
		if !ok {
			continue
		}
		lmPt, _ := lms.ByName(name)
		src = append(src, assetPt)
		dst = append(dst, lmPt)
	}
	return src, dst
}

// Close releases the pixel buffer.
func (a *Asset) Close() error {
	return a.image.Close()
}
