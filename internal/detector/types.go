package detector

import (
	"context"
	"math"

	"gocv.io/x/gocv"
)

// Point represents a 2D point in frame-pixel coordinates.
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box.
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// AnchorName identifies one of the five canonical landmarks. Filter
// manifests reference landmarks by these names, so the mapping between
// asset anchors and detector output lives in configuration rather than
// in index constants scattered through the pipeline.
type AnchorName string

const (
	AnchorLeftEye    AnchorName = "left_eye"
	AnchorRightEye   AnchorName = "right_eye"
	AnchorNose       AnchorName = "nose"
	AnchorLeftMouth  AnchorName = "left_mouth"
	AnchorRightMouth AnchorName = "right_mouth"
)

// AnchorNames lists the canonical names in landmark index order.
var AnchorNames = []AnchorName{
	AnchorLeftEye,
	AnchorRightEye,
	AnchorNose,
	AnchorLeftMouth,
	AnchorRightMouth,
}

// Landmarks represents the 5 facial landmark points every backend must
// produce. A detection is either absent or carries all five points.
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// ByName returns the landmark for a canonical anchor name.
func (l Landmarks) ByName(name AnchorName) (Point, bool) {
	switch name {
	case AnchorLeftEye:
		return l.LeftEye, true
	case AnchorRightEye:
		return l.RightEye, true
	case AnchorNose:
		return l.Nose, true
	case AnchorLeftMouth:
		return l.LeftMouth, true
	case AnchorRightMouth:
		return l.RightMouth, true
	}
	return Point{}, false
}

// EyeDistance returns the inter-eye distance.
func (l Landmarks) EyeDistance() float32 {
	dx := float64(l.RightEye.X - l.LeftEye.X)
	dy := float64(l.RightEye.Y - l.LeftEye.Y)
	return float32(math.Hypot(dx, dy))
}

// Face represents a detected face.
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks
	Score       float32
}

// Detector finds faces and their landmarks in a frame. Implementations
// are synchronous with variable latency; callers enforce deadlines via ctx.
type Detector interface {
	Detect(ctx context.Context, img gocv.Mat) ([]Face, error)
	Close() error
}

// Primary returns the highest-scoring face, or false when the slice is empty.
func Primary(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best, true
}
