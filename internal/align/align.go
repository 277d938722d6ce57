// Package align computes the similarity transform that maps filter asset
// space onto detected face landmarks.
package align

import (
	"errors"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/detector"
)

// ErrDegenerateGeometry is returned when the landmark configuration
// cannot produce a well-conditioned transform.
var ErrDegenerateGeometry = errors.New("degenerate landmark geometry")

// Transform is a 2D similarity: scale, rotation and translation.
// The linear part is [A -B; B A] with A = s·cosθ, B = s·sinθ.
type Transform struct {
	A, B   float64
	Tx, Ty float64
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{A: 1}
}

// Apply maps a point from source to destination space.
func (t Transform) Apply(p detector.Point) detector.Point {
	x := float64(p.X)
	y := float64(p.Y)
	return detector.Point{
		X: float32(t.A*x - t.B*y + t.Tx),
		Y: float32(t.B*x + t.A*y + t.Ty),
	}
}

// Scale returns the uniform scale factor.
func (t Transform) Scale() float64 {
	return math.Hypot(t.A, t.B)
}

// Rotation returns the rotation angle in radians.
func (t Transform) Rotation() float64 {
	return math.Atan2(t.B, t.A)
}

// Invert returns the inverse transform. A zero-scale transform has no
// inverse and reports an error.
func (t Transform) Invert() (Transform, error) {
	det := t.A*t.A + t.B*t.B
	if det < 1e-12 {
		return Transform{}, fmt.Errorf("%w: zero-scale transform", ErrDegenerateGeometry)
	}
	ia := t.A / det
	ib := -t.B / det
	return Transform{
		A:  ia,
		B:  ib,
		Tx: -(ia*t.Tx - ib*t.Ty),
		Ty: -(ib*t.Tx + ia*t.Ty),
	}, nil
}

// Mat returns the 2x3 affine matrix for warping. The caller owns the Mat.
func (t Transform) Mat() gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, t.A)
	m.SetDoubleAt(0, 1, -t.B)
	m.SetDoubleAt(0, 2, t.Tx)
	m.SetDoubleAt(1, 0, t.B)
	m.SetDoubleAt(1, 1, t.A)
	m.SetDoubleAt(1, 2, t.Ty)
	return m
}

// Config bounds the solutions the engine will accept.
type Config struct {
	// MinScale and MaxScale bound the plausible asset-to-frame scale.
	// A single-frame spurious detection tends to produce a wildly
	// implausible scale; those solves are rejected.
	MinScale float64
	MaxScale float64
	// MinSpreadPx is the minimum RMS spread of the destination points
	// around their centroid. Below it the landmarks are effectively
	// coincident.
	MinSpreadPx float64
	// MinConditioning is the minimum ratio between the rotation
	// component norm and the total point energy; low values mean the
	// correspondences barely constrain the rotation.
	MinConditioning float64
}

// DefaultConfig returns bounds suitable for a webcam-distance face.
func DefaultConfig() Config {
	return Config{
		MinScale:        0.05,
		MaxScale:        20.0,
		MinSpreadPx:     2.0,
		MinConditioning: 0.1,
	}
}

// Engine solves for similarity transforms under the configured bounds.
type Engine struct {
	cfg Config
}

// NewEngine creates an alignment engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute solves the least-squares similarity mapping src points onto
// dst points. src holds the asset anchor coordinates, dst the matching
// frame-space landmarks; both must have the same length, at least 2.
func (e *Engine) Compute(src, dst []detector.Point) (Transform, error) {
	n := len(src)
	if n != len(dst) {
		return Transform{}, fmt.Errorf("anchor count mismatch: %d src, %d dst", n, len(dst))
	}
	if n < 2 {
		return Transform{}, fmt.Errorf("%w: need at least 2 correspondences, got %d", ErrDegenerateGeometry, n)
	}

	// Centroids.
	var srcCx, srcCy, dstCx, dstCy float64
	for i := 0; i < n; i++ {
		srcCx += float64(src[i].X)
		srcCy += float64(src[i].Y)
		dstCx += float64(dst[i].X)
		dstCy += float64(dst[i].Y)
	}
	srcCx /= float64(n)
	srcCy /= float64(n)
	dstCx /= float64(n)
	dstCy /= float64(n)

	// Centered point energies and cross-covariance terms.
	var srcNorm, dstNorm float64
	var a11, a12, a21, a22 float64
	for i := 0; i < n; i++ {
		sx := float64(src[i].X) - srcCx
		sy := float64(src[i].Y) - srcCy
		dx := float64(dst[i].X) - dstCx
		dy := float64(dst[i].Y) - dstCy

		srcNorm += sx*sx + sy*sy
		dstNorm += dx*dx + dy*dy

		a11 += sx * dx
		a12 += sx * dy
		a21 += sy * dx
		a22 += sy * dy
	}

	srcSpread := math.Sqrt(srcNorm / float64(n))
	dstSpread := math.Sqrt(dstNorm / float64(n))
	if srcSpread < 1e-9 {
		return Transform{}, fmt.Errorf("%w: coincident asset anchors", ErrDegenerateGeometry)
	}
	if dstSpread < e.cfg.MinSpreadPx {
		return Transform{}, fmt.Errorf("%w: landmark spread %.2fpx below %.2fpx", ErrDegenerateGeometry, dstSpread, e.cfg.MinSpreadPx)
	}

	// Closed-form rotation: cosθ ∝ a11+a22, sinθ ∝ a21−a12.
	rotNorm := math.Hypot(a11+a22, a21-a12)
	energy := math.Sqrt(srcNorm * dstNorm)
	if energy < 1e-12 || rotNorm/energy < e.cfg.MinConditioning {
		return Transform{}, fmt.Errorf("%w: ill-conditioned solve", ErrDegenerateGeometry)
	}
	cosT := (a11 + a22) / rotNorm
	sinT := (a21 - a12) / rotNorm

	scale := math.Sqrt(dstNorm / srcNorm)
	if scale < e.cfg.MinScale || scale > e.cfg.MaxScale {
		return Transform{}, fmt.Errorf("%w: scale %.3f outside [%.3f, %.3f]", ErrDegenerateGeometry, scale, e.cfg.MinScale, e.cfg.MaxScale)
	}

	t := Transform{
		A: scale * cosT,
		B: scale * sinT,
	}
	// Translation: dst centroid minus the transformed src centroid.
	t.Tx = dstCx - (t.A*srcCx - t.B*srcCy)
	t.Ty = dstCy - (t.B*srcCx + t.A*srcCy)

	return t, nil
}
