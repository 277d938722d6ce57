package align

import (
	"errors"
	"math"
	"testing"

	"github.com/dudu/facefilter/internal/detector"
)

func almostEqual(a, b float32, tol float64) bool {
	return math.Abs(float64(a)-float64(b)) <= tol
}

// applyKnown maps points through an explicit scale/rotation/translation,
// used to fabricate correspondences with a known ground truth.
func applyKnown(p detector.Point, scale, theta, tx, ty float64) detector.Point {
	x := float64(p.X)
	y := float64(p.Y)
	return detector.Point{
		X: float32(scale*(math.Cos(theta)*x-math.Sin(theta)*y) + tx),
		Y: float32(scale*(math.Sin(theta)*x+math.Cos(theta)*y) + ty),
	}
}

var assetAnchors = []detector.Point{
	{X: 38.3, Y: 51.7},
	{X: 73.5, Y: 51.5},
	{X: 56.0, Y: 71.7},
	{X: 41.5, Y: 92.4},
	{X: 70.7, Y: 92.2},
}

func TestComputeRecoversKnownTransform(t *testing.T) {
	cases := []struct {
		name  string
		scale float64
		theta float64
		tx    float64
		ty    float64
	}{
		{"identity", 1, 0, 0, 0},
		{"pure translation", 1, 0, 120, -40},
		{"scaled", 2.5, 0, 10, 10},
		{"rotated", 1, math.Pi / 6, 0, 0},
		{"full pose", 3.2, -0.4, 300, 180},
	}

	engine := NewEngine(DefaultConfig())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := make([]detector.Point, len(assetAnchors))
			for i, p := range assetAnchors {
				dst[i] = applyKnown(p, tc.scale, tc.theta, tc.tx, tc.ty)
			}

			tr, err := engine.Compute(assetAnchors, dst)
			if err != nil {
				t.Fatalf("Compute() failed: %v", err)
			}

			if math.Abs(tr.Scale()-tc.scale) > 1e-3 {
				t.Errorf("scale = %.5f, want %.5f", tr.Scale(), tc.scale)
			}

			// Round-trip law: the transform applied to the asset anchors
			// must reproduce the landmarks within tolerance.
			for i, p := range assetAnchors {
				got := tr.Apply(p)
				if !almostEqual(got.X, dst[i].X, 1e-2) || !almostEqual(got.Y, dst[i].Y, 1e-2) {
					t.Errorf("anchor %d maps to (%.3f, %.3f), want (%.3f, %.3f)",
						i, got.X, got.Y, dst[i].X, dst[i].Y)
				}
			}
		})
	}
}

func TestComputeRejectsCoincidentLandmarks(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	dst := make([]detector.Point, len(assetAnchors))
	for i := range dst {
		dst[i] = detector.Point{X: 320, Y: 240} // all collapsed to one pixel
	}

	_, err := engine.Compute(assetAnchors, dst)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("Compute() = %v, want ErrDegenerateGeometry", err)
	}
}

func TestComputeRejectsImplausibleScale(t *testing.T) {
	engine := NewEngine(Config{
		MinScale:        0.5,
		MaxScale:        4.0,
		MinSpreadPx:     0.001,
		MinConditioning: 0.1,
	})

	t.Run("too small", func(t *testing.T) {
		dst := make([]detector.Point, len(assetAnchors))
		for i, p := range assetAnchors {
			dst[i] = applyKnown(p, 0.01, 0, 0, 0)
		}
		_, err := engine.Compute(assetAnchors, dst)
		if !errors.Is(err, ErrDegenerateGeometry) {
			t.Fatalf("Compute() = %v, want ErrDegenerateGeometry", err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		dst := make([]detector.Point, len(assetAnchors))
		for i, p := range assetAnchors {
			dst[i] = applyKnown(p, 50, 0, 0, 0)
		}
		_, err := engine.Compute(assetAnchors, dst)
		if !errors.Is(err, ErrDegenerateGeometry) {
			t.Fatalf("Compute() = %v, want ErrDegenerateGeometry", err)
		}
	})
}

func TestComputeRejectsTooFewCorrespondences(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	_, err := engine.Compute(assetAnchors[:1], assetAnchors[:1])
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("Compute() = %v, want ErrDegenerateGeometry", err)
	}
}

func TestComputeMismatchedCounts(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	_, err := engine.Compute(assetAnchors, assetAnchors[:3])
	if err == nil {
		t.Fatal("Compute() accepted mismatched correspondence counts")
	}
}

func TestInvertRoundTrip(t *testing.T) {
	tr := Transform{A: 1.5, B: 0.5, Tx: 40, Ty: -12}
	inv, err := tr.Invert()
	if err != nil {
		t.Fatalf("Invert() failed: %v", err)
	}

	p := detector.Point{X: 17, Y: 93}
	back := inv.Apply(tr.Apply(p))
	if !almostEqual(back.X, p.X, 1e-3) || !almostEqual(back.Y, p.Y, 1e-3) {
		t.Errorf("round trip moved point to (%.4f, %.4f), want (%.4f, %.4f)", back.X, back.Y, p.X, p.Y)
	}
}

func TestInvertZeroScale(t *testing.T) {
	_, err := (Transform{}).Invert()
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("Invert() = %v, want ErrDegenerateGeometry", err)
	}
}
