package compositor

import (
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/align"
	"github.com/dudu/facefilter/internal/camera"
	"github.com/dudu/facefilter/internal/detector"
	"github.com/dudu/facefilter/internal/filter"
)

var testAnchors = map[detector.AnchorName]detector.Point{
	detector.AnchorLeftEye:  {X: 1, Y: 1},
	detector.AnchorRightEye: {X: 3, Y: 1},
}

// newTestFrame builds a small BGR frame with a deterministic gradient.
func newTestFrame(t *testing.T, w, h int) camera.Frame {
	t.Helper()
	img := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetUCharAt(y, x*3, uint8(x*13+y*7))
			img.SetUCharAt(y, x*3+1, uint8(x*5+y*11))
			img.SetUCharAt(y, x*3+2, uint8(x*3+y*17))
		}
	}
	return camera.Frame{Image: img, Seq: 1, Timestamp: time.Now()}
}

// newUniformAsset builds a w×h BGRA asset with one color and alpha value.
func newUniformAsset(t *testing.T, w, h int, b, g, r, a uint8) *filter.Asset {
	t.Helper()
	img := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetUCharAt(y, x*4, b)
			img.SetUCharAt(y, x*4+1, g)
			img.SetUCharAt(y, x*4+2, r)
			img.SetUCharAt(y, x*4+3, a)
		}
	}
	asset, err := filter.NewAsset("uniform", img, testAnchors)
	if err != nil {
		t.Fatalf("NewAsset() failed: %v", err)
	}
	return asset
}

func framesEqual(a, b gocv.Mat) bool {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return false
	}
	ab := a.ToBytes()
	bb := b.ToBytes()
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}

func TestCompositeTransparentAssetIsIdentity(t *testing.T) {
	frame := newTestFrame(t, 16, 12)
	defer frame.Close()
	asset := newUniformAsset(t, 8, 8, 255, 255, 255, 0) // fully transparent
	defer asset.Close()

	out, err := New().Composite(frame, asset, align.Identity())
	if err != nil {
		t.Fatalf("Composite() failed: %v", err)
	}
	defer out.Close()

	if !framesEqual(frame.Image, out.Image) {
		t.Error("fully transparent asset changed frame pixels")
	}
	if out.Seq != frame.Seq {
		t.Errorf("output seq = %d, want %d", out.Seq, frame.Seq)
	}
}

func TestCompositeOpaqueAssetCoversRegion(t *testing.T) {
	frame := newTestFrame(t, 16, 12)
	defer frame.Close()
	asset := newUniformAsset(t, 4, 4, 10, 200, 30, 255) // fully opaque
	defer asset.Close()

	// Place the asset at frame offset (5, 3) unscaled.
	tr := align.Transform{A: 1, Tx: 5, Ty: 3}
	out, err := New().Composite(frame, asset, tr)
	if err != nil {
		t.Fatalf("Composite() failed: %v", err)
	}
	defer out.Close()

	// Interior of the covered region is exactly the asset color.
	for y := 4; y < 6; y++ {
		for x := 6; x < 8; x++ {
			b := out.Image.GetUCharAt(y, x*3)
			g := out.Image.GetUCharAt(y, x*3+1)
			r := out.Image.GetUCharAt(y, x*3+2)
			if b != 10 || g != 200 || r != 30 {
				t.Errorf("pixel (%d,%d) = (%d,%d,%d), want asset color (10,200,30)", x, y, b, g, r)
			}
		}
	}

	// Far outside the placed asset the frame is untouched.
	if out.Image.GetUCharAt(11, 15*3) != frame.Image.GetUCharAt(11, 15*3) {
		t.Error("pixel outside the asset footprint changed")
	}
}

func TestCompositeDoesNotMutateInput(t *testing.T) {
	frame := newTestFrame(t, 16, 12)
	defer frame.Close()
	snapshot := frame.Image.Clone()
	defer snapshot.Close()

	asset := newUniformAsset(t, 8, 8, 0, 0, 255, 255)
	defer asset.Close()

	out, err := New().Composite(frame, asset, align.Transform{A: 1, Tx: 2, Ty: 2})
	if err != nil {
		t.Fatalf("Composite() failed: %v", err)
	}
	defer out.Close()

	if !framesEqual(frame.Image, snapshot) {
		t.Error("Composite() mutated the input frame")
	}
	if framesEqual(frame.Image, out.Image) {
		t.Error("opaque overlay produced an unchanged output frame")
	}
}

func TestCompositeAllLayerOrder(t *testing.T) {
	frame := newTestFrame(t, 16, 12)
	defer frame.Close()

	bottom := newUniformAsset(t, 6, 6, 255, 0, 0, 255)
	defer bottom.Close()
	top := newUniformAsset(t, 6, 6, 0, 255, 0, 255)
	defer top.Close()

	// Both layers cover (4,4); the later layer must win.
	layers := []Layer{
		{Asset: bottom, Transform: align.Transform{A: 1, Tx: 2, Ty: 2}},
		{Asset: top, Transform: align.Transform{A: 1, Tx: 2, Ty: 2}},
	}

	out, err := New().CompositeAll(frame, layers)
	if err != nil {
		t.Fatalf("CompositeAll() failed: %v", err)
	}
	defer out.Close()

	b := out.Image.GetUCharAt(4, 4*3)
	g := out.Image.GetUCharAt(4, 4*3+1)
	if b != 0 || g != 255 {
		t.Errorf("overlap pixel = (b=%d, g=%d), want top layer (b=0, g=255)", b, g)
	}
}
