// Package compositor warps filter assets into frame space and alpha
// blends them onto captured frames.
package compositor

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/align"
	"github.com/dudu/facefilter/internal/camera"
	"github.com/dudu/facefilter/internal/filter"
)

// Compositor blends overlays onto frames. The input frame is never
// mutated; every call produces a freshly allocated output buffer so the
// original capture stays available.
type Compositor struct{}

// New creates a compositor.
func New() *Compositor {
	return &Compositor{}
}

// Composite warps the asset into frame space with the given transform
// and alpha blends it over the frame. Bilinear resampling; pixels the
// warp maps from outside the asset are fully transparent.
func (c *Compositor) Composite(frame camera.Frame, asset *filter.Asset, t align.Transform) (camera.Frame, error) {
	out := frame.Image.Clone()
	if err := c.blendOnto(&out, asset, t); err != nil {
		out.Close()
		return camera.Frame{}, err
	}
	return camera.Frame{Image: out, Seq: frame.Seq, Timestamp: frame.Timestamp}, nil
}

// CompositeAll applies several filters in order onto one new frame.
func (c *Compositor) CompositeAll(frame camera.Frame, layers []Layer) (camera.Frame, error) {
	out := frame.Image.Clone()
	for _, layer := range layers {
		if err := c.blendOnto(&out, layer.Asset, layer.Transform); err != nil {
			out.Close()
			return camera.Frame{}, err
		}
	}
	return camera.Frame{Image: out, Seq: frame.Seq, Timestamp: frame.Timestamp}, nil
}

// Layer is one asset with its frame-space transform, ready to draw.
type Layer struct {
	Asset     *filter.Asset
	Transform align.Transform
}

// blendOnto warps the asset and blends it into dst in place.
// out = src·α + dst·(1−α), computed in float32 per channel.
func (c *Compositor) blendOnto(dst *gocv.Mat, asset *filter.Asset, t align.Transform) error {
	size := image.Pt(dst.Cols(), dst.Rows())

	warpMat := t.Mat()
	defer warpMat.Close()

	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpAffineWithParams(asset.Image(), &warped, warpMat, size,
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	channels := gocv.Split(warped)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	// Alpha as float in [0, 1], expanded to three channels.
	alphaF := gocv.NewMat()
	defer alphaF.Close()
	channels[3].ConvertToWithParams(&alphaF, gocv.MatTypeCV32F, 1.0/255.0, 0)

	alpha3 := gocv.NewMat()
	defer alpha3.Close()
	gocv.Merge([]gocv.Mat{alphaF, alphaF, alphaF}, &alpha3)

	invAlpha3 := gocv.NewMat()
	defer invAlpha3.Close()
	gocv.AddWeighted(alpha3, -1, alpha3, 0, 1, &invAlpha3)

	srcBGR := gocv.NewMat()
	defer srcBGR.Close()
	gocv.Merge([]gocv.Mat{channels[0], channels[1], channels[2]}, &srcBGR)

	srcF := gocv.NewMat()
	defer srcF.Close()
	srcBGR.ConvertTo(&srcF, gocv.MatTypeCV32FC3)

	dstF := gocv.NewMat()
	defer dstF.Close()
	dst.ConvertTo(&dstF, gocv.MatTypeCV32FC3)

	srcTerm := gocv.NewMat()
	defer srcTerm.Close()
	gocv.Multiply(srcF, alpha3, &srcTerm)

	dstTerm := gocv.NewMat()
	defer dstTerm.Close()
	gocv.Multiply(dstF, invAlpha3, &dstTerm)

	blendedF := gocv.NewMat()
	defer blendedF.Close()
	gocv.Add(srcTerm, dstTerm, &blendedF)

	blendedF.ConvertTo(dst, gocv.MatTypeCV8UC3)
	return nil
}
