package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/camera"
)

var hudColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// KeyHandler receives key codes polled during presentation. It runs on
// the presenting goroutine, so it may safely touch controller-owned
// state such as the filter manager.
type KeyHandler func(key int)

// Window is a preview Sink: it draws the HUD, shows the frame and polls
// window events. Must be used from the main OS thread on macOS.
type Window struct {
	window     *gocv.Window
	name       string
	onKey      KeyHandler
	hud        func() string
	decorate   func(*gocv.Mat)
	scratch    gocv.Mat
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a preview window.
func NewWindow(name string) *Window {
	window := gocv.NewWindow(name)
	window.ResizeWindow(1280, 720)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		scratch:   gocv.NewMat(),
		lastFrame: time.Now(),
	}
}

// OnKey registers the keyboard handler.
func (w *Window) OnKey(h KeyHandler) {
	w.onKey = h
}

// SetHUD registers an extra HUD line rendered under the FPS counter.
func (w *Window) SetHUD(f func() string) {
	w.hud = f
}

// SetDecorator registers a hook that may draw overlays onto the frame
// copy before it is shown.
func (w *Window) SetDecorator(f func(*gocv.Mat)) {
	w.decorate = f
}

// Present draws the HUD onto a copy of the frame, shows it and pumps
// window events. The incoming frame is left untouched.
func (w *Window) Present(frame camera.Frame) error {
	w.frameCount++
	now := time.Now()
	if elapsed := now.Sub(w.lastFrame); elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	frame.Image.CopyTo(&w.scratch)

	if w.decorate != nil {
		w.decorate(&w.scratch)
	}

	gocv.PutText(&w.scratch, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, hudColor, 2)
	if w.hud != nil {
		gocv.PutText(&w.scratch, w.hud(), image.Pt(10, 60),
			gocv.FontHersheyPlain, 1.5, hudColor, 2)
	}

	w.window.IMShow(w.scratch)

	// WaitKey pumps the event loop; without it nothing renders.
	if key := w.window.WaitKey(1); key >= 0 && w.onKey != nil {
		w.onKey(key)
	}
	return nil
}

// FPS returns the measured presentation rate.
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window.
func (w *Window) Close() error {
	w.scratch.Close()
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
