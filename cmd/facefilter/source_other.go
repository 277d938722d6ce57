//go:build !linux

package main

import (
	"fmt"

	"github.com/dudu/facefilter/internal/camera"
)

func openSource(config Config) (camera.Source, error) {
	switch config.Backend {
	case "gocv":
		return camera.NewCaptureWithResolution(config.CameraIndex, config.TargetFPS, config.Width, config.Height)
	case "v4l2":
		return nil, fmt.Errorf("v4l2 backend is only available on linux")
	default:
		return nil, fmt.Errorf("invalid backend: %s (use 'gocv' or 'v4l2')", config.Backend)
	}
}
