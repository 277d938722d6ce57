//go:build linux

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
		device := config.Device
		if device == "" {
			device = fmt.Sprintf("/dev/video%d", config.CameraIndex)
		}
		return camera.NewV4L2Source(device, config.Width, config.Height)
	default:
		return nil, fmt.Errorf("invalid backend: %s (use 'gocv' or 'v4l2')", config.Backend)
	}
}
