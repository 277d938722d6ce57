//go:build linux

package camera

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/blackjack/webcam"
	"gocv.io/x/gocv"
)

// v4l2 fourcc 'YUYV', the packed 4:2:2 format most UVC webcams deliver.
const pixelFormatYUYV = webcam.PixelFormat(0x56595559)

// V4L2Source reads frames straight from a /dev/videoN device. Useful on
// headless Linux hosts where the gocv capture backend is unavailable or
// grabs the wrong device node (e.g. the IR sensor of a dual camera).
type V4L2Source struct {
	cam    *webcam.Webcam
	device string
	width  int
	height int
	seq    atomic.Uint64
}

// NewV4L2Source opens the device and negotiates YUYV at the requested size.
func NewV4L2Source(device string, width, height int) (*V4L2Source, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, device, err)
	}

	_, gotW, gotH, err := cam.SetImageFormat(pixelFormatYUYV, uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: %s: set YUYV format: %v", ErrDeviceUnavailable, device, err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: %s: start streaming: %v", ErrDeviceUnavailable, device, err)
	}

	return &V4L2Source{
		cam:    cam,
		device: device,
		width:  int(gotW),
		height: int(gotH),
	}, nil
}

// Read waits for the next frame, bounded by the context deadline.
func (s *V4L2Source) Read(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, fmt.Errorf("%s: %w", s.device, ErrCaptureTimeout)
		}

		err := s.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return Frame{}, fmt.Errorf("%s: %w: %v", s.device, ErrEndOfStream, err)
		}

		raw, err := s.cam.ReadFrame()
		if err != nil {
			return Frame{}, fmt.Errorf("%s: %w: %v", s.device, ErrEndOfStream, err)
		}
		if len(raw) == 0 {
			continue
		}

		img, err := s.decodeYUYV(raw)
		if err != nil {
			return Frame{}, err
		}
		return Frame{
			Image:     img,
			Seq:       s.seq.Add(1),
			Timestamp: time.Now(),
		}, nil
	}
}

// decodeYUYV converts a packed YUYV buffer to a BGR Mat.
func (s *V4L2Source) decodeYUYV(raw []byte) (gocv.Mat, error) {
	expected := s.width * s.height * 2
	if len(raw) < expected {
		return gocv.Mat{}, fmt.Errorf("%s: short frame: %d bytes, want %d", s.device, len(raw), expected)
	}

	yuyv, err := gocv.NewMatFromBytes(s.height, s.width, gocv.MatTypeCV8UC2, raw[:expected])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%s: wrap frame: %w", s.device, err)
	}
	defer yuyv.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(yuyv, &bgr, gocv.ColorYUVToBGRYUY2)
	return bgr, nil
}

// Width returns the negotiated frame width.
func (s *V4L2Source) Width() int {
	return s.width
}

// Height returns the negotiated frame height.
func (s *V4L2Source) Height() int {
	return s.height
}

// Close stops streaming and releases the device.
func (s *V4L2Source) Close() error {
	s.cam.StopStreaming()
	return s.cam.Close()
}
