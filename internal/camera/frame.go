package camera

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// Capture error kinds. Open-time failures are fatal to stream start;
// per-call failures are reported once per failed call and the pipeline
// controller decides the retry policy.
var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrEndOfStream       = errors.New("end of stream")
	ErrCaptureTimeout    = errors.New("capture timed out")
)

// Frame is one captured image with its capture timestamp and sequence
// number. Frames are immutable once captured and live for a single
// pipeline tick; the consumer must Close them.
type Frame struct {
	Image     gocv.Mat
	Seq       uint64
	Timestamp time.Time
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Image.Empty()
}

// Close releases the pixel buffer.
func (f Frame) Close() error {
	return f.Image.Close()
}

// Source produces frames from a camera or stream. Read honors the
// context deadline and never blocks indefinitely; it does not retry on
// its own.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}
