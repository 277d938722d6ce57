package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// maxConsecutiveReadFailures is how many back-to-back failed device
// reads the reader tolerates before declaring the stream over.
const maxConsecutiveReadFailures = 30

// Capture is the default Source backed by a gocv video device. The
// blocking device read runs on a dedicated goroutine that feeds a
// single-slot mailbox, so Read can honor its context deadline.
type Capture struct {
	webcam   *gocv.VideoCapture
	deviceID int
	width    int
	height   int

	box  *mailbox
	seq  atomic.Uint64
	stop chan struct{}
	done chan struct{}

	closeOnce sync.Once
	streamErr atomic.Value // error recorded by the reader on exit
}

// NewCapture opens a camera by device index with a default 720p request.
func NewCapture(deviceID int, targetFPS int) (*Capture, error) {
	return NewCaptureWithResolution(deviceID, targetFPS, 1280, 720)
}

// NewCaptureWithResolution opens a camera requesting a specific resolution.
// The device may ignore the request; Width/Height report what it granted.
func NewCaptureWithResolution(deviceID int, targetFPS int, width, height int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrDeviceUnavailable, deviceID, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	c := &Capture{
		webcam:   webcam,
		deviceID: deviceID,
		width:    int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		height:   int(webcam.Get(gocv.VideoCaptureFrameHeight)),
		box:      newMailbox(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// readLoop pulls frames from the device into the mailbox until stopped
// or the device stops delivering.
func (c *Capture) readLoop() {
	defer close(c.done)

	buf := gocv.NewMat()
	defer buf.Close()

	failures := 0
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if !c.webcam.Read(&buf) || buf.Empty() {
			failures++
			if failures >= maxConsecutiveReadFailures {
				c.streamErr.Store(ErrEndOfStream)
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		failures = 0

		c.box.publish(Frame{
			Image:     buf.Clone(),
			Seq:       c.seq.Add(1),
			Timestamp: time.Now(),
		})
	}
}

// Read returns the most recent captured frame. It reports
// ErrCaptureTimeout when the context expires first and ErrEndOfStream
// once the reader has given up on the device.
func (c *Capture) Read(ctx context.Context) (Frame, error) {
	for {
		if f, ok := c.box.take(); ok {
			return f, nil
		}

		select {
		case <-c.done:
			// One last look: the reader may have published right
			// before exiting.
			if f, ok := c.box.take(); ok {
				return f, nil
			}
			if err, ok := c.streamErr.Load().(error); ok {
				return Frame{}, fmt.Errorf("device %d: %w", c.deviceID, err)
			}
			return Frame{}, fmt.Errorf("device %d: %w", c.deviceID, ErrEndOfStream)
		case <-ctx.Done():
			return Frame{}, fmt.Errorf("device %d: %w", c.deviceID, ErrCaptureTimeout)
		case <-c.box.notify:
		}
	}
}

// Width returns the granted frame width.
func (c *Capture) Width() int {
	return c.width
}

// Height returns the granted frame height.
func (c *Capture) Height() int {
	return c.height
}

// Drops returns how many captured frames were overwritten unconsumed.
func (c *Capture) Drops() uint64 {
	return c.box.dropCount()
}

// Close stops the reader and releases the device.
func (c *Capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.box.drain()
		err = c.webcam.Close()
	})
	return err
}
