package pipeline

import (
	"github.com/dudu/facefilter/internal/camera"
	"github.com/dudu/facefilter/internal/compositor"
)

// Sink receives composited frames in capture order for display or
// streaming. Present is called once per tick from the controller
// goroutine; the frame is only valid for the duration of the call.
type Sink interface {
	Present(frame camera.Frame) error
}

// Compositor renders filter layers onto a frame without mutating it.
type Compositor interface {
	CompositeAll(frame camera.Frame, layers []compositor.Layer) (camera.Frame, error)
}

// State is the controller lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}
