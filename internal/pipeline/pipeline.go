// Package pipeline orchestrates the per-frame processing loop: capture,
// landmark detection, alignment, compositing and presentation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/align"
	"github.com/dudu/facefilter/internal/camera"
	"github.com/dudu/facefilter/internal/compositor"
	"github.com/dudu/facefilter/internal/detector"
	"github.com/dudu/facefilter/internal/filter"
	"github.com/dudu/facefilter/pkg/log"
)

// Config holds pipeline configuration.
type Config struct {
	// TargetFPS sets the frame budget (1/TargetFPS per tick).
	TargetFPS int
	// MaxMisses is how many consecutive detection misses reuse the
	// last good pose before the filter is suppressed.
	MaxMisses int
	// CaptureTimeout bounds a single source read.
	CaptureTimeout time.Duration
	// DetectTimeout bounds how long a tick waits for the detector.
	DetectTimeout time.Duration
	// MaxCaptureRetries bounds recoverable capture failures per tick
	// before the stream faults.
	MaxCaptureRetries int
	// Align bounds the transform solves.
	Align align.Config
}

// DefaultConfig returns settings for an interactive webcam session.
func DefaultConfig() Config {
	return Config{
		TargetFPS:         30,
		MaxMisses:         5,
		CaptureTimeout:    2 * time.Second,
		DetectTimeout:     500 * time.Millisecond,
		MaxCaptureRetries: 3,
		Align:             align.DefaultConfig(),
	}
}

// Stats is a snapshot of the mutable per-run state.
type Stats struct {
	RunID         string
	Frames        uint64
	Misses        int
	FPS           float64
	DroppedFrames uint64
	Overruns      uint64
	Suppressed    bool
	Tracking      bool
	FaceBox       detector.BoundingBox
}

// pipelineState is the per-run mutable state, owned exclusively by the
// controller goroutine. The mutex only guards the Snapshot copy.
type pipelineState struct {
	mu         sync.Mutex
	runID      string
	lastLayers []compositor.Layer
	misses     int
	frames     uint64
	fps        float64
	dropped    uint64
	overruns   uint64
	suppressed bool
	tracking   bool
	faceBox    detector.BoundingBox
}

func (s *pipelineState) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		RunID:         s.runID,
		Frames:        s.frames,
		Misses:        s.misses,
		FPS:           s.fps,
		DroppedFrames: s.dropped,
		Overruns:      s.overruns,
		Suppressed:    s.suppressed,
		Tracking:      s.tracking,
		FaceBox:       s.faceBox,
	}
}

// detectJob and detectResult cross the single-slot boundary to the
// detector worker. seq lets the controller discard late replies.
type detectJob struct {
	img gocv.Mat
	seq uint64
}

type detectResult struct {
	faces []detector.Face
	err   error
	seq   uint64
}

// Controller drives the pipeline state machine
// Idle → Running → (Stopped | Faulted). It owns the capture source and
// the detector and releases both when Run returns; the compositor, the
// filter manager and the sink stay with the caller.
type Controller struct {
	cfg     Config
	source  camera.Source
	det     detector.Detector
	engine  *align.Engine
	comp    Compositor
	filters *filter.Manager
	sink    Sink

	state   atomic.Int32
	stopReq atomic.Bool
	run     *pipelineState

	reqCh      chan detectJob
	respCh     chan detectResult
	workerBusy bool
	dropNext   bool
}

// New assembles a controller. All collaborators are required.
func New(cfg Config, source camera.Source, det detector.Detector, comp Compositor, filters *filter.Manager, sink Sink) (*Controller, error) {
	if source == nil || det == nil || comp == nil || filters == nil || sink == nil {
		return nil, errors.New("pipeline: all collaborators are required")
	}
	if cfg.TargetFPS <= 0 {
		return nil, fmt.Errorf("pipeline: invalid target FPS %d", cfg.TargetFPS)
	}
	return &Controller{
		cfg:     cfg,
		source:  source,
		det:     det,
		engine:  align.NewEngine(cfg.Align),
		comp:    comp,
		filters: filters,
		sink:    sink,
		run:     &pipelineState{},
		reqCh:   make(chan detectJob, 1),
		respCh:  make(chan detectResult, 1),
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Snapshot returns current run statistics.
func (c *Controller) Snapshot() Stats {
	return c.run.snapshot()
}

// Stop requests a clean exit. The running loop observes it at the next
// tick boundary; Run then returns nil with state Stopped.
func (c *Controller) Stop() {
	c.stopReq.Store(true)
}

// Run executes the tick loop until the context is canceled (Stopped) or
// an unrecoverable capture failure occurs (Faulted). Per-tick
// recoverable conditions (detection misses, degenerate geometry,
// bounded capture timeouts) never escape.
func (c *Controller) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("pipeline: cannot run from state %s", c.State())
	}

	c.run = &pipelineState{runID: uuid.NewString()}
	log.Info(log.Fields{"run_id": c.run.runID, "target_fps": c.cfg.TargetFPS}, "pipeline running")

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go c.detectWorker(workerCtx, workerDone)

	defer func() {
		stopWorker()
		close(c.reqCh)
		<-workerDone
		for job := range c.reqCh {
			job.img.Close()
		}
		if err := c.source.Close(); err != nil {
			log.Warn(log.Fields{"run_id": c.run.runID, "error": err.Error()}, "source close failed")
		}
		if err := c.det.Close(); err != nil {
			log.Warn(log.Fields{"run_id": c.run.runID, "error": err.Error()}, "detector close failed")
		}
	}()

	budget := time.Second / time.Duration(c.cfg.TargetFPS)

	for {
		select {
		case <-ctx.Done():
			c.state.Store(int32(StateStopped))
			log.Info(log.Fields{"run_id": c.run.runID, "frames": c.run.frames}, "pipeline stopped")
			return nil
		default:
		}
		if c.stopReq.Load() {
			c.state.Store(int32(StateStopped))
			log.Info(log.Fields{"run_id": c.run.runID, "frames": c.run.frames}, "pipeline stopped")
			return nil
		}

		tickStart := time.Now()

		if c.dropNext {
			c.discardStaleFrame(ctx)
			c.dropNext = false
		}

		frame, err := c.readFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.state.Store(int32(StateStopped))
				log.Info(log.Fields{"run_id": c.run.runID, "frames": c.run.frames}, "pipeline stopped")
				return nil
			}
			c.state.Store(int32(StateFaulted))
			log.Error(log.Fields{"run_id": c.run.runID, "error": err.Error()}, "pipeline faulted")
			return err
		}

		c.tick(ctx, frame)
		frame.Close()

		c.finishTick(tickStart, budget)
	}
}

// readFrame reads one frame, absorbing up to MaxCaptureRetries
// recoverable failures before giving up.
func (c *Controller) readFrame(ctx context.Context) (camera.Frame, error) {
	retries := 0
	for {
		readCtx, cancel := context.WithTimeout(ctx, c.cfg.CaptureTimeout)
		frame, err := c.source.Read(readCtx)
		cancel()
		if err == nil {
			return frame, nil
		}
		if ctx.Err() != nil {
			return camera.Frame{}, err
		}
		if errors.Is(err, camera.ErrCaptureTimeout) || errors.Is(err, camera.ErrEndOfStream) {
			retries++
			log.Debug(log.Fields{"run_id": c.run.runID, "retry": retries, "error": err.Error()}, "capture read failed")
			if retries <= c.cfg.MaxCaptureRetries {
				continue
			}
		}
		return camera.Frame{}, fmt.Errorf("capture failed after %d retries: %w", retries, err)
	}
}

// discardStaleFrame throws away one queued frame after a budget
// overrun, trading staleness for latency.
func (c *Controller) discardStaleFrame(ctx context.Context) {
	dropCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	if f, err := c.source.Read(dropCtx); err == nil {
		f.Close()
		c.run.mu.Lock()
		c.run.dropped++
		c.run.mu.Unlock()
	}
}

// tick runs detection, alignment and compositing for one frame, then
// presents the result.
func (c *Controller) tick(ctx context.Context, frame camera.Frame) {
	face, ok := c.detect(ctx, frame)

	c.run.mu.Lock()
	c.run.tracking = ok
	if ok {
		c.run.faceBox = face.BoundingBox
		layers := c.solveLayers(face.Landmarks)
		if len(layers) > 0 {
			c.run.lastLayers = layers
			c.run.misses = 0
		} else {
			c.run.misses++
		}
	} else {
		c.run.misses++
	}
	hold := c.run.misses <= c.cfg.MaxMisses && len(c.run.lastLayers) > 0
	c.run.suppressed = !hold
	layers := c.run.lastLayers
	c.run.frames++
	c.run.mu.Unlock()

	out := frame
	composited := false
	if hold {
		rendered, err := c.comp.CompositeAll(frame, layers)
		if err != nil {
			log.Warn(log.Fields{"run_id": c.run.runID, "seq": frame.Seq, "error": err.Error()}, "composite failed")
		} else {
			out = rendered
			composited = true
		}
	}

	if err := c.sink.Present(out); err != nil {
		log.Warn(log.Fields{"run_id": c.run.runID, "seq": out.Seq, "error": err.Error()}, "present failed")
	}
	if composited {
		out.Close()
	}
}

// detect runs the detector behind the single-slot worker and waits at
// most DetectTimeout for the primary face. A timed-out or absent
// detection is a miss, never an error.
func (c *Controller) detect(ctx context.Context, frame camera.Frame) (detector.Face, bool) {
	if c.workerBusy {
		// Previous job still running past its deadline; skip this
		// tick rather than queue unboundedly. A reply that arrives
		// now belongs to an old frame and is discarded.
		if !c.collectResult() {
			return detector.Face{}, false
		}
	}

	c.reqCh <- detectJob{img: frame.Image.Clone(), seq: frame.Seq}
	c.workerBusy = true

	return c.waitResult(ctx, frame.Seq)
}

// waitResult waits for the reply matching seq, up to DetectTimeout.
func (c *Controller) waitResult(ctx context.Context, seq uint64) (detector.Face, bool) {
	timer := time.NewTimer(c.cfg.DetectTimeout)
	defer timer.Stop()

	select {
	case res := <-c.respCh:
		c.workerBusy = false
		if res.seq != seq {
			return detector.Face{}, false
		}
		if res.err != nil {
			log.Debug(log.Fields{"run_id": c.run.runID, "seq": seq, "error": res.err.Error()}, "detector error")
			return detector.Face{}, false
		}
		face, found := detector.Primary(res.faces)
		if !found {
			return detector.Face{}, false
		}
		return face, true
	case <-timer.C:
		return detector.Face{}, false
	case <-ctx.Done():
		return detector.Face{}, false
	}
}

// collectResult drains a pending worker reply if one is waiting.
// Reports whether the worker is free afterwards.
func (c *Controller) collectResult() bool {
	select {
	case <-c.respCh:
		c.workerBusy = false
		return true
	default:
		return false
	}
}

// detectWorker serializes detector calls off the tick goroutine so a
// slow inference cannot wedge the loop past its deadline.
func (c *Controller) detectWorker(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for job := range c.reqCh {
		faces, err := c.det.Detect(ctx, job.img)
		job.img.Close()
		select {
		case c.respCh <- detectResult{faces: faces, err: err, seq: job.seq}:
		case <-ctx.Done():
			return
		}
	}
}

// solveLayers computes a transform for every active filter. Degenerate
// solves are skipped; they count as misses only when no filter solves.
func (c *Controller) solveLayers(lms detector.Landmarks) []compositor.Layer {
	var layers []compositor.Layer
	for _, item := range c.filters.Active() {
		src, dst := item.Asset.Correspondences(lms)
		tr, err := c.engine.Compute(src, dst)
		if err != nil {
			log.Debug(log.Fields{"run_id": c.run.runID, "filter": item.Asset.Name(), "error": err.Error()}, "alignment rejected")
			continue
		}
		layers = append(layers, compositor.Layer{Asset: item.Asset, Transform: tr})
	}
	return layers
}

// finishTick updates the FPS estimate and arms the stale-frame drop
// when the tick blew its budget.
func (c *Controller) finishTick(tickStart time.Time, budget time.Duration) {
	tickDur := time.Since(tickStart)

	c.run.mu.Lock()
	if tickDur > 0 {
		instant := float64(time.Second) / float64(tickDur)
		if c.run.fps == 0 {
			c.run.fps = instant
		} else {
			c.run.fps = 0.9*c.run.fps + 0.1*instant
		}
	}
	if tickDur > budget {
		c.run.overruns++
		c.dropNext = true
	}
	c.run.mu.Unlock()
}
