package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/camera"
	"github.com/dudu/facefilter/internal/compositor"
	"github.com/dudu/facefilter/internal/detector"
	"github.com/dudu/facefilter/internal/filter"
	"github.com/dudu/facefilter/internal/inference"
	"github.com/dudu/facefilter/internal/pipeline"
	"github.com/dudu/facefilter/internal/ui"
	"github.com/dudu/facefilter/pkg/log"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

type Config struct {
	CameraIndex int
	Device      string
	Backend     string
	Detector    string
	Manifest    string
	ModelPath   string
	CascadeDir  string
	TargetFPS   int
	Width       int
	Height      int
	Preview     bool
}

func main() {
	_ = godotenv.Load()

	config := parseFlags()

	if config.Manifest == "" {
		fmt.Fprintln(os.Stderr, "Error: --manifest flag is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.IntVar(&config.CameraIndex, "camera", 0, "Camera device index")
	flag.IntVar(&config.CameraIndex, "c", 0, "Camera device index (shorthand)")
	flag.StringVar(&config.Device, "device", "", "V4L2 device path (v4l2 backend only, default /dev/video<camera>)")
	flag.StringVar(&config.Backend, "backend", "gocv", "Capture backend: gocv or v4l2")
	flag.StringVar(&config.Backend, "b", "gocv", "Capture backend (shorthand)")
	flag.StringVar(&config.Detector, "detector", "scrfd", "Face detector: scrfd or pigo")
	flag.StringVar(&config.Detector, "d", "scrfd", "Face detector (shorthand)")
	flag.StringVar(&config.Manifest, "manifest", "", "Filter manifest JSON (required)")
	flag.StringVar(&config.Manifest, "m", "", "Filter manifest JSON (shorthand)")
	flag.StringVar(&config.ModelPath, "model", "models/scrfd_10g.onnx", "SCRFD model path")
	flag.StringVar(&config.CascadeDir, "cascades", "cascades", "Pigo cascade directory")
	flag.IntVar(&config.TargetFPS, "fps", 30, "Target frames per second")
	flag.IntVar(&config.Width, "width", 1280, "Capture width")
	flag.IntVar(&config.Height, "height", 720, "Capture height")
	flag.BoolVar(&config.Preview, "preview", true, "Show preview window")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "FaceFilter - Real-time webcam face filters\n\n")
		fmt.Fprintf(os.Stderr, "Usage: facefilter [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  facefilter --manifest assets/filters.json\n")
		fmt.Fprintf(os.Stderr, "  facefilter --manifest assets/filters.json --detector pigo\n")
		fmt.Fprintf(os.Stderr, "  facefilter --manifest assets/filters.json --backend v4l2 --camera 2\n")
		fmt.Fprintf(os.Stderr, "\nKeys:\n")
		fmt.Fprintf(os.Stderr, "  q/ESC quit, n cycle filters, f toggle face box, 0-9 toggle filter by index\n")
	}

	flag.Parse()
	return config
}

func run(config Config) error {
	log.Info(log.Fields{"backend": config.Backend, "detector": config.Detector}, "facefilter starting")

	source, err := openSource(config)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	det, err := openDetector(config)
	if err != nil {
		source.Close()
		return fmt.Errorf("failed to create detector: %w", err)
	}
	defer inference.Shutdown()

	manifest, err := filter.LoadManifest(config.Manifest)
	if err != nil {
		source.Close()
		det.Close()
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	filters, err := manifest.Build(filepath.Dir(config.Manifest))
	if err != nil {
		source.Close()
		det.Close()
		return fmt.Errorf("failed to load filter assets: %w", err)
	}
	defer filters.Close()
	log.Info(log.Fields{"filters": filters.Len()}, "filters loaded")

	cfg := pipeline.DefaultConfig()
	cfg.TargetFPS = config.TargetFPS

	var sink pipeline.Sink
	if config.Preview {
		window := ui.NewWindow("FaceFilter")
		defer window.Close()
		sink = window
	} else {
		sink = nullSink{}
	}

	ctrl, err := pipeline.New(cfg, source, det, compositor.New(), filters, sink)
	if err != nil {
		source.Close()
		det.Close()
		return fmt.Errorf("failed to assemble pipeline: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if window, ok := sink.(*ui.Window); ok {
		wireControls(window, ctrl, filters, cancel)
	}

	fmt.Println("Running... press 'q' to quit")

	// Run drives the sink, so it stays on the locked main thread.
	if err := ctrl.Run(ctx); err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	snap := ctrl.Snapshot()
	log.Info(log.Fields{
		"run_id":  snap.RunID,
		"frames":  snap.Frames,
		"dropped": snap.DroppedFrames,
		"fps":     fmt.Sprintf("%.1f", snap.FPS),
	}, "facefilter stopped")
	return nil
}

func openDetector(config Config) (detector.Detector, error) {
	switch config.Detector {
	case "scrfd":
		if err := inference.Initialize(); err != nil {
			return nil, err
		}
		return detector.NewSCRFD(config.ModelPath, 640, 0.5, 0.4)
	case "pigo":
		return detector.NewPigo(detector.DefaultPigoConfig(config.CascadeDir))
	default:
		return nil, fmt.Errorf("invalid detector: %s (use 'scrfd' or 'pigo')", config.Detector)
	}
}

// wireControls attaches the keyboard handler, HUD and face-box overlay.
// The handler and the decorator run on the presenting goroutine, which
// is the controller goroutine, so touching the filter manager here is
// safe.
func wireControls(window *ui.Window, ctrl *pipeline.Controller, filters *filter.Manager, cancel context.CancelFunc) {
	showBox := false

	window.OnKey(func(key int) {
		switch {
		case key == 'q' || key == 27:
			cancel()
		case key == 'n':
			name := filters.Cycle()
			log.Info(log.Fields{"filter": name}, "switched filter")
		case key == 'f':
			showBox = !showBox
		case key >= '0' && key <= '9':
			filters.ToggleIndex(key - '0')
		}
	})

	window.SetHUD(func() string {
		snap := ctrl.Snapshot()
		var active []string
		for _, item := range filters.Active() {
			active = append(active, item.Asset.Name())
		}
		status := "tracking"
		if !snap.Tracking {
			status = "no face"
		}
		if snap.Suppressed {
			status = "lost"
		}
		if len(active) == 0 {
			return status
		}
		return fmt.Sprintf("%s | %s", status, strings.Join(active, ","))
	})

	window.SetDecorator(func(img *gocv.Mat) {
		if !showBox {
			return
		}
		snap := ctrl.Snapshot()
		if !snap.Tracking {
			return
		}
		box := snap.FaceBox
		rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2))
		gocv.Rectangle(img, rect, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)
	})
}

// nullSink discards frames when the preview window is disabled.
type nullSink struct{}

func (nullSink) Present(camera.Frame) error { return nil }
