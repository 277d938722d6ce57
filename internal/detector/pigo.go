package detector

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"
)

// PigoConfig configures the pure-Go cascade backend.
type PigoConfig struct {
	CascadeDir  string  // directory holding "facefinder" and "puploc"
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	QThreshold  float32
	Perturbs    int
}

// DefaultPigoConfig returns settings that work for a typical 720p webcam feed.
func DefaultPigoConfig(cascadeDir string) PigoConfig {
	return PigoConfig{
		CascadeDir:  cascadeDir,
		MinSize:     80,
		MaxSize:     800,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		QThreshold:  5.0,
		Perturbs:    10,
	}
}

// Pigo is a cascade-based detector that needs no model runtime: the face
// finder gives the box, the pupil localizer gives the two eye points, and
// the remaining landmarks are synthesized from the face geometry.
type Pigo struct {
	cfg        PigoConfig
	classifier *pigo.Pigo
	puploc     *pigo.PuplocCascade
	gray       gocv.Mat
}

// NewPigo loads and unpacks the cascade files.
func NewPigo(cfg PigoConfig) (*Pigo, error) {
	faceData, err := os.ReadFile(filepath.Join(cfg.CascadeDir, "facefinder"))
	if err != nil {
		return nil, fmt.Errorf("failed to read face cascade: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(faceData)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face cascade: %w", err)
	}

	puplocData, err := os.ReadFile(filepath.Join(cfg.CascadeDir, "puploc"))
	if err != nil {
		return nil, fmt.Errorf("failed to read puploc cascade: %w", err)
	}
	plc, err := pigo.NewPuplocCascade().UnpackCascade(puplocData)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack puploc cascade: %w", err)
	}

	return &Pigo{
		cfg:        cfg,
		classifier: classifier,
		puploc:     plc,
		gray:       gocv.NewMat(),
	}, nil
}

// Detect runs the cascade over a grayscale copy of the frame.
func (p *Pigo) Detect(ctx context.Context, img gocv.Mat) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gocv.CvtColor(img, &p.gray, gocv.ColorBGRToGray)
	rows := p.gray.Rows()
	cols := p.gray.Cols()
	pixels := p.gray.ToBytes()

	imgParams := pigo.ImageParams{
		Pixels: pixels,
		Rows:   rows,
		Cols:   cols,
		Dim:    cols,
	}
	cParams := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     p.cfg.MaxSize,
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: imgParams,
	}

	dets := p.classifier.RunCascade(cParams, 0.0)
	dets = p.classifier.ClusterDetections(dets, 0.2)

	var faces []Face
	for _, det := range dets {
		if det.Q < p.cfg.QThreshold {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		faces = append(faces, p.toFace(det, imgParams))
	}
	return faces, nil
}

// toFace locates the pupils inside the detection and derives the nose
// and mouth corners from the eye line.
func (p *Pigo) toFace(det pigo.Detection, imgParams pigo.ImageParams) Face {
	half := float32(det.Scale) / 2

	leftEye := p.locatePupil(det, imgParams, -0.175)
	rightEye := p.locatePupil(det, imgParams, 0.185)

	// Eye midpoint and the downward unit vector perpendicular to the
	// eye line (image y grows downward).
	mx := (leftEye.X + rightEye.X) / 2
	my := (leftEye.Y + rightEye.Y) / 2
	ex := rightEye.X - leftEye.X
	ey := rightEye.Y - leftEye.Y
	d := float32(math.Hypot(float64(ex), float64(ey)))
	if d < 1 {
		d = half // collapsed pupils, fall back to the box size
		ex, ey = d, 0
	}
	ux, uy := ex/d, ey/d  // along the eye line
	dx, dy := -uy, ux     // perpendicular, toward chin

	nose := Point{X: mx + 0.55*d*dx, Y: my + 0.55*d*dy}
	leftMouth := Point{X: mx + d*dx - 0.35*d*ux, Y: my + d*dy - 0.35*d*uy}
	rightMouth := Point{X: mx + d*dx + 0.35*d*ux, Y: my + d*dy + 0.35*d*uy}

	return Face{
		BoundingBox: BoundingBox{
			X1: float32(det.Col) - half,
			Y1: float32(det.Row) - half,
			X2: float32(det.Col) + half,
			Y2: float32(det.Row) + half,
		},
		Landmarks: Landmarks{
			LeftEye:    leftEye,
			RightEye:   rightEye,
			Nose:       nose,
			LeftMouth:  leftMouth,
			RightMouth: rightMouth,
		},
		Score: det.Q,
	}
}

// locatePupil runs the pupil localizer over one eye region. colOffset is
// the horizontal offset of the eye from the face center, as a fraction
// of the detection scale.
func (p *Pigo) locatePupil(det pigo.Detection, imgParams pigo.ImageParams, colOffset float64) Point {
	seed := &pigo.Puploc{
		Row:      det.Row - int(0.075*float64(det.Scale)),
		Col:      det.Col + int(colOffset*float64(det.Scale)),
		Scale:    float32(det.Scale) * 0.25,
		Perturbs: p.cfg.Perturbs,
	}
	loc := p.puploc.RunDetector(*seed, imgParams, 0.0, false)
	if loc.Row < 0 || loc.Col < 0 {
		return Point{X: float32(seed.Col), Y: float32(seed.Row)}
	}
	return Point{X: float32(loc.Col), Y: float32(loc.Row)}
}

// Close releases the grayscale scratch buffer.
func (p *Pigo) Close() error {
	return p.gray.Close()
}
