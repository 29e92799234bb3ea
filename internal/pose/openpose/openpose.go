// Package openpose runs the OpenPose COCO body model through OpenCV's DNN
// module and decodes its part heatmaps into keypoints.
package openpose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/trainr/formtrack/internal/framesupplier"
	"github.com/trainr/formtrack/internal/pose"
)

var (
	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("openpose: model file not found")
	// ErrModelInvalid is returned when OpenCV cannot build a network from the file.
	ErrModelInvalid = errors.New("openpose: model could not be loaded")
)

// Config configures the estimator.
type Config struct {
	// ModelPath points at the frozen TensorFlow graph (graph_opt.pb).
	ModelPath string
	// InputSize is the square network input edge in pixels.
	InputSize int
	// ConfidenceFloor below which a heatmap peak is discarded.
	ConfidenceFloor float64
	// PoolSize is the number of network instances. Each instance serves one
	// inference at a time.
	PoolSize int
}

// Estimator implements pose.Estimator.
type Estimator struct {
	cfg    Config
	pool   chan *gocv.Net
	nets   []*gocv.Net
	logger *slog.Logger
}

// New loads cfg.PoolSize copies of the network. Any load failure is returned
// and nothing is kept open.
func New(cfg Config) (*Estimator, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 368
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = pose.DefaultConfidenceFloor
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelNotFound, cfg.ModelPath, err)
	}

	e := &Estimator{
		cfg:    cfg,
		pool:   make(chan *gocv.Net, cfg.PoolSize),
		logger: slog.With("component", "openpose"),
	}

	for i := 0; i < cfg.PoolSize; i++ {
		net := gocv.ReadNetFromTensorflow(cfg.ModelPath)
		if net.Empty() {
			_ = net.Close()
			e.Close()
			return nil, fmt.Errorf("%w: %s", ErrModelInvalid, cfg.ModelPath)
		}
		if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
			e.logger.Debug("set backend failed", "error", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
			e.logger.Debug("set target failed", "error", err)
		}
		e.nets = append(e.nets, &net)
		e.pool <- &net
	}

	e.logger.Info("model loaded",
		"path", cfg.ModelPath,
		"input_size", cfg.InputSize,
		"pool_size", cfg.PoolSize,
	)
	return e, nil
}

// Close releases every network. Must not race with Estimate.
func (e *Estimator) Close() {
	for _, n := range e.nets {
		_ = n.Close()
	}
	e.nets = nil
}

// Estimate runs one inference. It waits for a free network until ctx is done.
// Malformed frames and empty network output give an empty estimate.
func (e *Estimator) Estimate(ctx context.Context, frame *framesupplier.Frame) pose.Estimate {
	est := pose.Empty(time.Now())
	est.Floor = e.cfg.ConfidenceFloor
	if frame != nil {
		est.Timestamp = frame.Timestamp
	}
	if !frame.Valid() {
		return est
	}

	var net *gocv.Net
	select {
	case net = <-e.pool:
	case <-ctx.Done():
		return est
	}
	defer func() { e.pool <- net }()

	kps, err := e.infer(net, frame)
	if err != nil {
		e.logger.Debug("inference failed", "seq", frame.Seq, "error", err)
		return est
	}
	for _, kp := range kps {
		est.Set(kp)
	}
	return est
}

func (e *Estimator) infer(net *gocv.Net, frame *framesupplier.Frame) ([]pose.Keypoint, error) {
	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer img.Close()

	// Frames are already RGB, so no channel swap.
	blob := gocv.BlobFromImage(img, 1.0,
		image.Pt(e.cfg.InputSize, e.cfg.InputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0),
		false, false)
	defer blob.Close()

	net.SetInput(blob, "")
	out := net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, errors.New("empty network output")
	}
	shape := out.Size()
	if len(shape) != 4 || shape[1] < pose.NumJoints {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	hmH, hmW := shape[2], shape[3]

	kps := make([]pose.Keypoint, 0, pose.NumJoints)
	for j := 0; j < pose.NumJoints; j++ {
		heat := gocv.GetBlobChannel(out, 0, j)
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(heat)
		heat.Close()

		if float64(maxVal) <= e.cfg.ConfidenceFloor {
			continue
		}
		x, y := scalePoint(maxLoc, hmW, hmH, frame.Width, frame.Height)
		kps = append(kps, pose.Keypoint{
			Joint:      pose.JointID(j),
			X:          x,
			Y:          y,
			Confidence: float64(maxVal),
		})
	}
	return kps, nil
}

// scalePoint maps a heatmap cell to frame pixel coordinates.
func scalePoint(loc image.Point, hmW, hmH, frameW, frameH int) (float64, float64) {
	if hmW <= 0 || hmH <= 0 {
		return 0, 0
	}
	return float64(frameW) * float64(loc.X) / float64(hmW),
		float64(frameH) * float64(loc.Y) / float64(hmH)
}
