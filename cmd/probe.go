package cmd

import (
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/trainr/formtrack/internal/camera"
	"github.com/trainr/formtrack/internal/config"
	"github.com/trainr/formtrack/internal/exercise"
	"github.com/trainr/formtrack/internal/framesupplier"
	"github.com/trainr/formtrack/internal/overlay"
	"github.com/trainr/formtrack/internal/pose"
	"github.com/trainr/formtrack/internal/session"
)

type probeOptions struct {
	exercise string
	out      string
}

func newProbeCmd(a *app) *cobra.Command {
	var opts probeOptions
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check the model and camera by analysing a single frame",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.OutOrStdout(), a.cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.exercise, "exercise", exercise.BaselineID, "exercise whose angles are reported")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the annotated frame to this JPEG file")
	return cmd
}

func runProbe(w io.Writer, cfg *config.Config, opts probeOptions) error {
	registry, err := newRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to load exercises: %w", err)
	}
	ex := registry.Lookup(opts.exercise)

	estimator, err := newEstimator(cfg)
	if err != nil {
		fmt.Fprintf(w, "model:  FAIL %v\n", err)
		return err
	}
	defer estimator.Close()
	fmt.Fprintf(w, "model:  ok %s\n", cfg.Model.Path)

	dev, err := newDevice(cfg)
	if err != nil {
		return err
	}
	if err := dev.Open(); err != nil {
		fmt.Fprintf(w, "camera: FAIL %s: %v\n", dev.Name(), err)
		if opts.out != "" {
			img := overlay.New(overlay.DefaultOptions()).Placeholder(cfg.Camera.Width, cfg.Camera.Height, "Camera not available")
			if werr := writeJPEG(opts.out, func(f io.Writer) error { return jpeg.Encode(f, img, nil) }); werr != nil {
				return werr
			}
		}
		return fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, err)
	}
	defer dev.Close()

	frame, err := firstFrame(dev, cfg.Camera.StartupTimeout())
	if err != nil {
		fmt.Fprintf(w, "camera: FAIL %s: %v\n", dev.Name(), err)
		return err
	}
	fmt.Fprintf(w, "camera: ok %s %dx%d\n", dev.Name(), frame.Width, frame.Height)

	start := time.Now()
	est, out, err := session.Render(session.Deps{Estimator: estimator, JPEGQuality: cfg.Stream.JPEGQuality}, ex, frame)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pose:   %d/%d joints in %s\n", est.Count(), pose.NumJoints, time.Since(start).Round(time.Millisecond))
	for j := pose.JointID(0); j < pose.NumJoints; j++ {
		if kp, ok := est.Get(j); ok {
			fmt.Fprintf(w, "  %-10s x=%6.1f y=%6.1f conf=%.2f\n", j, kp.X, kp.Y, kp.Confidence)
		}
	}

	angles := exercise.Measure(ex, est)
	names := make([]string, 0, len(angles))
	for name := range angles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if a := angles[name]; a.Defined {
			fmt.Fprintf(w, "  %-16s %6.1f deg\n", name, a.Degrees)
		} else {
			fmt.Fprintf(w, "  %-16s undefined\n", name)
		}
	}

	if opts.out != "" {
		if err := writeJPEG(opts.out, func(f io.Writer) error { _, err := f.Write(out); return err }); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", opts.out)
	}
	return nil
}

// firstFrame reads until a valid frame arrives or timeout elapses.
func firstFrame(dev camera.Device, timeout time.Duration) (*framesupplier.Frame, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		frame, err := dev.Read()
		switch {
		case errors.Is(err, camera.ErrReadTimeout):
			continue
		case err != nil:
			return nil, err
		case frame.Valid():
			return frame, nil
		}
	}
	return nil, camera.ErrNoFirstFrame
}

func writeJPEG(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
