// Package cmd implements the formtrackd command line.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/trainr/formtrack/internal/config"
)

const defaultConfigPath = "config/formtrack.yaml"

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configPath string
	debug      bool
	cfg        *config.Config
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "formtrackd",
		Short:         "Real-time exercise form analysis over an MJPEG stream",
		Long:          "formtrackd reads a shared webcam, estimates body keypoints per frame, checks joint angles against exercise rules, counts good and bad reps and streams the annotated video to browsers at /video-feed.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultConfigPath, "path to configuration file")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.String("log-format", "", "log output format: json or text")
	pf.String("backend", "", "camera backend: opencv, gstreamer or synthetic")
	pf.Int("camera-index", 0, "camera device index")
	pf.String("device", "", "camera device path (gstreamer backend)")
	pf.String("model", "", "path to the keypoint model graph")
	pf.String("exercises", "", "YAML file with extra exercise definitions")
	a.bind(pf.Lookup("log-format"), config.KeyLogFormat)
	a.bind(pf.Lookup("backend"), config.KeyBackend)
	a.bind(pf.Lookup("camera-index"), config.KeyCameraIndex)
	a.bind(pf.Lookup("device"), config.KeyDevicePath)
	a.bind(pf.Lookup("model"), config.KeyModelPath)
	a.bind(pf.Lookup("exercises"), config.KeyExercisesFile)

	rootCmd.AddCommand(
		newServeCmd(a),
		newProbeCmd(a),
		newExercisesCmd(a),
	)

	return rootCmd
}

// load resolves the configuration from file, flags and environment and
// installs the process logger.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyOverrides(cfg, a.v); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	slog.SetDefault(newLogger(cfg.Log))
	slog.Debug("configuration loaded",
		"config", a.configPath,
		"backend", cfg.Camera.Backend,
		"addr", cfg.Server.Addr(),
	)
	return nil
}

// bind routes a flag to a config override key.
func (a *app) bind(f *pflag.Flag, key string) {
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
