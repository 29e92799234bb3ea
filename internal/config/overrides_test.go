package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverridesFromEnv(t *testing.T) {
	t.Setenv("FORMTRACK_CAMERA_INDEX", "2")
	t.Setenv("FORMTRACK_CAMERA_BACKEND", "synthetic")
	t.Setenv("FORMTRACK_SERVER_PORT", "9090")

	cfg := Default()
	require.NoError(t, ApplyOverrides(cfg, NewViper()))

	assert.Equal(t, 2, cfg.Camera.Index)
	assert.Equal(t, "synthetic", cfg.Camera.Backend)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "graph_opt.pb", cfg.Model.Path, "unset keys keep file values")
}

func TestApplyOverridesFromFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("model", "", "")
	fs.Int("port", 0, "")
	require.NoError(t, fs.Parse([]string{"--model", "/opt/models/pose.pb"}))

	v := NewViper()
	require.NoError(t, v.BindPFlag(KeyModelPath, fs.Lookup("model")))
	require.NoError(t, v.BindPFlag(KeyPort, fs.Lookup("port")))

	cfg := Default()
	cfg.Server.Port = 7000
	require.NoError(t, ApplyOverrides(cfg, v))

	assert.Equal(t, "/opt/models/pose.pb", cfg.Model.Path)
	assert.Equal(t, 7000, cfg.Server.Port, "unchanged flag does not override")
}

func TestApplyOverridesValidates(t *testing.T) {
	v := NewViper()
	v.Set(KeyBackend, "firewire")

	err := ApplyOverrides(Default(), v)
	assert.Error(t, err)
}
