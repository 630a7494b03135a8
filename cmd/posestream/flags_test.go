package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  host: 10.0.0.5\n  port: 7000\nstats: false\n"), 0o644))

	cfg, err := parseConfig([]string{
		"-c", path,
		"-p", "7001",
		"-i", "exec:python3 worker.py",
		"--codec", "cbor",
		"--precision", "float64",
		"--no-preview",
		"--trace-keypoint", "nose",
		"-s",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	// File value survives where no flag was given
	require.Equal(t, "10.0.0.5", cfg.Transport.Host)
	require.Equal(t, 7001, cfg.Transport.Port)
	require.Equal(t, source.KindWorker, cfg.Source.Kind)
	require.Equal(t, []string{"python3", "worker.py"}, cfg.Source.Command)
	require.Equal(t, "cbor", cfg.Source.Codec)
	require.Equal(t, "float64", cfg.Transport.Precision)
	require.False(t, cfg.Preview.Enabled)
	require.True(t, cfg.Preview.Keyboard)
	require.Equal(t, "nose", cfg.TraceKeypoint)
	require.True(t, cfg.Stats)
}

func TestParseConfigKeypointsFlag(t *testing.T) {
	cfg, err := parseConfig([]string{"--keypoints", "nose,left_wrist", "--trace-keypoint", "left_wrist"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, []string{"nose", "left_wrist"}, cfg.Keypoints)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"unknown flag", []string{"--bogus"}, "flags"},
		{"stray argument", []string{"extra"}, "flags"},
		{"bad input", []string{"-i", "camera0"}, "input"},
		{"bad port", []string{"--port", "0"}, "transport.port"},
		{"bad transport", []string{"--transport", "tcp"}, "transport.kind"},
		{"webrtc without admin", []string{"--transport", "webrtc"}, "admin.addr"},
		{"unknown trace keypoint", []string{"--trace-keypoint", "tail"}, "trace_keypoint"},
		{"missing config file", []string{"--config", "/nonexistent/posestream.yaml"}, "config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args, &bytes.Buffer{})
			var cfgErr *types.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestVersionAndHelpExitCleanly(t *testing.T) {
	var out bytes.Buffer
	_, err := parseConfig([]string{"--version"}, &out)
	require.ErrorIs(t, err, errExit)
	require.Equal(t, "posestream dev\n", out.String())

	out.Reset()
	_, err = parseConfig([]string{"-h"}, &out)
	require.ErrorIs(t, err, errExit)
	require.Contains(t, out.String(), "--input")
}
