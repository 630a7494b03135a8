package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// errExit ends the run successfully after --help or --version
var errExit = errors.New("exit")

// parseConfig builds the run configuration: Default, then the --config
// file, then every flag the user actually set.
func parseConfig(args []string, out io.Writer) (*config.Config, error) {
	flagSet := pflag.NewFlagSet("posestream", pflag.ContinueOnError)
	flagSet.SetOutput(out)

	var (
		configPath  string
		input       string
		showVersion bool
		noPreview   bool
		noKeyboard  bool
	)
	def := config.Default()

	flagSet.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flagSet.StringVarP(&input, "input", "i", "", "pose input: synthetic, stdin or -, exec:<cmd>, shm[:<path>] or a .json replay")
	flagSet.StringSlice("keypoints", nil, "keypoint names in canonical order (default BlazePose 33)")
	flagSet.String("codec", def.Source.Codec, "record codec for stdin and exec inputs (msgpack, cbor)")
	flagSet.Float64("fps", def.Source.FPS, "pace synthetic and replay inputs (0 = as fast as possible)")
	flagSet.Uint64("max-frames", 0, "stop a synthetic input after this many frames (0 = unlimited)")
	flagSet.String("transport", def.Transport.Kind, "bundle transport (udp, webrtc)")
	flagSet.String("host", def.Transport.Host, "UDP destination host")
	flagSet.IntP("port", "p", def.Transport.Port, "UDP destination port")
	flagSet.String("precision", def.Transport.Precision, "coordinate precision (float32, float64)")
	flagSet.String("admin", "", "admin HTTP address, e.g. 127.0.0.1:8081 (empty disables)")
	flagSet.Bool("pprof", false, "serve pprof on the admin server")
	flagSet.BoolVar(&noPreview, "no-preview", false, "disable the annotated preview")
	flagSet.BoolVar(&noKeyboard, "no-keyboard", false, "do not watch the terminal for the quit key")
	flagSet.String("record", "", "record acquired poses to this file from startup")
	flagSet.String("record-dir", def.Record.Dir, "directory for relative and admin-started recordings")
	flagSet.String("trace-keypoint", "", "log this keypoint's coordinates for every bundle")
	flagSet.String("log-level", def.Log.Level, "log level (debug, info, warn, error, silent)")
	flagSet.Bool("log-color", def.Log.Color, "enable colored log output")
	flagSet.BoolP("stats", "s", false, "print run statistics at exit")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, errExit
		}
		return nil, types.NewConfigurationError("flags", "%v", err)
	}
	if showVersion {
		fmt.Fprintf(out, "posestream %s\n", version)
		return nil, errExit
	}
	if flagSet.NArg() > 0 {
		return nil, types.NewConfigurationError("flags", "unexpected arguments: %v", flagSet.Args())
	}

	cfg := def
	if configPath != "" {
		var err error
		if cfg, err = config.Read(configPath); err != nil {
			return nil, err
		}
	}

	if input != "" {
		if err := cfg.ApplyInput(input); err != nil {
			return nil, err
		}
	}

	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "keypoints":
			cfg.Keypoints, _ = flagSet.GetStringSlice(f.Name)
		case "codec":
			cfg.Source.Codec = f.Value.String()
		case "fps":
			cfg.Source.FPS, _ = flagSet.GetFloat64(f.Name)
		case "max-frames":
			cfg.Source.MaxFrames, _ = flagSet.GetUint64(f.Name)
		case "transport":
			cfg.Transport.Kind = f.Value.String()
		case "host":
			cfg.Transport.Host = f.Value.String()
		case "port":
			cfg.Transport.Port, _ = flagSet.GetInt(f.Name)
		case "precision":
			cfg.Transport.Precision = f.Value.String()
		case "admin":
			cfg.Admin.Addr = f.Value.String()
		case "pprof":
			cfg.Admin.Pprof, _ = flagSet.GetBool(f.Name)
		case "record":
			cfg.Record.File = f.Value.String()
		case "record-dir":
			cfg.Record.Dir = f.Value.String()
		case "trace-keypoint":
			cfg.TraceKeypoint = f.Value.String()
		case "log-level":
			cfg.Log.Level = f.Value.String()
		case "log-color":
			cfg.Log.Color, _ = flagSet.GetBool(f.Name)
		case "stats":
			cfg.Stats, _ = flagSet.GetBool(f.Name)
		}
	})
	if noPreview {
		cfg.Preview.Enabled = false
	}
	if noKeyboard {
		cfg.Preview.Keyboard = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
