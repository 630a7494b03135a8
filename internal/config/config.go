// Package config loads the streamer configuration. Values come from an
// optional YAML file layered over Default; command-line flags are applied
// by the caller before Validate. The result is read once at startup and is
// not changed while streaming.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/keypoint"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/oscwire"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/transport"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// Default UDP endpoint of pose receivers
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 12345
)

// Config represents the complete streamer configuration
type Config struct {
	// Keypoints is the canonical keypoint order; empty selects the 33-name
	// BlazePose vocabulary.
	Keypoints     []string        `yaml:"keypoints"`
	Source        SourceConfig    `yaml:"source"`
	Transport     TransportConfig `yaml:"transport"`
	Preview       PreviewConfig   `yaml:"preview"`
	Admin         AdminConfig     `yaml:"admin"`
	Record        RecordConfig    `yaml:"record"`
	Log           LogConfig       `yaml:"log"`
	TraceKeypoint string          `yaml:"trace_keypoint"` // log this keypoint's coordinates per bundle
	Stats         bool            `yaml:"stats"`          // print run statistics at exit
}

// SourceConfig selects the acquisition source
type SourceConfig struct {
	Kind        string        `yaml:"kind"`    // synthetic, replay, worker, stdin, shm
	Path        string        `yaml:"path"`    // replay file or shared memory path
	Command     []string      `yaml:"command"` // worker command line
	Codec       string        `yaml:"codec"`   // msgpack or cbor
	FPS         float64       `yaml:"fps"`
	MaxFrames   uint64        `yaml:"max_frames"`
	MissEvery   int           `yaml:"miss_every"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// TransportConfig selects where bundles go
type TransportConfig struct {
	Kind        string   `yaml:"kind"` // udp or webrtc
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Precision   string   `yaml:"precision"` // float32 or float64
	STUNServers []string `yaml:"stun_servers"`
	Label       string   `yaml:"label"` // webrtc data channel label
}

// PreviewConfig controls the annotated preview and quit-key handling
type PreviewConfig struct {
	Enabled  bool `yaml:"enabled"`
	Width    int  `yaml:"width"`
	Quality  int  `yaml:"quality"`
	Keyboard bool `yaml:"keyboard"`
}

// AdminConfig controls the HTTP admin server
type AdminConfig struct {
	Addr  string `yaml:"addr"` // empty disables the server
	Pprof bool   `yaml:"pprof"`
}

// RecordConfig controls pose recording
type RecordConfig struct {
	Dir   string `yaml:"dir"`   // base directory for relative and generated names
	File  string `yaml:"file"`  // start recording to this file at launch
	Codec string `yaml:"codec"` // msgpack or cbor
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:        source.KindSynthetic,
			Codec:       string(source.CodecMsgpack),
			FPS:         30,
			OpenTimeout: 30 * time.Second,
		},
		Transport: TransportConfig{
			Kind:        transport.KindUDP,
			Host:        DefaultHost,
			Port:        DefaultPort,
			Precision:   "float32",
			STUNServers: []string{"stun:stun.l.google.com:19302"},
			Label:       transport.DefaultChannelLabel,
		},
		Preview: PreviewConfig{
			Enabled:  true,
			Width:    640,
			Quality:  75,
			Keyboard: true,
		},
		Record: RecordConfig{
			Dir:   "./recordings",
			Codec: string(source.CodecMsgpack),
		},
		Log: LogConfig{
			Level: "info",
			Color: false,
		},
	}
}

// Load reads a YAML file over Default and validates the result
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads a YAML file over Default without validating, so flags can
// still be layered on top.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "config", Reason: "cannot read " + path, Err: err}
	}
	return Parse(data)
}

// Parse decodes YAML over Default without validating. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &types.ConfigurationError{Field: "config", Reason: "failed to parse config", Err: err}
	}
	return cfg, nil
}

// ApplyInput configures the source from a -i/--input value:
//
//	synthetic              generated test skeleton
//	stdin or -             length-prefixed records on stdin
//	exec:<cmd> [args...]   spawn a worker process
//	shm[:<path>]           shared memory ring
//	<file>.json            replay a recorded pose file
func (c *Config) ApplyInput(input string) error {
	switch {
	case input == source.KindSynthetic:
		c.Source.Kind = source.KindSynthetic
	case input == source.KindStdin || input == "-":
		c.Source.Kind = source.KindStdin
	case strings.HasPrefix(input, "exec:"):
		cmd := strings.Fields(strings.TrimPrefix(input, "exec:"))
		if len(cmd) == 0 {
			return types.NewConfigurationError("input", "exec: needs a command")
		}
		c.Source.Kind = source.KindWorker
		c.Source.Command = cmd
	case input == source.KindShm || strings.HasPrefix(input, "shm:"):
		c.Source.Kind = source.KindShm
		c.Source.Path = strings.TrimPrefix(strings.TrimPrefix(input, source.KindShm), ":")
	case strings.HasSuffix(strings.ToLower(input), ".json"):
		c.Source.Kind = source.KindReplay
		c.Source.Path = input
	default:
		return types.NewConfigurationError("input", "unsupported input %q (want synthetic, stdin, exec:<cmd>, shm[:<path>] or a .json replay)", input)
	}
	return nil
}

// Validate checks the configuration. The first problem found is returned
// as a *types.ConfigurationError.
func (c *Config) Validate() error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}

	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}

	if c.TraceKeypoint != "" {
		if _, ok := reg.Lookup(c.TraceKeypoint); !ok {
			return types.NewConfigurationError("trace_keypoint", "unknown keypoint %q", c.TraceKeypoint)
		}
	}

	if _, err := source.ParseCodec(c.Record.Codec); err != nil {
		return &types.ConfigurationError{Field: "record.codec", Reason: "unsupported codec", Err: err}
	}

	if c.Preview.Width < 0 {
		return types.NewConfigurationError("preview.width", "must not be negative, got %d", c.Preview.Width)
	}
	if c.Preview.Quality < 0 || c.Preview.Quality > 100 {
		return types.NewConfigurationError("preview.quality", "must be within 0-100, got %d", c.Preview.Quality)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return &types.ConfigurationError{Field: "log.level", Reason: "want debug, info, warn, error or silent", Err: err}
	}
	return nil
}

// LogLevel returns the parsed log level; call after Validate
func (c *Config) LogLevel() logger.LogLevel {
	level, _ := logger.ParseLevel(c.Log.Level)
	return level
}

func (c *Config) validateSource() error {
	s := &c.Source
	switch s.Kind {
	case source.KindSynthetic, source.KindStdin:
	case source.KindReplay:
		if s.Path == "" {
			return types.NewConfigurationError("source.path", "replay source needs a file")
		}
	case source.KindWorker:
		if len(s.Command) == 0 || s.Command[0] == "" {
			return types.NewConfigurationError("source.command", "worker source needs a command")
		}
	case source.KindShm:
		if s.Path == "" {
			s.Path = source.DefaultShmPath
		}
	default:
		return types.NewConfigurationError("source.kind", "unknown source %q", s.Kind)
	}

	if _, err := source.ParseCodec(s.Codec); err != nil {
		return &types.ConfigurationError{Field: "source.codec", Reason: "unsupported codec", Err: err}
	}
	if s.FPS < 0 {
		return types.NewConfigurationError("source.fps", "must not be negative, got %g", s.FPS)
	}
	if s.MissEvery < 0 {
		return types.NewConfigurationError("source.miss_every", "must not be negative, got %d", s.MissEvery)
	}
	if s.Width < 0 || s.Height < 0 {
		return types.NewConfigurationError("source.width", "image size must not be negative")
	}
	return nil
}

func (c *Config) validateTransport() error {
	t := &c.Transport
	switch t.Kind {
	case transport.KindUDP:
		if t.Host == "" {
			return types.NewConfigurationError("transport.host", "host is required")
		}
		if t.Port <= 0 || t.Port > 65535 {
			return types.NewConfigurationError("transport.port", "port %d out of range 1-65535", t.Port)
		}
	case transport.KindWebRTC:
		if c.Admin.Addr == "" {
			return types.NewConfigurationError("admin.addr", "webrtc transport needs the admin server for signaling")
		}
	default:
		return types.NewConfigurationError("transport.kind", "unknown transport %q (want udp or webrtc)", t.Kind)
	}

	if _, err := oscwire.ParsePrecision(t.Precision); err != nil {
		return &types.ConfigurationError{Field: "transport.precision", Reason: "want float32 or float64", Err: err}
	}
	return nil
}

// Precision returns the parsed wire precision; call after Validate
func (c *Config) Precision() oscwire.Precision {
	p, _ := oscwire.ParsePrecision(c.Transport.Precision)
	return p
}

// Registry builds the keypoint registry named by the configuration
func (c *Config) Registry() (*keypoint.Registry, error) {
	if len(c.Keypoints) == 0 {
		return keypoint.Default(), nil
	}
	return keypoint.Build(c.Keypoints)
}

// SourceOptions converts the source section for source.Open
func (c *Config) SourceOptions() source.Options {
	return source.Options{
		Kind:        c.Source.Kind,
		Path:        c.Source.Path,
		Command:     c.Source.Command,
		Codec:       source.Codec(c.Source.Codec),
		FPS:         c.Source.FPS,
		MaxFrames:   c.Source.MaxFrames,
		MissEvery:   c.Source.MissEvery,
		Width:       c.Source.Width,
		Height:      c.Source.Height,
		OpenTimeout: c.Source.OpenTimeout,
	}
}

// Endpoint returns host:port for display
func (c *Config) Endpoint() string {
	if c.Transport.Kind == transport.KindWebRTC {
		return fmt.Sprintf("webrtc via %s", c.Admin.Addr)
	}
	return fmt.Sprintf("%s:%d", c.Transport.Host, c.Transport.Port)
}
