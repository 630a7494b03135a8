// posestream reads per-frame pose landmarks from a pose source and streams
// them as one OSC bundle per frame to a UDP endpoint or a WebRTC data
// channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/admin"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/oscwire"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/render"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/stream"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/transport"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "posestream: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, errExit) {
			return nil
		}
		return err
	}

	logger.Init(cfg.LogLevel(), os.Stderr, cfg.Log.Color)
	log := logger.For("Main")

	runID := uuid.NewString()
	log.Info("posestream %s starting (run %s)", version, runID)
	log.Info("Log level: %s", cfg.LogLevel())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	clk := clock.Real()
	m := metrics.New()

	tr, signaler, err := openTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	renderer := openRenderer(cfg, log)
	rec := recorder.NewRecorder(cfg.Record.Dir, source.Codec(cfg.Record.Codec))
	sink := &sinkGuard{sink: recorder.NewSink(renderer, rec)}
	defer sink.release(log)

	if cfg.Record.File != "" {
		if _, err := rec.Start(cfg.Record.File); err != nil {
			return err
		}
	}

	// First signal asks the loop to stop after the current frame; a second
	// one cancels a source stuck waiting for input.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("Received %s, stopping (repeat to force)", sig)
			renderer.RequestQuit()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			log.Warn("Forcing stop")
			cancel()
		case <-ctx.Done():
		}
	}()

	src, err := source.Open(ctx, cfg.SourceOptions(), reg, clk)
	if err != nil {
		return err
	}

	loop, err := stream.NewLoop(stream.Config{
		Source:        src,
		Sink:          sink.sink,
		Encoder:       oscwire.NewEncoder(reg, clk, cfg.Precision()),
		Transport:     tr,
		Metrics:       m,
		Clock:         clk,
		TraceKeypoint: cfg.TraceKeypoint,
	})
	if err != nil {
		src.Close()
		return err
	}

	if cfg.Admin.Addr != "" {
		srv := admin.NewServer(admin.Config{
			Addr:      cfg.Admin.Addr,
			Pprof:     cfg.Admin.Pprof,
			RunID:     runID,
			Transport: tr.String(),
			Metrics:   m,
			State:     func() string { return loop.State().String() },
			Overlay:   renderer.Overlay(),
			Quitter:   renderer,
			Signaler:  signaler,
			Recorder:  rec,
		})
		if err := srv.Start(); err != nil {
			src.Close()
			return err
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Admin shutdown: %v", err)
			}
		}()
	}

	sink.handOff()
	reason, err := loop.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("Run %s finished: %s", runID, reason)

	if cfg.Stats {
		fmt.Fprintln(os.Stdout, loop.Summary())
	}
	return nil
}

// sinkGuard closes the sink when startup fails before the loop runs. Once
// handed off, the loop's teardown is the only close.
type sinkGuard struct {
	sink      render.Sink
	handedOff bool
}

func (g *sinkGuard) handOff() { g.handedOff = true }

func (g *sinkGuard) release(log *logger.Module) {
	if g.handedOff {
		return
	}
	if err := g.sink.Close(); err != nil {
		log.Warn("Closing sink: %v", err)
	}
}

// openTransport returns the configured transport and, for WebRTC, the
// signaler the admin server answers offers with.
func openTransport(cfg *config.Config) (transport.Transport, admin.Signaler, error) {
	if cfg.Transport.Kind == transport.KindWebRTC {
		dc := transport.NewDataChannel(transport.DataChannelConfig{
			STUNServers: cfg.Transport.STUNServers,
			Label:       cfg.Transport.Label,
		})
		return dc, dc, nil
	}

	udp, err := transport.NewUDP(cfg.Transport.Host, cfg.Transport.Port)
	if err != nil {
		return nil, nil, err
	}
	return udp, nil, nil
}

// openRenderer builds the preview overlay and quit-key watcher. A missing
// terminal only disables the quit key.
func openRenderer(cfg *config.Config, log *logger.Module) *render.Renderer {
	var overlay *render.Overlay
	if cfg.Preview.Enabled {
		overlay = render.NewOverlay(render.OverlayConfig{
			Width:   cfg.Preview.Width,
			Quality: cfg.Preview.Quality,
		})
	}

	var keyboard *render.Keyboard
	if cfg.Preview.Keyboard {
		kb, err := openKeyboard(cfg.Source.Kind)
		switch {
		case errors.Is(err, render.ErrNotTerminal):
			log.Debug("No terminal, quit key disabled")
		case err != nil:
			log.Warn("Quit key disabled: %v", err)
		default:
			log.Info("Press q or Esc to stop")
			keyboard = kb
		}
	}
	return render.NewRenderer(overlay, keyboard)
}

// openKeyboard watches stdin, or the controlling terminal when stdin
// carries pose records.
func openKeyboard(sourceKind string) (*render.Keyboard, error) {
	if sourceKind != source.KindStdin {
		return render.OpenKeyboard(os.Stdin)
	}
	tty, err := os.Open("/dev/tty")
	if err != nil {
		return nil, render.ErrNotTerminal
	}
	kb, err := render.OpenKeyboard(tty)
	if err != nil {
		tty.Close()
		return nil, err
	}
	return kb, nil
}
