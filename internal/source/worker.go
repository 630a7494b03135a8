package source

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// WorkerConfig describes the external pose-estimation process
type WorkerConfig struct {
	Command []string
	Codec   Codec
}

// Worker runs a pose estimator as a child process and reads its records
// from stdout. The process exiting ends the stream.
type Worker struct {
	*Stream

	cmd    *exec.Cmd
	cancel context.CancelFunc
	log    *logger.Module

	stderrDone sync.WaitGroup
	closeOnce  sync.Once
	closeErr   error
}

// StartWorker spawns the worker process
func StartWorker(ctx context.Context, cfg WorkerConfig, clk clock.Clock) (*Worker, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, types.NewConfigurationError("source.command", "worker command is required")
	}
	codec, err := ParseCodec(string(cfg.Codec))
	if err != nil {
		return nil, &types.ConfigurationError{Field: "source.codec", Reason: "unsupported codec", Err: err}
	}

	// The worker outlives the caller's startup context; Close stops it.
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(wctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &types.ConfigurationError{Field: "source.command", Reason: "cannot start " + cfg.Command[0], Err: err}
	}

	w := &Worker{
		cmd:    cmd,
		cancel: cancel,
		log:    logger.For("Worker"),
	}
	w.log.Info("Spawned %s (pid %d, codec %s)", strings.Join(cfg.Command, " "), cmd.Process.Pid, codec)

	w.stderrDone.Add(1)
	go w.logStderr(bufio.NewScanner(stderr))

	w.Stream = NewStream(stdout, codec, "worker", clk)
	return w, nil
}

// logStderr forwards worker log lines at a matching level
func (w *Worker) logStderr(scanner *bufio.Scanner) {
	defer w.stderrDone.Done()

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case containsAny(line, "[ERROR]", "[CRITICAL]", "Traceback"):
			w.log.Error("worker: %s", line)
		case containsAny(line, "[WARNING]", "[WARN]"):
			w.log.Warn("worker: %s", line)
		default:
			w.log.Debug("worker: %s", line)
		}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Close stops reading, terminates the process and reaps it
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.Stream.Close()
		w.cancel()

		err := w.cmd.Wait()
		w.stderrDone.Wait()

		if err != nil {
			// Killed by our own cancel: expected
			if exitErr, ok := err.(*exec.ExitError); ok && !exitErr.Exited() {
				w.log.Debug("Worker stopped: %v", err)
				return
			}
			w.closeErr = fmt.Errorf("worker exited: %w", err)
			return
		}
		w.log.Info("Worker exited cleanly")
	})
	return w.closeErr
}
