package source

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

const helperEnv = "POSESTREAM_WORKER_HELPER"

// TestWorkerHelperProcess is the fake estimator run by the worker tests.
func TestWorkerHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}

	switch mode {
	case "records":
		fmt.Fprintln(os.Stderr, "[INFO] model loaded")
		for i := uint64(1); i <= 2; i++ {
			rec := &Record{Seq: i, TS: 1700000000, Landmarks: [][]float64{{0.1, 0.2, 0.3}}}
			if err := WriteRecord(os.Stdout, CodecCBOR, rec); err != nil {
				os.Exit(1)
			}
		}
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "[ERROR] camera not found")
		os.Exit(3)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func helperCommand(t *testing.T, mode string) []string {
	t.Setenv(helperEnv, mode)
	return []string{os.Args[0], "-test.run=^TestWorkerHelperProcess$"}
}

func TestWorkerReadsRecordsUntilExit(t *testing.T) {
	w, err := StartWorker(context.Background(), WorkerConfig{
		Command: helperCommand(t, "records"),
		Codec:   CodecCBOR,
	}, clock.NewFake(epoch))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := uint64(1); i <= 2; i++ {
		frame, pose, err := w.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, i, frame.Seq)
		require.Equal(t, 1, pose.Len())
	}
	_, _, err = w.Next(ctx)
	require.ErrorIs(t, err, types.ErrEndOfStream)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWorkerNonZeroExitReportedOnClose(t *testing.T) {
	w, err := StartWorker(context.Background(), WorkerConfig{
		Command: helperCommand(t, "fail"),
	}, clock.NewFake(epoch))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _, err = w.Next(ctx)
	require.ErrorIs(t, err, types.ErrEndOfStream)

	require.Error(t, w.Close())
}

func TestWorkerCloseStopsRunningProcess(t *testing.T) {
	w, err := StartWorker(context.Background(), WorkerConfig{
		Command: helperCommand(t, "hang"),
	}, clock.NewFake(epoch))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = w.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- w.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not stop the worker")
	}
}

func TestStartWorkerRejectsBadConfig(t *testing.T) {
	var cfgErr *types.ConfigurationError

	_, err := StartWorker(context.Background(), WorkerConfig{}, clock.Real())
	require.ErrorAs(t, err, &cfgErr)

	_, err = StartWorker(context.Background(), WorkerConfig{Command: []string{"true"}, Codec: "xml"}, clock.Real())
	require.ErrorAs(t, err, &cfgErr)

	_, err = StartWorker(context.Background(), WorkerConfig{Command: []string{"/nonexistent/estimator"}}, clock.Real())
	require.ErrorAs(t, err, &cfgErr)
}
