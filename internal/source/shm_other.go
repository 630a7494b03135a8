//go:build !linux

package source

import (
	"context"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// SharedMemory is only available on linux
type SharedMemory struct{}

// OpenSharedMemory always fails on this platform
func OpenSharedMemory(ctx context.Context, cfg SharedMemoryConfig, clk clock.Clock) (*SharedMemory, error) {
	return nil, types.NewConfigurationError("source.kind", "shared memory source requires linux")
}

func (s *SharedMemory) Next(ctx context.Context) (*types.Frame, *types.Pose, error) {
	return nil, nil, types.ErrEndOfStream
}

func (s *SharedMemory) Close() error { return nil }
