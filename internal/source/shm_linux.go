//go:build linux

package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// SharedMemory polls a ring published by a co-located estimator and returns
// the newest slot it has not returned before. Older unseen slots are
// skipped. The ring never ends on its own.
type SharedMemory struct {
	path      string
	fd        int
	data      []byte // mmap'd MAP_SHARED, PROT_READ
	slots     int
	keypoints int
	slotSize  int
	poll      time.Duration
	clk       clock.Clock
	log       *logger.Module

	seen    uint64
	skipped uint64

	copied func() // runs between a slot copy and the lap check
}

// OpenSharedMemory maps the ring, waiting up to cfg.OpenTimeout for the
// estimator to create it.
func OpenSharedMemory(ctx context.Context, cfg SharedMemoryConfig, clk clock.Clock) (*SharedMemory, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultShmPath
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Millisecond
	}
	log := logger.For("SharedMemory")

	fd, err := openWhenPresent(ctx, cfg, clk, log)
	if err != nil {
		return nil, err
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, &types.ConfigurationError{Field: "source.path", Reason: "cannot stat " + cfg.Path, Err: err}
	}
	if stat.Size < ShmHeaderSize {
		unix.Close(fd)
		return nil, types.NewConfigurationError("source.path", "%s is %d bytes, smaller than the ring header", cfg.Path, stat.Size)
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, &types.ConfigurationError{Field: "source.path", Reason: "cannot map " + cfg.Path, Err: err}
	}

	s := &SharedMemory{
		path: cfg.Path,
		fd:   fd,
		data: data,
		poll: cfg.PollInterval,
		clk:  clk,
		log:  log,
	}
	if err := s.validate(cfg.Keypoints); err != nil {
		s.Close()
		return nil, err
	}

	// Frames published before we attached are not replayed.
	s.seen = s.writeIndex()
	log.Info("Mapped %s: %d slots, %d keypoints, write index %d", cfg.Path, s.slots, s.keypoints, s.seen)
	return s, nil
}

func openWhenPresent(ctx context.Context, cfg SharedMemoryConfig, clk clock.Clock, log *logger.Module) (int, error) {
	deadline := clk.Now().Add(cfg.OpenTimeout)
	for attempt := 0; ; attempt++ {
		fd, err := unix.Open(cfg.Path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err == nil {
			return fd, nil
		}
		if !errors.Is(err, unix.ENOENT) || !clk.Now().Before(deadline) {
			return -1, &types.ConfigurationError{Field: "source.path", Reason: "cannot open " + cfg.Path, Err: err}
		}

		// Log waiting status only every 5 attempts to reduce noise
		if attempt%5 == 0 {
			log.Info("Waiting for %s to appear... (%d)", cfg.Path, attempt+1)
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-clk.After(time.Second):
		}
	}
}

func (s *SharedMemory) validate(keypoints int) error {
	if string(s.data[0:8]) != ShmMagic {
		return types.NewConfigurationError("source.path", "%s: bad magic %q", s.path, s.data[0:8])
	}
	s.slots = int(binary.LittleEndian.Uint32(s.data[shmOffSlots:]))
	s.keypoints = int(binary.LittleEndian.Uint32(s.data[shmOffKeypoints:]))
	s.slotSize = ShmSlotSize(s.keypoints)

	if s.slots <= 0 {
		return types.NewConfigurationError("source.path", "%s: ring has no slots", s.path)
	}
	if keypoints > 0 && s.keypoints != keypoints {
		return types.NewConfigurationError("source.path", "%s: ring carries %d keypoints, registry has %d", s.path, s.keypoints, keypoints)
	}
	if want := ShmSize(s.slots, s.keypoints); len(s.data) < want {
		return types.NewConfigurationError("source.path", "%s: %d bytes, layout needs %d", s.path, len(s.data), want)
	}
	return nil
}

func (s *SharedMemory) writeIndex() uint64 {
	return binary.LittleEndian.Uint64(s.data[shmOffWriteIndex:])
}

// readSlot copies a slot out of the mapping. A page fault from a truncated
// backing file becomes an error instead of SIGBUS.
func (s *SharedMemory) readSlot(i int) (buf []byte, err error) {
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading slot %d: %v", i, r)
		}
	}()

	off := ShmHeaderSize + i*s.slotSize
	buf = make([]byte, s.slotSize)
	copy(buf, s.data[off:off+s.slotSize])
	return buf, nil
}

// Next waits for a slot newer than the last one returned
func (s *SharedMemory) Next(ctx context.Context) (*types.Frame, *types.Pose, error) {
	if s.data == nil {
		return nil, nil, types.ErrEndOfStream
	}

	for {
		idx := s.writeIndex()
		if idx > s.seen {
			latest := idx - 1
			buf, err := s.readSlot(int(latest % uint64(s.slots)))
			if err != nil {
				return nil, nil, err
			}
			if s.copied != nil {
				s.copied()
			}
			// Once index latest+slots is published the writer may be
			// overwriting the slot we copied.
			if s.writeIndex()-latest >= uint64(s.slots) {
				continue
			}

			if gap := idx - s.seen - 1; gap > 0 {
				s.skipped += gap
				s.log.Debug("Skipped %d stale slots (total %d)", gap, s.skipped)
			}
			s.seen = idx
			return s.convert(decodeShmSlot(buf, s.keypoints))
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-s.clk.After(s.poll):
		}
	}
}

func (s *SharedMemory) convert(slot shmSlot) (*types.Frame, *types.Pose, error) {
	frame := &types.Frame{Seq: slot.frameNum, Timestamp: slot.captured}
	if !slot.present {
		return frame, nil, nil
	}
	pose := &types.Pose{Landmarks: make([]types.Coord, s.keypoints)}
	for i := range pose.Landmarks {
		pose.Landmarks[i] = types.Coord{
			float64(slot.xyz[i*3]),
			float64(slot.xyz[i*3+1]),
			float64(slot.xyz[i*3+2]),
		}
	}
	return frame, pose, nil
}

// Skipped returns how many published slots were never returned
func (s *SharedMemory) Skipped() uint64 { return s.skipped }

// Close unmaps the ring
func (s *SharedMemory) Close() error {
	if s.data == nil {
		return nil
	}
	var firstErr error
	if err := unix.Munmap(s.data); err != nil {
		firstErr = fmt.Errorf("unmapping %s: %w", s.path, err)
	}
	if err := unix.Close(s.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing %s: %w", s.path, err)
	}
	s.data = nil
	return firstErr
}
