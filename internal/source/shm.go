package source

import (
	"encoding/binary"
	"math"
	"time"
)

// Shared memory ring layout. All integers are little-endian.
//
//	header (64 bytes)
//	  0  magic        [8]byte "POSESHM1"
//	  8  slot count   uint32
//	  12 keypoints    uint32
//	  16 write index  uint64  slots written so far; latest is index-1
//	slot (24 + keypoints*12 bytes), repeated slot-count times
//	  0  frame number uint64
//	  8  capture time int64   unix nanoseconds
//	  16 present      uint32  0 when nothing was detected
//	  20 reserved     uint32
//	  24 xyz          [keypoints][3]float32
const (
	ShmMagic        = "POSESHM1"
	ShmHeaderSize   = 64
	ShmSlotOverhead = 24

	shmOffSlots      = 8
	shmOffKeypoints  = 12
	shmOffWriteIndex = 16
)

// DefaultShmPath is where the estimator publishes its ring
const DefaultShmPath = "/dev/shm/pose_stream"

// ShmSlotSize returns the size of one ring slot
func ShmSlotSize(keypoints int) int {
	return ShmSlotOverhead + keypoints*12
}

// ShmSize returns the total mapping size for a ring
func ShmSize(slots, keypoints int) int {
	return ShmHeaderSize + slots*ShmSlotSize(keypoints)
}

// SharedMemoryConfig locates the ring
type SharedMemoryConfig struct {
	Path         string
	Keypoints    int
	OpenTimeout  time.Duration // how long to wait for the ring to appear
	PollInterval time.Duration
}

// shmSlot is a decoded ring slot
type shmSlot struct {
	frameNum uint64
	captured time.Time
	present  bool
	xyz      []float32
}

func decodeShmSlot(b []byte, keypoints int) shmSlot {
	s := shmSlot{
		frameNum: binary.LittleEndian.Uint64(b[0:]),
		captured: time.Unix(0, int64(binary.LittleEndian.Uint64(b[8:]))),
		present:  binary.LittleEndian.Uint32(b[16:]) != 0,
	}
	if s.present {
		s.xyz = make([]float32, keypoints*3)
		for i := range s.xyz {
			s.xyz[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[ShmSlotOverhead+i*4:]))
		}
	}
	return s
}

// EncodeShmSlot writes one slot in ring layout; xyz nil marks no detection.
// Estimator shims and tests use it to publish frames.
func EncodeShmSlot(b []byte, frameNum uint64, captured time.Time, xyz []float32) {
	binary.LittleEndian.PutUint64(b[0:], frameNum)
	binary.LittleEndian.PutUint64(b[8:], uint64(captured.UnixNano()))
	present := uint32(0)
	if xyz != nil {
		present = 1
	}
	binary.LittleEndian.PutUint32(b[16:], present)
	binary.LittleEndian.PutUint32(b[20:], 0)
	for i, v := range xyz {
		binary.LittleEndian.PutUint32(b[ShmSlotOverhead+i*4:], math.Float32bits(v))
	}
}

// EncodeShmHeader writes a ring header with the given write index
func EncodeShmHeader(b []byte, slots, keypoints int, writeIndex uint64) {
	copy(b[0:8], ShmMagic)
	binary.LittleEndian.PutUint32(b[shmOffSlots:], uint32(slots))
	binary.LittleEndian.PutUint32(b[shmOffKeypoints:], uint32(keypoints))
	binary.LittleEndian.PutUint64(b[shmOffWriteIndex:], writeIndex)
}
