// Package oscwire turns poses into OSC messages and bundles.
//
// Wire contract: one bundle per detected frame, timetag = wall clock at
// encode time, one message per registry keypoint in registry order, address
// "/pose/<name>", arguments x, y, z. Arguments are OSC float32 ('f') by
// default, or float64 ('d') with PrecisionFloat64. The bundle timetag is a
// standard NTP timestamp (seconds since 1900, 32-bit binary fraction).
package oscwire

import (
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/keypoint"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// AddressPrefix is prepended to every keypoint name
const AddressPrefix = "/pose/"

// Precision selects the OSC numeric type of coordinate arguments
type Precision int

const (
	PrecisionFloat32 Precision = iota
	PrecisionFloat64
)

// ParsePrecision parses "float32"/"f" or "float64"/"d"
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "float32", "f", "32":
		return PrecisionFloat32, nil
	case "float64", "d", "64", "double":
		return PrecisionFloat64, nil
	default:
		return PrecisionFloat32, fmt.Errorf("invalid precision: %s", s)
	}
}

func (p Precision) String() string {
	if p == PrecisionFloat64 {
		return "float64"
	}
	return "float32"
}

// Address returns the OSC address for a keypoint name
func Address(name string) string {
	return AddressPrefix + name
}

// EncodeMessage builds the message for one keypoint. Values are passed
// through unchanged apart from the float32 conversion.
func EncodeMessage(kp keypoint.Keypoint, c types.Coord, p Precision) *osc.Message {
	msg := osc.NewMessage(Address(kp.Name))
	if p == PrecisionFloat64 {
		msg.Append(c[0], c[1], c[2])
	} else {
		msg.Append(float32(c[0]), float32(c[1]), float32(c[2]))
	}
	return msg
}

// EncodeFrame builds one bundle for a pose. The pose must carry exactly one
// coordinate triple per registry entry.
func EncodeFrame(pose *types.Pose, reg *keypoint.Registry, clk clock.Clock, p Precision) (*osc.Bundle, error) {
	return encodeAt(pose, reg, clk.Now(), p)
}

func encodeAt(pose *types.Pose, reg *keypoint.Registry, ts time.Time, p Precision) (*osc.Bundle, error) {
	if pose == nil || len(pose.Landmarks) != reg.Len() {
		return nil, &types.EncodingError{Want: reg.Len(), Got: pose.Len()}
	}

	bundle := osc.NewBundle(ts)
	for _, kp := range reg.All() {
		if err := bundle.Append(EncodeMessage(kp, pose.Landmarks[kp.Index], p)); err != nil {
			return nil, fmt.Errorf("append %s: %w", kp.Name, err)
		}
	}
	return bundle, nil
}

// Encoder binds a registry, clock and precision for the stream loop. Bundle
// timestamps never go backwards within one Encoder. Not safe for concurrent
// use.
type Encoder struct {
	registry  *keypoint.Registry
	clock     clock.Clock
	precision Precision
	last      time.Time
}

// NewEncoder creates an encoder
func NewEncoder(reg *keypoint.Registry, clk clock.Clock, p Precision) *Encoder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Encoder{registry: reg, clock: clk, precision: p}
}

// Registry returns the registry used for addressing
func (e *Encoder) Registry() *keypoint.Registry {
	return e.registry
}

// Precision returns the configured argument precision
func (e *Encoder) Precision() Precision {
	return e.precision
}

// EncodeFrame encodes a pose, stamped with the current clock reading
func (e *Encoder) EncodeFrame(pose *types.Pose) (*osc.Bundle, error) {
	ts := e.clock.Now()
	if ts.Before(e.last) {
		ts = e.last
	}

	bundle, err := encodeAt(pose, e.registry, ts, e.precision)
	if err != nil {
		return nil, err
	}
	e.last = ts
	return bundle, nil
}
