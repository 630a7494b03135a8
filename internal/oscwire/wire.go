package oscwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

const (
	bundleTag = "#bundle\x00"

	// seconds between 1900-01-01 and 1970-01-01
	ntpEpochOffset = 2208988800
)

// NTPTimetag converts t to a 64-bit OSC/NTP fixed-point time tag
func NTPTimetag(t time.Time) uint64 {
	secs := uint64(t.Unix() + ntpEpochOffset)
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return secs<<32 | frac
}

// TimeFromNTP converts an OSC/NTP time tag back to wall-clock time
func TimeFromNTP(tag uint64) time.Time {
	secs := int64(tag>>32) - ntpEpochOffset
	nanos := ((tag&0xffffffff)*uint64(time.Second) + 1<<31) >> 32
	return time.Unix(secs, int64(nanos))
}

// Marshal serializes a bundle to one datagram payload: the "#bundle" tag,
// the NTP timetag, then each message prefixed by its int32 size.
func Marshal(b *osc.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(bundleTag)

	var tag [8]byte
	binary.BigEndian.PutUint64(tag[:], NTPTimetag(b.Timetag.Time()))
	buf.Write(tag[:])

	var size [4]byte
	for _, msg := range b.Messages {
		data, err := msg.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", msg.Address, err)
		}
		binary.BigEndian.PutUint32(size[:], uint32(len(data)))
		buf.Write(size[:])
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// DecodeBundle parses a datagram produced by Marshal (or any flat OSC
// bundle of messages).
func DecodeBundle(data []byte) (*osc.Bundle, error) {
	if len(data) < 16 || string(data[:8]) != bundleTag {
		return nil, fmt.Errorf("not an osc bundle (%d bytes)", len(data))
	}

	bundle := osc.NewBundle(TimeFromNTP(binary.BigEndian.Uint64(data[8:16])))
	rest := data[16:]
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, fmt.Errorf("truncated element size")
		}
		n := int(binary.BigEndian.Uint32(rest[:4]))
		rest = rest[4:]
		if n > len(rest) {
			return nil, fmt.Errorf("element size %d exceeds remaining %d bytes", n, len(rest))
		}

		packet, err := osc.ParsePacket(string(rest[:n]))
		if err != nil {
			return nil, fmt.Errorf("parse osc element: %w", err)
		}
		msg, ok := packet.(*osc.Message)
		if !ok {
			return nil, fmt.Errorf("nested %T not supported", packet)
		}
		if err := bundle.Append(msg); err != nil {
			return nil, err
		}
		rest = rest[n:]
	}
	return bundle, nil
}
