package source

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec names the serialization of worker records
type Codec string

const (
	CodecMsgpack Codec = "msgpack"
	CodecCBOR    Codec = "cbor"
)

// maxRecordSize bounds a single record; a larger length prefix means the
// stream is out of sync.
const maxRecordSize = 16 << 20

// ParseCodec parses a codec name; empty selects msgpack
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecMsgpack:
		return CodecMsgpack, nil
	case CodecCBOR:
		return CodecCBOR, nil
	default:
		return "", fmt.Errorf("unknown codec %q (want msgpack or cbor)", s)
	}
}

// Record is one frame as written by a pose-estimation worker.
//
// Landmarks holds one [x, y, z] triple per keypoint in registry order and is
// omitted when nothing was detected. JPEG optionally carries the frame image.
type Record struct {
	Seq       uint64      `msgpack:"seq" cbor:"seq"`
	TS        float64     `msgpack:"ts" cbor:"ts"` // capture time, unix seconds
	Width     int         `msgpack:"width" cbor:"width"`
	Height    int         `msgpack:"height" cbor:"height"`
	JPEG      []byte      `msgpack:"jpeg,omitempty" cbor:"jpeg,omitempty"`
	Landmarks [][]float64 `msgpack:"landmarks,omitempty" cbor:"landmarks,omitempty"`
}

// Marshal serializes r
func (c Codec) Marshal(r *Record) ([]byte, error) {
	switch c {
	case CodecCBOR:
		return cbor.Marshal(r)
	default:
		return msgpack.Marshal(r)
	}
}

// Unmarshal decodes data into r
func (c Codec) Unmarshal(data []byte, r *Record) error {
	switch c {
	case CodecCBOR:
		return cbor.Unmarshal(data, r)
	default:
		return msgpack.Unmarshal(data, r)
	}
}

// WriteRecord writes r with a 4-byte big-endian length prefix
func WriteRecord(w io.Writer, c Codec, r *Record) error {
	payload, err := c.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", c, err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write %s record: %w", c, err)
	}
	return nil
}

// readFrame reads one length-prefixed payload. A clean end of input before
// the prefix returns io.EOF; anything else that breaks framing is an error.
func readFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxRecordSize {
		return nil, fmt.Errorf("record length %d exceeds limit %d", n, maxRecordSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read %d byte record: %w", n, err)
	}
	return payload, nil
}
