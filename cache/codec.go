package cache

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/s2"
)

// Serialized entries carry a one-byte frame marker so readers can tell
// compressed records from plain ones. Raw-mode entries have no marker.
const (
	framePlain byte = 0x00
	frameS2    byte = 0x01
)

var errEmptyRecord = errors.New("cache: empty record")

// frame wraps serialized bytes in their stored form, S2-compressing once the
// payload meets the threshold. A threshold <= 0 disables compression.
func frame(data []byte, threshold int) []byte {
	if threshold > 0 && len(data) >= threshold {
		framed := make([]byte, 1+s2.MaxEncodedLen(len(data)))
		framed[0] = frameS2
		encoded := s2.Encode(framed[1:], data)
		return framed[:1+len(encoded)]
	}

	framed := make([]byte, 1+len(data))
	framed[0] = framePlain
	copy(framed[1:], data)
	return framed
}

func unframe(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errEmptyRecord
	}

	switch data[0] {
	case framePlain:
		return data[1:], nil
	case frameS2:
		return s2.Decode(nil, data[1:])
	default:
		return nil, fmt.Errorf("cache: unknown frame marker 0x%02x", data[0])
	}
}
