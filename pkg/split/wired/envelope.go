package wired

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/ringbuf"
	"github.com/robotalks/split.go/pkg/split/transport"
)

// Envelope layout: magic, payload size, payload, CRC32-IEEE of all preceding bytes.
const (
	MagicPrefix     = "ZmKw"
	PrefixSize      = len(MagicPrefix) + 1
	PostfixSize     = 4
	ExtraSize       = PrefixSize + PostfixSize
	MaxPayloadSize  = 255
	MaxEnvelopeSize = ExtraSize + MaxPayloadSize
)

var (
	// ErrRetry indicates the buffer doesn't hold a complete envelope yet.
	ErrRetry = errors.New("incomplete envelope")
	// ErrTooLarge indicates an envelope exceeding the receive buffer.
	ErrTooLarge = errors.New("envelope too large")
	// ErrCorrupt indicates a CRC mismatch.
	ErrCorrupt = errors.New("envelope corrupted")
)

// EnvelopeSize returns the wire size for a payload of the given size.
func EnvelopeSize(payloadSize int) int {
	return payloadSize + ExtraSize
}

// PutItem frames payload and appends it to rb. Either the whole envelope
// is written or nothing is.
func PutItem(rb *ringbuf.RingBuffer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes", ErrTooLarge, len(payload))
	}
	size := EnvelopeSize(len(payload))
	if rb.Space() < size {
		return transport.ErrNoSpace
	}
	var frame [MaxEnvelopeSize]byte
	copy(frame[:], MagicPrefix)
	frame[len(MagicPrefix)] = byte(len(payload))
	copy(frame[PrefixSize:], payload)
	n := PrefixSize + len(payload)
	binary.LittleEndian.PutUint32(frame[n:], crc32.ChecksumIEEE(frame[:n]))
	// Space only grows behind the producer, so this never truncates.
	rb.Put(frame[:size])
	return nil
}

// GetItem extracts the next envelope from rb into buf and returns its payload,
// which aliases buf.
//
// Bytes not starting a prefix are skipped one at a time. ErrRetry leaves rb
// untouched until more bytes arrive. ErrTooLarge skips one byte and ErrCorrupt
// consumes the damaged envelope; callers may call again after either.
func GetItem(rb *ringbuf.RingBuffer, buf []byte) ([]byte, error) {
	var prefix [PrefixSize]byte
	for rb.Size() >= ExtraSize {
		rb.Peek(prefix[:])
		if string(prefix[:len(MagicPrefix)]) != MagicPrefix {
			rb.Skip(1)
			resyncBytes.Inc()
			continue
		}
		payloadSize := int(prefix[len(MagicPrefix)])
		frameSize := PrefixSize + payloadSize
		if frameSize > len(buf) {
			rb.Skip(1)
			return nil, fmt.Errorf("%w: payload %d bytes, buffer %d", ErrTooLarge, payloadSize, len(buf))
		}
		if rb.Size() < frameSize+PostfixSize {
			return nil, ErrRetry
		}
		frame := buf[:frameSize]
		rb.Get(frame)
		var postfix [PostfixSize]byte
		rb.Get(postfix[:])
		expected := binary.LittleEndian.Uint32(postfix[:])
		if actual := crc32.ChecksumIEEE(frame); actual != expected {
			return nil, fmt.Errorf("%w: crc %08x, expected %08x", ErrCorrupt, actual, expected)
		}
		if glog.V(4) {
			glog.Infof("envelope % x", frame[PrefixSize:])
		}
		return frame[PrefixSize:], nil
	}
	return nil, ErrRetry
}
