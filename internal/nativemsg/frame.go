// Package nativemsg implements the browser native messaging wire format:
// each message is a 32-bit length in native byte order followed by that
// many bytes of UTF-8 JSON.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxInboundSize is the largest message the browser will send a host
	MaxInboundSize = 64 << 20
	// MaxOutboundSize is the largest message the browser accepts from a host
	MaxOutboundSize = 1 << 20
)

// ErrFrameTooLarge is returned for frames exceeding the size limits
var ErrFrameTooLarge = errors.New("native message exceeds size limit")

// byteOrder is little-endian, which is the native order of every
// platform browsers ship native messaging on.
var byteOrder = binary.LittleEndian

// ReadFrame reads one length-prefixed frame. io.EOF is returned only when
// the stream ends cleanly between frames.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		return nil, err
	}

	size := byteOrder.Uint32(header[:])
	if int64(size) > int64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload as one frame
func WriteFrame(w io.Writer, payload []byte, maxSize int) error {
	if len(payload) > maxSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, len(payload), maxSize)
	}

	frame := make([]byte, 4+len(payload))
	byteOrder.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	_, err := w.Write(frame)
	return err
}

// WriteJSON marshals v and writes it as one outbound frame
func WriteJSON(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal native message: %w", err)
	}
	return WriteFrame(w, payload, MaxOutboundSize)
}

// ErrMalformedMessage is returned for frames that are not a valid request.
// The stream stays usable after it.
var ErrMalformedMessage = errors.New("malformed native message")
