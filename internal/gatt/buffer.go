package gatt

import (
	"errors"
	"fmt"

	"github.com/smallnest/ringbuffer"
)

// NotificationBuffer accumulates notification frames of one characteristic.
// It is full once it has received the target number of frames, whatever
// their length, or once its storage of frames*frameSize bytes is used up.
// Storage is allocated once.
//
// Put never truncates: bytes that do not fit are handed back to the caller
// and the buffer refuses further input until it is drained or reset.
type NotificationBuffer struct {
	frames    int
	frameSize int
	filled    int // frames received since the last drain
	ring      *ringbuffer.RingBuffer
}

// NewNotificationBuffer creates a buffer for frames frames of at most frameSize bytes
func NewNotificationBuffer(frames, frameSize int) (*NotificationBuffer, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("frame count must be > 0, got %d", frames)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be > 0, got %d", frameSize)
	}
	return &NotificationBuffer{
		frames:    frames,
		frameSize: frameSize,
		ring:      ringbuffer.New(frames * frameSize),
	}, nil
}

// Put appends p as one frame and returns the bytes that did not fit, nil if
// all of p was stored. A full buffer returns p unmodified.
func (b *NotificationBuffer) Put(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	if b.IsFull() {
		return p
	}

	n, err := b.ring.Write(p)
	if n > 0 {
		b.filled++
	}
	if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrIsFull) {
		return p[n:]
	}
	if n < len(p) {
		return p[n:]
	}
	return nil
}

// IsFull reports whether the target frame count was reached or the storage
// is exhausted
func (b *NotificationBuffer) IsFull() bool {
	return b.filled >= b.frames || b.ring.IsFull()
}

// Filled returns the number of frames received since the last drain
func (b *NotificationBuffer) Filled() int {
	return b.filled
}

// Len returns the number of buffered bytes
func (b *NotificationBuffer) Len() int {
	return b.ring.Length()
}

// Cap returns the storage capacity in bytes
func (b *NotificationBuffer) Cap() int {
	return b.frames * b.frameSize
}

// Frames returns the target frame count
func (b *NotificationBuffer) Frames() int {
	return b.frames
}

// Drain returns a copy of the buffered bytes and resets the buffer
func (b *NotificationBuffer) Drain() []byte {
	out := make([]byte, b.ring.Length())
	n, _ := b.ring.TryRead(out)
	b.Reset()
	return out[:n]
}

// Reset discards the buffered bytes
func (b *NotificationBuffer) Reset() {
	b.ring.Reset()
	b.filled = 0
}
