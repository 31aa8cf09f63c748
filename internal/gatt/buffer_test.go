package gatt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestNewNotificationBuffer_Validation(t *testing.T) {
	tests := []struct {
		name      string
		frames    int
		frameSize int
	}{
		{name: "zero frames", frames: 0, frameSize: 20},
		{name: "negative frames", frames: -1, frameSize: 20},
		{name: "zero frame size", frames: 3, frameSize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := NewNotificationBuffer(tt.frames, tt.frameSize)
			assert.Error(t, err)
			assert.Nil(t, buf)
		})
	}
}

func TestNotificationBuffer_FillsAfterKFrames(t *testing.T) {
	// GOAL: k puts of s bytes fill the buffer and drain yields k*s bytes in order
	//
	// TEST SCENARIO: 3 puts of 20 bytes → full → drain returns 60 bytes → buffer empty

	buf, err := NewNotificationBuffer(3, 20)
	require.NoError(t, err)
	assert.Equal(t, 60, buf.Cap())
	assert.Equal(t, 3, buf.Frames())

	for i := 0; i < 3; i++ {
		assert.False(t, buf.IsFull(), "buffer MUST NOT be full before frame %d", i+1)
		assert.Nil(t, buf.Put(frame(byte('a'+i), 20)), "frame %d MUST fit", i+1)
	}
	assert.True(t, buf.IsFull(), "buffer MUST be full after k frames")

	out := buf.Drain()
	require.Len(t, out, 60)
	assert.Equal(t, append(append(frame('a', 20), frame('b', 20)...), frame('c', 20)...), out)
	assert.Equal(t, 0, buf.Len(), "drain MUST reset the buffer")
	assert.False(t, buf.IsFull())
}

func TestNotificationBuffer_CountsShortFrames(t *testing.T) {
	// GOAL: fullness follows the frame count, not the byte capacity
	//
	// TEST SCENARIO: 3 frame buffer sized for a 247 byte MTU → 3 puts of 20 bytes → full with 60 bytes → 4th put returned

	buf, err := NewNotificationBuffer(3, 244)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.False(t, buf.IsFull(), "buffer MUST NOT be full before frame %d", i+1)
		assert.Nil(t, buf.Put(frame(byte('a'+i), 20)))
		assert.Equal(t, i+1, buf.Filled())
	}
	assert.True(t, buf.IsFull(), "k short frames MUST fill the buffer")
	assert.Equal(t, 60, buf.Len())

	extra := frame('z', 20)
	assert.Equal(t, extra, buf.Put(extra), "a put past the frame count MUST come back unmodified")
	assert.Len(t, buf.Drain(), 60)
	assert.Equal(t, 0, buf.Filled(), "drain MUST reset the frame count")
	assert.False(t, buf.IsFull())
}

func TestNotificationBuffer_OverflowReturnedUnmodified(t *testing.T) {
	// GOAL: the (k+1)th put before a reset returns its bytes untouched
	//
	// TEST SCENARIO: fill 2x4 buffer → put 4 more bytes → same bytes returned → contents unchanged

	buf, err := NewNotificationBuffer(2, 4)
	require.NoError(t, err)

	require.Nil(t, buf.Put([]byte{1, 2, 3, 4}))
	require.Nil(t, buf.Put([]byte{5, 6, 7, 8}))
	require.True(t, buf.IsFull())

	extra := []byte{9, 10, 11, 12}
	overflow := buf.Put(extra)
	assert.Equal(t, extra, overflow, "overflow MUST be returned unmodified")
	assert.Equal(t, 8, buf.Len(), "a full buffer MUST NOT be mutated")
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf.Drain())
}

func TestNotificationBuffer_PartialOverflow(t *testing.T) {
	buf, err := NewNotificationBuffer(2, 4)
	require.NoError(t, err)

	require.Nil(t, buf.Put([]byte{1, 2, 3}))
	overflow := buf.Put([]byte{4, 5, 6, 7, 8, 9})

	assert.Equal(t, []byte{9}, overflow, "only the bytes past capacity MUST be returned")
	assert.True(t, buf.IsFull())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf.Drain())
}

func TestNotificationBuffer_ResetAndEmptyPut(t *testing.T) {
	buf, err := NewNotificationBuffer(1, 4)
	require.NoError(t, err)

	assert.Nil(t, buf.Put(nil))
	assert.Equal(t, 0, buf.Len())

	buf.Put([]byte{1, 2})
	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Drain())
}
