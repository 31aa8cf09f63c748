package gatt

import "fmt"

// Split cuts payload into ceil(len/maxFrame) chunks of at most maxFrame bytes.
// Chunks share the payload backing array. A payload that fits in one frame
// (including an empty one) yields a single chunk.
func Split(payload []byte, maxFrame int) [][]byte {
	if maxFrame <= 0 || len(payload) <= maxFrame {
		return [][]byte{payload}
	}

	count := (len(payload) + maxFrame - 1) / maxFrame
	chunks := make([][]byte, 0, count)
	for offset := 0; offset < len(payload); offset += maxFrame {
		end := offset + maxFrame
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[offset:end:end])
	}
	return chunks
}

// SplitChecked is Split with validation of the frame size
func SplitChecked(payload []byte, maxFrame int) ([][]byte, error) {
	if maxFrame <= 0 {
		return nil, fmt.Errorf("max frame size must be > 0, got %d", maxFrame)
	}
	return Split(payload, maxFrame), nil
}

// FragmentQueue sequences the chunks of one acknowledged write.
// It exists only while a multi-frame write is in flight.
type FragmentQueue struct {
	cmd    *Command
	char   *Characteristic
	chunks [][]byte
	next   int
}

func newFragmentQueue(cmd *Command, char *Characteristic, chunks [][]byte) *FragmentQueue {
	return &FragmentQueue{cmd: cmd, char: char, chunks: chunks}
}

// Current returns the chunk awaiting acknowledgment
func (f *FragmentQueue) Current() []byte {
	if f.next >= len(f.chunks) {
		return nil
	}
	return f.chunks[f.next]
}

// Advance moves past the acknowledged chunk. Returns false when none remain.
func (f *FragmentQueue) Advance() bool {
	if f.next < len(f.chunks) {
		f.next++
	}
	return f.next < len(f.chunks)
}

// Remaining returns the number of chunks not yet acknowledged
func (f *FragmentQueue) Remaining() int {
	return len(f.chunks) - f.next
}

// Len returns the total chunk count
func (f *FragmentQueue) Len() int {
	return len(f.chunks)
}

// Index returns the zero-based position of the current chunk
func (f *FragmentQueue) Index() int {
	return f.next
}
