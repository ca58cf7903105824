package chat

import "sync"

// DefaultHistorySize is the number of messages retained per room.
const DefaultHistorySize = 10

// History is a bounded FIFO ring of the most recent messages of one room.
// Appends are serialized per History, so rooms never contend with each other.
type History struct {
	mu    sync.Mutex
	buf   []Message
	start int
	size  int
}

// NewHistory creates an empty history holding at most capacity messages.
// A non-positive capacity falls back to DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]Message, capacity)}
}

// Append stores msg as the newest entry. When the buffer is full the oldest
// entry is dropped first and Append reports true.
func (h *History) Append(msg Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.buf)
	if h.size < capacity {
		h.buf[(h.start+h.size)%capacity] = msg
		h.size++
		return false
	}

	h.buf[h.start] = msg
	h.start = (h.start + 1) % capacity
	return true
}

// Snapshot returns the retained messages, oldest first.
func (h *History) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
