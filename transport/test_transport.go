package transport

import (
	"io"
	"sync"
)

// TestTransport is an in-memory Transport that simulates an instrument.
//
// Replies registered with Respond are queued for reading when the matching
// request is written. Reads never block: an empty queue yields (0, nil),
// the same timeout signal a serial port gives.
type TestTransport struct {
	mu        sync.Mutex
	pending   []byte
	responses map[string][]string
	written   []string
	resets    int
	closed    bool
}

// NewTestTransport creates a new test transport.
// Exported for use in tests of dependent packages.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		responses: make(map[string][]string),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	req := string(p)
	t.written = append(t.written, req)
	if queue := t.responses[req]; len(queue) > 0 {
		t.pending = append(t.pending, queue[0]...)
		t.responses[req] = queue[1:]
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// ResetInputBuffer discards every byte not yet read.
func (t *TestTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = t.pending[:0]
	t.resets++
	return nil
}

// Resets returns how many times the input buffer was reset.
func (t *TestTransport) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

// Respond queues reply to be readable after request is written. Several
// replies for the same request are served in registration order.
func (t *TestTransport) Respond(request, reply string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[request] = append(t.responses[request], reply)
}

// SendData makes data readable immediately.
// This simulates unsolicited output from the instrument.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, data...)
}

// Written returns every request written so far.
func (t *TestTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.written...)
}

// Closed reports whether Close has been called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
