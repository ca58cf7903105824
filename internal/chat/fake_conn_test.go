package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errSendFailed = errors.New("send failed")

// fakeConn records every payload it accepts.
type fakeConn struct {
	id string

	mu      sync.Mutex
	open    bool
	sent    [][]byte
	sendErr error
	panics  bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, open: true}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panics {
		panic("send on broken connection")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *fakeConn) failWith(err error, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
	if closed {
		c.open = false
	}
}

func (c *fakeConn) payloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// messages decodes every payload received by c.
func (c *fakeConn) messages(t *testing.T) []Message {
	t.Helper()
	var out []Message
	for _, p := range c.payloads() {
		var msg Message
		require.NoError(t, json.Unmarshal(p, &msg))
		out = append(out, msg)
	}
	return out
}

func chatPayload(room, user, body string) []byte {
	raw, _ := json.Marshal(Message{Room: room, Sender: user, Body: body, Type: TypeChat})
	return raw
}
