package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/openboard/realtime/internal/v1/protocol"
)

var errConnClosed = errors.New("mock connection closed")

type frame struct {
	messageType int
	data        []byte
}

// mockConn implements wsConnection for tests. Inbound frames are fed through
// a channel; writes are recorded.
type mockConn struct {
	inbound chan frame

	mu      sync.Mutex
	written []frame
	closed  bool

	closeOnce sync.Once
	done      chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound: make(chan frame, 32),
		done:    make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-m.inbound:
		if !ok {
			return 0, nil, errConnClosed
		}
		return f.messageType, f.data, nil
	case <-m.done:
		return 0, nil, errConnClosed
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errConnClosed
	}
	m.written = append(m.written, frame{messageType, data})
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetPongHandler(func(string) error) {}

// feedText queues one inbound text frame.
func (m *mockConn) feedText(data string) {
	m.inbound <- frame{websocket.TextMessage, []byte(data)}
}

// writtenEnvelopes decodes all recorded text frames.
func (m *mockConn) writtenEnvelopes(t *testing.T) []*protocol.Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*protocol.Envelope
	for _, f := range m.written {
		if f.messageType != websocket.TextMessage {
			continue
		}
		env, err := protocol.Decode(f.data)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

// waitForType polls until an envelope of the given type was written.
func (m *mockConn) waitForType(t *testing.T, msgType string) *protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, env := range m.writtenEnvelopes(t) {
			if env.Type == msgType {
				return env
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", msgType)
			return nil
		case <-time.After(2 * time.Millisecond):
		}
	}
}
