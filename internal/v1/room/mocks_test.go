package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openboard/realtime/internal/v1/protocol"
	"github.com/openboard/realtime/internal/v1/types"
)

// MockClient implements types.ClientInterface for testing, recording every
// raw frame it was asked to send.
type MockClient struct {
	ID   types.ClientIdType
	Role types.RoleType

	mu             sync.Mutex
	roomID         types.RoomIdType
	pairedTo       types.ClientIdType
	Sent           [][]byte
	isDisconnected bool
}

func newMockClient(id string, role types.RoleType) *MockClient {
	return &MockClient{
		ID:   types.ClientIdType(id),
		Role: role,
	}
}

func (m *MockClient) GetID() types.ClientIdType   { return m.ID }
func (m *MockClient) GetRole() types.RoleType     { return m.Role }
func (m *MockClient) GetRoomID() types.RoomIdType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}
func (m *MockClient) SetRoomID(id types.RoomIdType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomID = id
}
func (m *MockClient) GetPairedTo() types.ClientIdType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairedTo
}
func (m *MockClient) SetPairedTo(id types.ClientIdType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairedTo = id
}
func (m *MockClient) SendRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
}
func (m *MockClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isDisconnected = true
}

func (m *MockClient) Disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isDisconnected
}

// envelopes decodes everything the client was sent.
func (m *MockClient) envelopes(t *testing.T) []*protocol.Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*protocol.Envelope, 0, len(m.Sent))
	for _, raw := range m.Sent {
		env, err := protocol.Decode(raw)
		require.NoError(t, err, "client %s received an invalid frame", m.ID)
		out = append(out, env)
	}
	return out
}

// sentTypes lists the message types in send order.
func (m *MockClient) sentTypes(t *testing.T) []string {
	t.Helper()
	envs := m.envelopes(t)
	out := make([]string, len(envs))
	for i, env := range envs {
		out[i] = env.Type
	}
	return out
}

// lastOfType returns the newest envelope of the given type, or nil.
func (m *MockClient) lastOfType(t *testing.T, msgType string) *protocol.Envelope {
	t.Helper()
	envs := m.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == msgType {
			return envs[i]
		}
	}
	return nil
}

// countOfType counts envelopes of the given type.
func (m *MockClient) countOfType(t *testing.T, msgType string) int {
	t.Helper()
	n := 0
	for _, env := range m.envelopes(t) {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func (m *MockClient) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
}

// mockSaver records board writes.
type mockSaver struct {
	mu     sync.Mutex
	writes [][]*types.Stroke
	err    error
}

func (s *mockSaver) Write(_ context.Context, _ types.RoomIdType, strokes []*types.Stroke) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, strokes)
	return nil
}

func (s *mockSaver) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *mockSaver) lastWrite() []*types.Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return nil
	}
	return s.writes[len(s.writes)-1]
}

// inbound builds a client-origin envelope the way the transport would
// deliver it.
func inbound(t *testing.T, msgType string, payload any) *protocol.Envelope {
	t.Helper()
	env := &protocol.Envelope{
		V:    protocol.ProtocolVersion,
		Type: msgType,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Payload = raw
	}
	return env
}

// decodePayload unmarshals an envelope payload into out.
func decodePayload(t *testing.T, env *protocol.Envelope, out any) {
	t.Helper()
	require.NotNil(t, env)
	require.NoError(t, json.Unmarshal(env.Payload, out))
}
