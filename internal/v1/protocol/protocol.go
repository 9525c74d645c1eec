// Package protocol defines the JSON wire envelope exchanged over WebSocket
// connections and the payload shapes for every message type the hub
// understands. Every frame in both directions is a single Envelope.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/openboard/realtime/internal/v1/types"
)

// ProtocolVersion is the only envelope version the server accepts.
const ProtocolVersion = 1

// Message type constants. Client-to-server and server-to-client types share
// one namespace; direction is documented per constant.
const (
	// Server -> client, sent once immediately after the upgrade.
	TypeHello = "hello"

	// Room membership.
	TypeRoomJoin   = "room.join"   // client -> server
	TypeRoomJoined = "room.joined" // server -> client

	// Whiteboard.
	TypeWbSnapshotRequest = "wb.snapshot.request" // client -> server
	TypeWbSnapshot        = "wb.snapshot"         // server -> client
	TypeWbStrokeStart     = "wb.stroke.start"     // bidirectional
	TypeWbStrokeMove      = "wb.stroke.move"      // bidirectional
	TypeWbStrokeEnd       = "wb.stroke.end"       // bidirectional
	TypeWbClear           = "wb.clear"            // bidirectional
	TypeWbStrokeRemove    = "wb.stroke.remove"    // server -> client
	TypeWbStrokeRestore   = "wb.stroke.restore"   // server -> client
	TypeWbUndo            = "wb.undo"             // client -> server
	TypeWbRedo            = "wb.redo"             // client -> server
	TypeWbHistory         = "wb.history"          // server -> client

	// Pairing.
	TypePairCreate  = "pair.create"  // client -> server
	TypePairCreated = "pair.created" // server -> client
	TypePairClaim   = "pair.claim"   // client -> server
	TypePairSuccess = "pair.success" // server -> client
	TypePairError   = "pair.error"   // server -> client

	// WebRTC signaling relay.
	TypeRtcPeers      = "rtc.peers"       // server -> client
	TypeRtcPeerJoined = "rtc.peer.joined" // server -> client
	TypeRtcPeerLeft   = "rtc.peer.left"   // server -> client
	TypeRtcOffer      = "rtc.offer"       // relayed
	TypeRtcAnswer     = "rtc.answer"      // relayed
	TypeRtcIce        = "rtc.ice"         // relayed

	// Presence.
	TypeCursorMove = "cursor.move" // bidirectional

	// Chat.
	TypeChatMessage        = "chat.message"         // bidirectional
	TypeChatHistoryRequest = "chat.history.request" // client -> server
	TypeChatHistory        = "chat.history"         // server -> client
)

// Envelope is the single wire frame. Payload stays raw until the handler for
// Type decodes it; unknown payload fields are ignored rather than rejected.
type Envelope struct {
	V         int             `json:"v"`
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode errors. Callers drop the frame on any of these; none of them are
// reported back to the sender.
var (
	ErrBadJSON     = errors.New("envelope is not valid JSON")
	ErrBadVersion  = errors.New("unsupported envelope version")
	ErrMissingType = errors.New("envelope type is empty")
)

// Decode parses a raw WebSocket text frame into an Envelope. Frames that are
// not JSON objects, carry the wrong version, or lack a type are rejected.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrBadJSON
	}
	if env.V != ProtocolVersion {
		return nil, ErrBadVersion
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &env, nil
}

// NewEnvelope builds a server-originated envelope. The payload is marshaled
// immediately so broadcast paths can serialize once and fan out raw bytes.
// A nil payload encodes as an empty object, so every server frame carries a
// payload key clients can decode unconditionally.
func NewEnvelope(msgType string, roomID types.RoomIdType, userID types.ClientIdType, payload any) (*Envelope, error) {
	env := &Envelope{
		V:       ProtocolVersion,
		Type:    msgType,
		RoomID:  string(roomID),
		UserID:  string(userID),
		Payload: json.RawMessage(`{}`),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// MustEncode is Encode for payloads built from known-marshalable server
// types. It panics on failure, which indicates a programming error.
func MustEncode(msgType string, roomID types.RoomIdType, userID types.ClientIdType, payload any) []byte {
	env, err := NewEnvelope(msgType, roomID, userID, payload)
	if err != nil {
		panic(err)
	}
	raw, err := env.Encode()
	if err != nil {
		panic(err)
	}
	return raw
}
