package protocol

import (
	"github.com/openboard/realtime/internal/v1/types"
)

// --- Server -> Client Payloads ---

// HelloPayload is sent once per connection, immediately after the WebSocket
// upgrade, carrying the server-assigned identity.
type HelloPayload struct {
	UserID types.ClientIdType `json:"userId"`
	Role   types.RoleType     `json:"role"`
}

// RoomJoinedPayload confirms membership after a room.join. Room and user
// ride on the envelope itself.
type RoomJoinedPayload struct {
	OK bool `json:"ok"`
}

// SnapshotPayload carries the full board in insertion order.
type SnapshotPayload struct {
	Strokes []*types.Stroke `json:"strokes"`
}

// HistoryPayload describes the receiving user's own undo and redo depth.
type HistoryPayload struct {
	CanUndo   bool `json:"canUndo"`
	CanRedo   bool `json:"canRedo"`
	UndoCount int  `json:"undoCount"`
	RedoCount int  `json:"redoCount"`
}

// StrokeRemovePayload identifies a stroke withdrawn by an undo.
type StrokeRemovePayload struct {
	StrokeID string `json:"strokeId"`
}

// StrokeRestorePayload replays a stroke brought back by a redo in full, so
// receivers need no cached copy of what was undone.
type StrokeRestorePayload struct {
	Stroke *types.Stroke `json:"stroke"`
}

// PeersPayload lists the other members present when a client joins.
type PeersPayload struct {
	Peers []types.ClientIdType `json:"peers"`
}

// PeerPayload names the subject of a membership broadcast.
type PeerPayload struct {
	UserID types.ClientIdType `json:"userId"`
}

// PairCreatedPayload returns a freshly minted pairing token to the web
// client that requested it. ExpiresAt is wall clock, Unix milliseconds.
type PairCreatedPayload struct {
	PairToken string `json:"pairToken"`
	ExpiresAt int64  `json:"expiresAt"`
}

// PairSuccessPayload notifies both halves of a completed pairing.
type PairSuccessPayload struct {
	MobileUserID types.ClientIdType `json:"mobileUserId"`
	WebUserID    types.ClientIdType `json:"webUserId"`
}

// PairErrorPayload reports a failed claim back to the mobile client.
type PairErrorPayload struct {
	Message string `json:"message"`
}

// ChatHistoryPayload carries the tail of the room's chat, oldest first.
type ChatHistoryPayload struct {
	Messages []types.ChatMessage `json:"messages"`
}

// --- Client -> Server Payloads ---

// RoomJoinPayload carries the room a client wants to enter. The room id is
// client-chosen and created on demand.
type RoomJoinPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name,omitempty"`
}

// StrokeStartPayload opens a stroke. The style is stored verbatim.
type StrokeStartPayload struct {
	StrokeID string            `json:"strokeId"`
	Style    types.StrokeStyle `json:"style"`
	Points   []types.Point     `json:"points"`
}

// StrokeMovePayload appends points to an open stroke. Style is optional;
// when present it replaces the stored style.
type StrokeMovePayload struct {
	StrokeID string             `json:"strokeId"`
	Style    *types.StrokeStyle `json:"style,omitempty"`
	Points   []types.Point      `json:"points"`
}

// StrokeEndPayload closes a stroke. Advisory; the server keeps no open or
// closed distinction.
type StrokeEndPayload struct {
	StrokeID string        `json:"strokeId"`
	Points   []types.Point `json:"points,omitempty"`
}

// PairClaimPayload redeems a pairing token from a mobile client.
type PairClaimPayload struct {
	PairToken string `json:"pairToken"`
}

// RelayPayload is the minimal decode of a signaling payload. Only the target
// is inspected; the payload bytes are forwarded verbatim.
type RelayPayload struct {
	ToUserID string `json:"toUserId"`
}

// CursorMovePayload carries live pointer position. Not stored.
type CursorMovePayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	IsDrawing bool    `json:"isDrawing,omitempty"`
}

// ChatSendPayload is an inbound chat message before server stamping.
type ChatSendPayload struct {
	Text     string `json:"text"`
	Name     string `json:"name,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}
