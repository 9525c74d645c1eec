package types

import (
	"crypto/rand"
	"errors"
	"strings"
)

// --- Core Domain Types ---

// RoleType defines the kind of device behind a connection.
type RoleType string

// ClientIdType represents a unique identifier for a client connection.
type ClientIdType string

// RoomIdType represents a unique identifier for a collaboration room.
type RoomIdType string

// Role constants. A connection is mobile iff it asked for it; everything
// else is treated as a web client.
const (
	RoleTypeWeb    RoleType = "web"
	RoleTypeMobile RoleType = "mobile"
)

// ClientIDLength is the length of server-minted client identifiers.
const ClientIDLength = 10

// --- Whiteboard Types ---

// Point is a single sample of a stroke, with coordinates normalized to [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

// StrokeStyle describes how a stroke is rendered. The server stores it
// verbatim; only clients interpret it.
type StrokeStyle struct {
	Tool    string  `json:"tool"`
	Color   string  `json:"color"`
	Width   float64 `json:"width"`
	Opacity float64 `json:"opacity"`
}

// Stroke is the authoritative form of a whiteboard stroke. UserID is always
// server-assigned at first sighting and never changes afterwards.
type Stroke struct {
	StrokeID string       `json:"strokeId"`
	UserID   ClientIdType `json:"userId"`
	Style    StrokeStyle  `json:"style"`
	Points   []Point      `json:"points"`
}

// --- Chat Types ---

// ChatMessage is a chat entry stored in the room's bounded history.
// ClientID is an optional client-chosen token echoed back so the sender can
// reconcile its optimistic local echo.
type ChatMessage struct {
	ID       string       `json:"id"`
	UserID   ClientIdType `json:"userId"`
	Name     string       `json:"name,omitempty"`
	Text     string       `json:"text"`
	Ts       int64        `json:"ts"`
	ClientID string       `json:"clientId,omitempty"`
}

// ValidateChat ensures chat messages are safe to store.
func (c ChatMessage) ValidateChat() error {
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("chat text cannot be empty")
	}
	if c.UserID == "" {
		return errors.New("chat userId cannot be empty")
	}
	return nil
}

// --- Identifiers ---

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomID returns an opaque alphanumeric token of length n from crypto/rand.
func RandomID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; if it somehow does
		// there is no safe fallback for a capability token.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}

// NewClientID mints a 10-char opaque connection identity.
func NewClientID() ClientIdType {
	return ClientIdType(RandomID(ClientIDLength))
}

// --- Shared Interfaces ---

// ClientInterface defines the behavior the room package needs from a
// WebSocket client without depending on the transport package.
type ClientInterface interface {
	GetID() ClientIdType
	GetRole() RoleType
	GetRoomID() RoomIdType
	SetRoomID(RoomIdType)
	GetPairedTo() ClientIdType
	SetPairedTo(ClientIdType)
	SendRaw(data []byte)
	Disconnect()
}
