package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/metrics"
	"github.com/openboard/realtime/internal/v1/protocol"
	"github.com/openboard/realtime/internal/v1/types"
)

const (
	// writeWait is how long a single frame write may take.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound frames.
	maxMessageSize = 512 * 1024
	// sendBufferSize is the per-client outbound queue depth. Frames beyond
	// it are dropped rather than blocking the room.
	sendBufferSize = 256
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

// Client represents a single WebSocket connection to the hub. It implements
// types.ClientInterface.
type Client struct {
	conn wsConnection
	hub  *Hub
	ID   types.ClientIdType
	Role types.RoleType

	mu       sync.RWMutex
	roomID   types.RoomIdType
	pairedTo types.ClientIdType
	closed   bool

	closeOnce sync.Once
	send      chan []byte
}

func newClient(hub *Hub, conn wsConnection, id types.ClientIdType, role types.RoleType) *Client {
	return &Client{
		conn: conn,
		hub:  hub,
		ID:   id,
		Role: role,
		send: make(chan []byte, sendBufferSize),
	}
}

// --- types.ClientInterface ---

func (c *Client) GetID() types.ClientIdType {
	return c.ID
}

func (c *Client) GetRole() types.RoleType {
	return c.Role
}

func (c *Client) GetRoomID() types.RoomIdType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) SetRoomID(id types.RoomIdType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
}

func (c *Client) GetPairedTo() types.ClientIdType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pairedTo
}

func (c *Client) SetPairedTo(id types.ClientIdType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairedTo = id
}

// SendRaw queues a preserialized frame. When the queue is full the frame is
// dropped; a slow consumer must never stall the room that is fanning out.
func (c *Client) SendRaw(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	// Safety net for a send racing Disconnect's channel close.
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send to closing client",
				zap.String("client_id", string(c.ID)))
		}
	}()

	select {
	case c.send <- data:
	default:
		metrics.DroppedMessages.Inc()
		logging.Warn(context.Background(), "Client send queue full, dropping message",
			zap.String("client_id", string(c.ID)))
	}
}

// Disconnect closes the outbound queue, which drives the writePump to send
// a close frame and tear the connection down. Idempotent.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// readPump reads frames until the connection dies, decoding each into an
// envelope and handing it to the hub. Malformed frames are counted and
// dropped without a reply.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleLeave(context.Background(), c)
		c.Disconnect()
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := logging.WithUser(context.Background(), string(c.ID))
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := protocol.Decode(data)
		if err != nil {
			metrics.MalformedFrames.Inc()
			logging.Debug(ctx, "Dropping malformed frame", zap.Error(err))
			continue
		}

		c.hub.route(ctx, c, env)
	}
}

// writePump owns all writes to the connection, interleaving queued frames
// with keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Error(context.Background(), "error writing message",
					zap.String("client_id", string(c.ID)), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
