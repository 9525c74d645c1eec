// Package transport owns the WebSocket edge: upgrading HTTP requests,
// pumping frames per connection, and routing decoded envelopes into rooms.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/metrics"
	"github.com/openboard/realtime/internal/v1/pairing"
	"github.com/openboard/realtime/internal/v1/protocol"
	"github.com/openboard/realtime/internal/v1/ratelimit"
	"github.com/openboard/realtime/internal/v1/room"
	"github.com/openboard/realtime/internal/v1/types"
)

// upgrader accepts any origin. Connections carry no credentials and room
// ids are unguessable only insofar as clients choose them; origin checks
// add nothing here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// BoardStore loads and persists room boards. Satisfied by *store.Store.
type BoardStore interface {
	Load(ctx context.Context, roomID types.RoomIdType) []*types.Stroke
	room.Saver
}

// Hub is the registry of active rooms and the entry point for every
// WebSocket connection.
type Hub struct {
	rooms map[types.RoomIdType]*room.Room
	mu    sync.Mutex

	store        BoardStore
	pairs        *pairing.Registry
	rateLimiter  *ratelimit.RateLimiter
	saveDebounce time.Duration
}

// NewHub creates a hub backed by the given board store and pairing
// registry. A zero saveDebounce uses the room default.
func NewHub(st BoardStore, pairs *pairing.Registry, rateLimiter *ratelimit.RateLimiter, saveDebounce time.Duration) *Hub {
	return &Hub{
		rooms:        make(map[types.RoomIdType]*room.Room),
		store:        st,
		pairs:        pairs,
		rateLimiter:  rateLimiter,
		saveDebounce: saveDebounce,
	}
}

// ServeWs upgrades the request and hands the connection to the hub. Any
// path reaching here is eligible; identity is minted by the server, so
// there is nothing to authenticate.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return // Response already written by CheckWebSocket
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	role := types.RoleTypeWeb
	if c.Query("role") == string(types.RoleTypeMobile) {
		role = types.RoleTypeMobile
	}

	h.HandleConnection(conn, role)
}

// HandleConnection sets up a client on an established connection: mints its
// identity, greets it, and starts the pumps.
func (h *Hub) HandleConnection(conn wsConnection, role types.RoleType) {
	client := newClient(h, conn, types.NewClientID(), role)
	metrics.IncConnection()

	ctx := logging.WithUser(context.Background(), string(client.ID))
	logging.Info(ctx, "Client connected", zap.String("role", string(role)))

	client.SendRaw(protocol.MustEncode(protocol.TypeHello, "", client.ID, protocol.HelloPayload{
		UserID: client.ID,
		Role:   role,
	}))

	go client.writePump()
	go client.readPump()
}

// route dispatches one decoded envelope. Joins are handled here because
// they move clients between rooms; everything else needs a current room.
func (h *Hub) route(ctx context.Context, client *Client, env *protocol.Envelope) {
	if env.Type == protocol.TypeRoomJoin {
		h.handleJoin(ctx, client, env)
		return
	}

	roomID := client.GetRoomID()
	if roomID == "" {
		metrics.WebsocketEvents.WithLabelValues(env.Type, "no_room").Inc()
		logging.Debug(ctx, "Dropping message from client outside any room",
			zap.String("type", env.Type))
		return
	}
	r := h.roomFor(roomID)
	if r == nil {
		metrics.WebsocketEvents.WithLabelValues(env.Type, "no_room").Inc()
		return
	}
	r.Route(logging.WithRoom(ctx, string(roomID)), client, env)
}

// handleJoin moves a client into the requested room, leaving its current
// room first. Rejoining the same room replays the full join sequence,
// which doubles as a resync after a reconnect.
func (h *Hub) handleJoin(ctx context.Context, client *Client, env *protocol.Envelope) {
	var p protocol.RoomJoinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metrics.MalformedFrames.Inc()
		return
	}
	roomID := types.RoomIdType(strings.TrimSpace(p.RoomID))
	if roomID == "" {
		logging.Debug(ctx, "Dropping join with empty room id")
		return
	}

	h.handleLeave(ctx, client)

	ctx = logging.WithRoom(ctx, string(roomID))
	r := h.getOrCreateRoom(ctx, roomID)
	r.HandleClientConnect(ctx, client)
}

// handleLeave detaches a client from its current room, if any.
func (h *Hub) handleLeave(ctx context.Context, client *Client) {
	roomID := client.GetRoomID()
	if roomID == "" {
		return
	}
	client.SetRoomID("")
	if r := h.roomFor(roomID); r != nil {
		r.HandleClientDisconnect(logging.WithRoom(ctx, string(roomID)), client)
	}
}

// roomFor returns the live room with the given id, or nil.
func (h *Hub) roomFor(roomID types.RoomIdType) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

// getOrCreateRoom returns the room, creating and seeding it from disk on
// first use.
func (h *Hub) getOrCreateRoom(ctx context.Context, roomID types.RoomIdType) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok {
		return r
	}

	var initial []*types.Stroke
	if h.store != nil {
		initial = h.store.Load(ctx, roomID)
	}
	logging.Info(ctx, "Creating room", zap.Int("persisted_strokes", len(initial)))
	r := room.NewRoom(context.Background(), roomID, room.Deps{
		Store:          h.store,
		Pairs:          h.pairs,
		OnEmpty:        h.removeRoom,
		SaveDebounce:   h.saveDebounce,
		InitialStrokes: initial,
	})
	h.rooms[roomID] = r
	metrics.ActiveRooms.Inc()
	return r
}

// removeRoom flushes an empty room's board and drops it from the registry.
// Invoked by the room itself when its last member leaves; the emptiness is
// re-checked under the hub lock because a join may have raced in. The flush
// happens before the registry entry is removed, still under the lock, so a
// concurrent join can never recreate the room from a stale on-disk snapshot.
func (h *Hub) removeRoom(roomID types.RoomIdType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok || !r.IsEmpty() {
		return
	}

	ctx := logging.WithRoom(context.Background(), string(roomID))
	logging.Info(ctx, "Removing empty room")
	r.Shutdown(ctx)
	delete(h.rooms, roomID)
	metrics.ActiveRooms.Dec()
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown closes every room, disconnecting members and flushing boards.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down hub, closing all active rooms")

	h.mu.Lock()
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[types.RoomIdType]*room.Room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.CloseRoom(ctx, "Server shutting down")
	}
	metrics.ActiveRooms.Set(0)

	logging.Info(ctx, "All rooms closed", zap.Int("count", len(rooms)))
	return nil
}
