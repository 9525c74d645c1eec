// Package room implements a collaboration room: the membership set, the
// shared whiteboard, the bounded chat history, and the message routing
// between them. All state mutation is serialized through the room's lock,
// so handlers never observe partial updates.
package room

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/board"
	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/metrics"
	"github.com/openboard/realtime/internal/v1/pairing"
	"github.com/openboard/realtime/internal/v1/protocol"
	"github.com/openboard/realtime/internal/v1/types"
)

const (
	// MaxChatHistoryLength is how many chat messages a room retains.
	MaxChatHistoryLength = 200
	// ChatHistoryTail is how many retained messages a history response carries.
	ChatHistoryTail = 100
	// MaxChatRunes is the per-message text limit; longer texts are truncated.
	MaxChatRunes = 2000
	// DefaultSaveDebounce is the quiet period before a board edit hits disk.
	DefaultSaveDebounce = 250 * time.Millisecond
)

// Saver persists board contents. Satisfied by *store.Store.
type Saver interface {
	Write(ctx context.Context, roomID types.RoomIdType, strokes []*types.Stroke) error
}

// Deps carries everything a room needs beyond its id.
type Deps struct {
	Store        Saver
	Pairs        *pairing.Registry
	OnEmpty      func(types.RoomIdType)
	SaveDebounce time.Duration
	// InitialStrokes seeds the board from a persisted snapshot.
	InitialStrokes []*types.Stroke
}

// Room is one collaboration session.
type Room struct {
	ID types.RoomIdType

	mu          sync.RWMutex
	clients     map[types.ClientIdType]types.ClientInterface
	board       *board.Board
	chatHistory *list.List

	store        Saver
	pairs        *pairing.Registry
	onEmpty      func(types.RoomIdType)
	saveDebounce time.Duration
	saveTimer    *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoom creates a room, seeding the board from deps.InitialStrokes.
func NewRoom(ctx context.Context, id types.RoomIdType, deps Deps) *Room {
	debounce := deps.SaveDebounce
	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	r := &Room{
		ID:           id,
		clients:      make(map[types.ClientIdType]types.ClientInterface),
		board:        board.New(),
		chatHistory:  list.New(),
		store:        deps.Store,
		pairs:        deps.Pairs,
		onEmpty:      deps.OnEmpty,
		saveDebounce: debounce,
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	if len(deps.InitialStrokes) > 0 {
		r.board.Restore(deps.InitialStrokes)
	}
	return r
}

// GetID returns the room ID.
func (r *Room) GetID() types.RoomIdType {
	return r.ID
}

// Len returns the current member count.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// IsEmpty reports whether the room has no members.
func (r *Room) IsEmpty() bool {
	return r.Len() == 0
}

// HandleClientConnect adds a client to the room and sends the join
// sequence: membership confirmation, the current peer list, the board
// snapshot, the client's history summary, and the chat tail. Other members
// learn about the newcomer through rtc.peer.joined.
func (r *Room) HandleClientConnect(ctx context.Context, client types.ClientInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := client.GetID()
	if old, exists := r.clients[id]; exists && old != client {
		// A reconnect raced the old connection's teardown. The new socket
		// wins; the stale one is torn down outside the room.
		logging.Info(ctx, "Duplicate connection detected, replacing old client",
			zap.String("client_id", string(id)))
		old.Disconnect()
	}
	r.clients[id] = client
	client.SetRoomID(r.ID)

	metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(len(r.clients)))
	logging.Info(ctx, "Client joined room",
		zap.String("client_id", string(id)),
		zap.Int("members", len(r.clients)))

	client.SendRaw(protocol.MustEncode(protocol.TypeRoomJoined, r.ID, id, protocol.RoomJoinedPayload{
		OK: true,
	}))
	client.SendRaw(protocol.MustEncode(protocol.TypeRtcPeers, r.ID, id, protocol.PeersPayload{
		Peers: r.peersLocked(id),
	}))
	r.broadcastRawLocked(protocol.MustEncode(protocol.TypeRtcPeerJoined, r.ID, id, protocol.PeerPayload{
		UserID: id,
	}), id)
	client.SendRaw(protocol.MustEncode(protocol.TypeWbSnapshot, r.ID, id, protocol.SnapshotPayload{
		Strokes: r.board.Snapshot(),
	}))
	r.sendHistoryLocked(client)
	client.SendRaw(protocol.MustEncode(protocol.TypeChatHistory, r.ID, id, protocol.ChatHistoryPayload{
		Messages: r.recentChatsLocked(),
	}))
}

// HandleClientDisconnect removes a client and notifies the remaining
// members. When the last member leaves, the room asks its owner to drop it.
func (r *Room) HandleClientDisconnect(ctx context.Context, client types.ClientInterface) {
	r.mu.Lock()

	id := client.GetID()
	if existing, ok := r.clients[id]; !ok || existing != client {
		// Already replaced by a reconnect; nothing to tear down here.
		r.mu.Unlock()
		return
	}
	delete(r.clients, id)

	remaining := len(r.clients)
	if remaining > 0 {
		metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(remaining))
	} else {
		metrics.RoomParticipants.DeleteLabelValues(string(r.ID))
	}
	logging.Info(ctx, "Client left room",
		zap.String("client_id", string(id)),
		zap.Int("members", remaining))

	r.broadcastRawLocked(protocol.MustEncode(protocol.TypeRtcPeerLeft, r.ID, id, protocol.PeerPayload{
		UserID: id,
	}), id)
	r.mu.Unlock()

	if remaining == 0 && r.onEmpty != nil {
		r.onEmpty(r.ID)
	}
}

// Shutdown flushes pending board state and stops the room's timers.
func (r *Room) Shutdown(ctx context.Context) {
	r.cancel()
	r.Flush(ctx)
}

// CloseRoom disconnects every member and flushes the board. Used on server
// shutdown.
func (r *Room) CloseRoom(ctx context.Context, reason string) {
	r.mu.Lock()
	targets := make([]types.ClientInterface, 0, len(r.clients))
	for _, c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	logging.Info(ctx, "Closing room",
		zap.String("room_id", string(r.ID)), zap.String("reason", reason))
	for _, c := range targets {
		c.Disconnect()
	}
	r.Shutdown(ctx)
}

// Flush writes the board to disk immediately, cancelling any pending
// debounced save.
func (r *Room) Flush(ctx context.Context) {
	r.mu.Lock()
	if r.saveTimer != nil {
		r.saveTimer.Stop()
		r.saveTimer = nil
	}
	strokes := r.cloneStrokesLocked()
	r.mu.Unlock()

	r.writeBoard(ctx, strokes)
}

// --- Internal helpers ---

// peersLocked lists the current members except the given id.
func (r *Room) peersLocked(except types.ClientIdType) []types.ClientIdType {
	peers := make([]types.ClientIdType, 0, len(r.clients))
	for id := range r.clients {
		if id == except {
			continue
		}
		peers = append(peers, id)
	}
	return peers
}

// broadcastRawLocked sends one preserialized frame to every member except
// the excluded id. Pass an empty id to reach everyone.
func (r *Room) broadcastRawLocked(data []byte, except types.ClientIdType) {
	for id, c := range r.clients {
		if id == except {
			continue
		}
		c.SendRaw(data)
	}
}

// sendHistoryLocked unicasts the client's own undo and redo summary.
func (r *Room) sendHistoryLocked(client types.ClientInterface) {
	h := r.board.HistoryFor(client.GetID())
	client.SendRaw(protocol.MustEncode(protocol.TypeWbHistory, r.ID, client.GetID(), protocol.HistoryPayload{
		CanUndo:   h.CanUndo,
		CanRedo:   h.CanRedo,
		UndoCount: h.UndoCount,
		RedoCount: h.RedoCount,
	}))
}

// scheduleSaveLocked arms or re-arms the debounced save timer. Edits within
// the quiet period collapse into a single write.
func (r *Room) scheduleSaveLocked() {
	if r.store == nil {
		return
	}
	if r.saveTimer != nil {
		r.saveTimer.Reset(r.saveDebounce)
		return
	}
	r.saveTimer = time.AfterFunc(r.saveDebounce, func() {
		r.mu.Lock()
		r.saveTimer = nil
		strokes := r.cloneStrokesLocked()
		r.mu.Unlock()
		r.writeBoard(r.ctx, strokes)
	})
}

// cloneStrokesLocked deep-copies the board so the write can happen outside
// the lock without racing in-flight point appends.
func (r *Room) cloneStrokesLocked() []*types.Stroke {
	src := r.board.Snapshot()
	out := make([]*types.Stroke, len(src))
	for i, s := range src {
		cp := *s
		cp.Points = append([]types.Point(nil), s.Points...)
		out[i] = &cp
	}
	return out
}

// writeBoard persists a snapshot. Failures are logged and counted; the next
// edit schedules a retry through the normal debounce path.
func (r *Room) writeBoard(ctx context.Context, strokes []*types.Stroke) {
	if r.store == nil {
		return
	}
	if err := r.store.Write(ctx, r.ID, strokes); err != nil {
		metrics.BoardSaves.WithLabelValues("error").Inc()
		logging.Error(ctx, "Failed to persist board",
			zap.String("room_id", string(r.ID)), zap.Error(err))
		return
	}
	metrics.BoardSaves.WithLabelValues("ok").Inc()
}
