package room

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/metrics"
	"github.com/openboard/realtime/internal/v1/pairing"
	"github.com/openboard/realtime/internal/v1/protocol"
	"github.com/openboard/realtime/internal/v1/types"
)

// Route dispatches one decoded envelope from a room member. Unknown types
// and undecodable payloads are dropped without a reply; the sender's userId
// on the envelope is ignored in favor of the connection's identity.
func (r *Room) Route(ctx context.Context, client types.ClientInterface, env *protocol.Envelope) {
	start := time.Now()
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
	}()

	switch env.Type {
	case protocol.TypeWbSnapshotRequest:
		r.HandleSnapshotRequest(ctx, client)
	case protocol.TypeWbStrokeStart:
		r.HandleStrokeStart(ctx, client, env)
	case protocol.TypeWbStrokeMove:
		r.HandleStrokeMove(ctx, client, env)
	case protocol.TypeWbStrokeEnd:
		r.HandleStrokeEnd(ctx, client, env)
	case protocol.TypeWbClear:
		r.HandleClear(ctx, client)
	case protocol.TypeWbUndo:
		r.HandleUndo(ctx, client)
	case protocol.TypeWbRedo:
		r.HandleRedo(ctx, client)
	case protocol.TypePairCreate:
		r.HandlePairCreate(ctx, client)
	case protocol.TypePairClaim:
		r.HandlePairClaim(ctx, client, env)
	case protocol.TypeRtcOffer, protocol.TypeRtcAnswer, protocol.TypeRtcIce:
		r.HandleSignalRelay(ctx, client, env)
	case protocol.TypeCursorMove:
		r.HandleCursorMove(ctx, client, env)
	case protocol.TypeChatMessage:
		r.HandleChat(ctx, client, env)
	case protocol.TypeChatHistoryRequest:
		r.HandleChatHistoryRequest(ctx, client)
	default:
		metrics.WebsocketEvents.WithLabelValues(env.Type, "unknown").Inc()
		logging.Debug(ctx, "Dropping message of unknown type",
			zap.String("type", env.Type),
			zap.String("client_id", string(client.GetID())))
		return
	}
	metrics.WebsocketEvents.WithLabelValues(env.Type, "ok").Inc()
}

// HandleSnapshotRequest unicasts the full board to the requester.
func (r *Room) HandleSnapshotRequest(_ context.Context, client types.ClientInterface) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client.SendRaw(protocol.MustEncode(protocol.TypeWbSnapshot, r.ID, client.GetID(), protocol.SnapshotPayload{
		Strokes: r.board.Snapshot(),
	}))
}

// HandleStrokeStart opens a new stroke owned by the sender and fans it out
// to the whole room, the sender included, so every member commits strokes
// in the same order. A duplicate start for an existing stroke degrades to
// an append so retries after a reconnect stay idempotent.
func (r *Room) HandleStrokeStart(ctx context.Context, client types.ClientInterface, env *protocol.Envelope) {
	var p protocol.StrokeStartPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.StrokeID == "" {
		logging.Debug(ctx, "Dropping malformed stroke.start", zap.String("client_id", string(client.GetID())))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	isNew := r.board.StartStroke(client.GetID(), p.StrokeID, p.Style, p.Points)
	r.broadcastRawLocked(r.stampedFrame(env, client), "")
	if isNew {
		// Undo just became possible and any pending redo was invalidated.
		r.sendHistoryLocked(client)
	}
	r.scheduleSaveLocked()
}

// HandleStrokeMove appends points to a stroke. The frame is fanned out even
// when the stroke no longer exists locally, because the receivers may have
// optimistic state the server already dropped.
func (r *Room) HandleStrokeMove(ctx context.Context, client types.ClientInterface, env *protocol.Envelope) {
	var p protocol.StrokeMovePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.StrokeID == "" {
		logging.Debug(ctx, "Dropping malformed stroke.move", zap.String("client_id", string(client.GetID())))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	applied := r.board.AppendStroke(p.StrokeID, p.Style, p.Points)
	r.broadcastRawLocked(r.stampedFrame(env, client), "")
	if applied {
		r.scheduleSaveLocked()
	}
}

// HandleStrokeEnd closes a stroke. The server keeps no open state and any
// points in the payload are ignored; clients deliver points on start and
// move frames, so this only relays the frame.
func (r *Room) HandleStrokeEnd(ctx context.Context, client types.ClientInterface, env *protocol.Envelope) {
	var p protocol.StrokeEndPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.StrokeID == "" {
		logging.Debug(ctx, "Dropping malformed stroke.end", zap.String("client_id", string(client.GetID())))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastRawLocked(r.stampedFrame(env, client), "")
}

// HandleClear erases the whole board for everyone, along with every user's
// undo and redo stacks. Clears are not undoable.
func (r *Room) HandleClear(ctx context.Context, client types.ClientInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.board.Clear()
	logging.Info(ctx, "Board cleared", zap.String("client_id", string(client.GetID())))
	r.broadcastRawLocked(protocol.MustEncode(protocol.TypeWbClear, r.ID, client.GetID(), nil), "")
	r.sendHistoryLocked(client)
	r.scheduleSaveLocked()
}

// HandleUndo removes the sender's most recent surviving stroke. When
// nothing is undoable the request is silently absorbed.
func (r *Room) HandleUndo(_ context.Context, client types.ClientInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.board.Undo(client.GetID())
	if s == nil {
		return
	}
	r.broadcastRawLocked(protocol.MustEncode(protocol.TypeWbStrokeRemove, r.ID, client.GetID(), protocol.StrokeRemovePayload{
		StrokeID: s.StrokeID,
	}), "")
	r.sendHistoryLocked(client)
	r.scheduleSaveLocked()
}

// HandleRedo restores the sender's most recently undone stroke, replaying
// it in full so receivers need no cached copy.
func (r *Room) HandleRedo(_ context.Context, client types.ClientInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.board.Redo(client.GetID())
	if s == nil {
		return
	}
	r.broadcastRawLocked(protocol.MustEncode(protocol.TypeWbStrokeRestore, r.ID, client.GetID(), protocol.StrokeRestorePayload{
		Stroke: s,
	}), "")
	r.sendHistoryLocked(client)
	r.scheduleSaveLocked()
}

// HandlePairCreate mints a one-shot pairing token bound to this room and
// the requesting client. Only web clients offer pairings; requests from
// any other role are dropped.
func (r *Room) HandlePairCreate(ctx context.Context, client types.ClientInterface) {
	if r.pairs == nil || client.GetRole() != types.RoleTypeWeb {
		return
	}
	t := r.pairs.Create(r.ID, client.GetID())
	logging.Info(ctx, "Pairing token created", zap.String("client_id", string(client.GetID())))
	client.SendRaw(protocol.MustEncode(protocol.TypePairCreated, r.ID, client.GetID(), protocol.PairCreatedPayload{
		PairToken: t.Value,
		ExpiresAt: t.ExpiresAt.UnixMilli(),
	}))
}

// HandlePairClaim redeems a pairing token from a mobile client. On success
// both halves of the pair are told about each other; on failure only the
// claimer hears back. Claims from non-mobile roles are dropped.
func (r *Room) HandlePairClaim(ctx context.Context, client types.ClientInterface, env *protocol.Envelope) {
	if r.pairs == nil || client.GetRole() != types.RoleTypeMobile {
		return
	}
	var p protocol.PairClaimPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.PairToken == "" {
		logging.Debug(ctx, "Dropping malformed pair.claim", zap.String("client_id", string(client.GetID())))
		return
	}

	t, err := r.pairs.Claim(p.PairToken, r.ID)
	if err != nil {
		metrics.PairClaims.WithLabelValues("denied").Inc()
		message := "Invalid or expired token"
		if err == pairing.ErrRoomMismatch {
			message = "Token is for a different room"
		}
		client.SendRaw(protocol.MustEncode(protocol.TypePairError, r.ID, client.GetID(), protocol.PairErrorPayload{
			Message: message,
		}))
		return
	}
	metrics.PairClaims.WithLabelValues("ok").Inc()

	r.mu.RLock()
	defer r.mu.RUnlock()
	client.SetPairedTo(t.WebUserID)
	success := protocol.MustEncode(protocol.TypePairSuccess, r.ID, client.GetID(), protocol.PairSuccessPayload{
		MobileUserID: client.GetID(),
		WebUserID:    t.WebUserID,
	})
	client.SendRaw(success)
	if web, ok := r.clients[t.WebUserID]; ok {
		web.SetPairedTo(client.GetID())
		web.SendRaw(success)
	}
	logging.Info(ctx, "Pairing completed",
		zap.String("mobile_id", string(client.GetID())),
		zap.String("web_id", string(t.WebUserID)))
}

// HandleSignalRelay forwards an offer, answer, or ICE candidate to exactly
// the addressed peer. The payload is opaque; only toUserId is inspected.
// Frames without a resolvable target are dropped.
func (r *Room) HandleSignalRelay(ctx context.Context, client types.ClientInterface, env *protocol.Envelope) {
	var p protocol.RelayPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.ToUserID == "" {
		logging.Debug(ctx, "Dropping signaling frame without target",
			zap.String("type", env.Type), zap.String("client_id", string(client.GetID())))
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.clients[types.ClientIdType(p.ToUserID)]
	if !ok {
		logging.Debug(ctx, "Dropping signaling frame for absent peer",
			zap.String("type", env.Type), zap.String("to", p.ToUserID))
		return
	}
	target.SendRaw(r.stampedFrame(env, client))
}

// HandleCursorMove fans live pointer positions out to everyone else.
// Positions are ephemeral and never stored.
func (r *Room) HandleCursorMove(_ context.Context, client types.ClientInterface, env *protocol.Envelope) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.broadcastRawLocked(r.stampedFrame(env, client), client.GetID())
}

// HandleChat stamps, stores, and fans out a chat message. The sender
// receives the stamped copy too so its optimistic echo can reconcile via
// the clientId it supplied.
func (r *Room) HandleChat(ctx context.Context, client types.ClientInterface, env *protocol.Envelope) {
	var p protocol.ChatSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		logging.Debug(ctx, "Dropping malformed chat.message", zap.String("client_id", string(client.GetID())))
		return
	}

	msg, ok := buildChatMessage(client.GetID(), p)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.addChatLocked(msg)
	r.broadcastRawLocked(protocol.MustEncode(protocol.TypeChatMessage, r.ID, client.GetID(), msg), "")
}

// HandleChatHistoryRequest unicasts the retained chat tail, oldest first.
func (r *Room) HandleChatHistoryRequest(_ context.Context, client types.ClientInterface) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client.SendRaw(protocol.MustEncode(protocol.TypeChatHistory, r.ID, client.GetID(), protocol.ChatHistoryPayload{
		Messages: r.recentChatsLocked(),
	}))
}

// stampedFrame re-encodes an inbound envelope with the server's view of the
// sender identity and room, leaving the payload bytes untouched.
func (r *Room) stampedFrame(env *protocol.Envelope, client types.ClientInterface) []byte {
	out := protocol.Envelope{
		V:       protocol.ProtocolVersion,
		Type:    env.Type,
		RoomID:  string(r.ID),
		UserID:  string(client.GetID()),
		Payload: env.Payload,
	}
	data, err := out.Encode()
	if err != nil {
		// Payload is raw JSON that already round-tripped through Decode.
		panic(err)
	}
	return data
}

// buildChatMessage validates and stamps an inbound chat payload. Text is
// trimmed, empty texts are rejected, and oversized texts are truncated
// rune-safe.
func buildChatMessage(sender types.ClientIdType, p protocol.ChatSendPayload) (types.ChatMessage, bool) {
	text := strings.TrimSpace(p.Text)
	if runes := []rune(text); len(runes) > MaxChatRunes {
		text = string(runes[:MaxChatRunes])
	}
	msg := types.ChatMessage{
		ID:       uuid.NewString(),
		UserID:   sender,
		Name:     p.Name,
		Text:     text,
		Ts:       time.Now().UnixMilli(),
		ClientID: p.ClientID,
	}
	if err := msg.ValidateChat(); err != nil {
		return types.ChatMessage{}, false
	}
	return msg, true
}
