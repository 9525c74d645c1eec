package room

import (
	"github.com/openboard/realtime/internal/v1/types"
)

// addChatLocked appends a message to the bounded history, evicting the
// oldest entries past MaxChatHistoryLength.
func (r *Room) addChatLocked(msg types.ChatMessage) {
	r.chatHistory.PushBack(msg)
	for r.chatHistory.Len() > MaxChatHistoryLength {
		r.chatHistory.Remove(r.chatHistory.Front())
	}
}

// recentChatsLocked returns the newest ChatHistoryTail messages, oldest
// first, as a fresh slice.
func (r *Room) recentChatsLocked() []types.ChatMessage {
	n := r.chatHistory.Len()
	if n > ChatHistoryTail {
		n = ChatHistoryTail
	}
	out := make([]types.ChatMessage, 0, n)
	e := r.chatHistory.Back()
	for i := 0; i < n && e != nil; i++ {
		out = append(out, e.Value.(types.ChatMessage))
		e = e.Prev()
	}
	// Walked newest to oldest; reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ChatLen returns how many chat messages the room currently retains.
func (r *Room) ChatLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chatHistory.Len()
}

// BoardLen returns how many strokes are on the board.
func (r *Room) BoardLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.board.Len()
}
