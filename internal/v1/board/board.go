// Package board holds the authoritative whiteboard state for a single room:
// the stroke set in insertion order plus per-user undo and redo stacks.
// Board is not safe for concurrent use; the owning room serializes access.
package board

import (
	"github.com/openboard/realtime/internal/v1/types"
)

// Board is the shared drawing surface of one room.
type Board struct {
	strokes map[string]*types.Stroke
	// order preserves first-seen insertion order so snapshots are
	// deterministic across restarts and between clients.
	order []string
	undo  map[types.ClientIdType][]string
	redo  map[types.ClientIdType][]*types.Stroke
}

// History summarizes one user's undo and redo depth.
type History struct {
	CanUndo   bool
	CanRedo   bool
	UndoCount int
	RedoCount int
}

// New returns an empty board.
func New() *Board {
	return &Board{
		strokes: make(map[string]*types.Stroke),
		order:   make([]string, 0),
		undo:    make(map[types.ClientIdType][]string),
		redo:    make(map[types.ClientIdType][]*types.Stroke),
	}
}

// StartStroke creates a stroke owned by userID. Returns true when the stroke
// is new. A start for an id that already exists is treated as a move: points
// are appended and the existing owner is kept, so duplicate starts from a
// flaky connection never reset ownership or push a second undo entry.
func (b *Board) StartStroke(userID types.ClientIdType, strokeID string, style types.StrokeStyle, points []types.Point) bool {
	if existing, ok := b.strokes[strokeID]; ok {
		existing.Points = append(existing.Points, points...)
		existing.Style = style
		return false
	}
	s := &types.Stroke{
		StrokeID: strokeID,
		UserID:   userID,
		Style:    style,
		Points:   append([]types.Point(nil), points...),
	}
	b.strokes[strokeID] = s
	b.order = append(b.order, strokeID)
	b.undo[userID] = append(b.undo[userID], strokeID)
	// Any new drawing invalidates previously undone work.
	delete(b.redo, userID)
	return true
}

// AppendStroke adds points to an existing stroke. Unknown ids are ignored;
// the stroke may have been cleared or undone while moves were in flight.
// A non-nil style replaces the stored style, last writer wins.
func (b *Board) AppendStroke(strokeID string, style *types.StrokeStyle, points []types.Point) bool {
	s, ok := b.strokes[strokeID]
	if !ok {
		return false
	}
	s.Points = append(s.Points, points...)
	if style != nil {
		s.Style = *style
	}
	return true
}

// HasStroke reports whether strokeID is currently on the board.
func (b *Board) HasStroke(strokeID string) bool {
	_, ok := b.strokes[strokeID]
	return ok
}

// Undo removes the most recent stroke userID drew that is still on the
// board and moves it to the user's redo stack. Entries for strokes no
// longer present, or whose id has since been taken over by another author,
// are discarded while searching. Returns the removed stroke, or nil when
// nothing was undoable.
func (b *Board) Undo(userID types.ClientIdType) *types.Stroke {
	stack := b.undo[userID]
	for len(stack) > 0 {
		strokeID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s, ok := b.strokes[strokeID]
		if !ok || s.UserID != userID {
			continue
		}
		b.undo[userID] = stack
		b.removeStroke(strokeID)
		b.redo[userID] = append(b.redo[userID], s)
		return s
	}
	b.undo[userID] = stack
	return nil
}

// Redo restores the stroke most recently undone by userID and moves it back
// onto the user's undo stack. Entries whose id is already occupied on the
// board (taken over by another author since the undo) are discarded while
// searching, so a redo never overwrites a live stroke or duplicates an id
// in the draw order. Returns nil when nothing was redoable.
func (b *Board) Redo(userID types.ClientIdType) *types.Stroke {
	stack := b.redo[userID]
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, taken := b.strokes[s.StrokeID]; taken {
			continue
		}
		b.redo[userID] = stack
		b.strokes[s.StrokeID] = s
		b.order = append(b.order, s.StrokeID)
		b.undo[userID] = append(b.undo[userID], s.StrokeID)
		return s
	}
	b.redo[userID] = stack
	return nil
}

// Clear erases every stroke along with every user's undo and redo stacks,
// so a clear cannot be undone by anyone.
func (b *Board) Clear() {
	b.strokes = make(map[string]*types.Stroke)
	b.order = b.order[:0]
	b.undo = make(map[types.ClientIdType][]string)
	b.redo = make(map[types.ClientIdType][]*types.Stroke)
}

// Snapshot returns all strokes in insertion order. The returned slice is
// freshly allocated but shares stroke pointers with the board.
func (b *Board) Snapshot() []*types.Stroke {
	out := make([]*types.Stroke, 0, len(b.strokes))
	for _, id := range b.order {
		if s, ok := b.strokes[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// HistoryFor summarizes userID's undo and redo depth. Dangling undo entries
// are pruned first so counts reflect what an undo could actually reach.
func (b *Board) HistoryFor(userID types.ClientIdType) History {
	live := b.undo[userID][:0]
	for _, id := range b.undo[userID] {
		if _, ok := b.strokes[id]; ok {
			live = append(live, id)
		}
	}
	b.undo[userID] = live
	return History{
		CanUndo:   len(live) > 0,
		CanRedo:   len(b.redo[userID]) > 0,
		UndoCount: len(live),
		RedoCount: len(b.redo[userID]),
	}
}

// Restore replaces the board contents with strokes loaded from disk, in the
// given order. Undo and redo stacks start empty; history does not survive a
// restart.
func (b *Board) Restore(strokes []*types.Stroke) {
	b.strokes = make(map[string]*types.Stroke, len(strokes))
	b.order = make([]string, 0, len(strokes))
	b.undo = make(map[types.ClientIdType][]string)
	b.redo = make(map[types.ClientIdType][]*types.Stroke)
	for _, s := range strokes {
		if s == nil || s.StrokeID == "" {
			continue
		}
		if _, dup := b.strokes[s.StrokeID]; dup {
			continue
		}
		b.strokes[s.StrokeID] = s
		b.order = append(b.order, s.StrokeID)
	}
}

// Len returns the number of strokes currently on the board.
func (b *Board) Len() int {
	return len(b.strokes)
}

// removeStroke drops a stroke from the map and its slot from the order
// slice, preserving relative order of the rest.
func (b *Board) removeStroke(strokeID string) {
	delete(b.strokes, strokeID)
	for i, id := range b.order {
		if id == strokeID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
