package board

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openboard/realtime/internal/v1/types"
)

func TestStartStroke_NewAndDuplicate(t *testing.T) {
	b := New()

	isNew := b.StartStroke("alice", "s1", types.StrokeStyle{Tool: "pen"}, []types.Point{{X: 0.1}})
	assert.True(t, isNew)
	assert.Equal(t, 1, b.Len())

	// A duplicate start is treated as an append and keeps the owner.
	isNew = b.StartStroke("bob", "s1", types.StrokeStyle{Tool: "marker"}, []types.Point{{X: 0.2}})
	assert.False(t, isNew)
	assert.Equal(t, 1, b.Len())

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, types.ClientIdType("alice"), snap[0].UserID)
	assert.Len(t, snap[0].Points, 2)

	// Bob gained no undo entry from the duplicate.
	assert.False(t, b.HistoryFor("bob").CanUndo)
	assert.True(t, b.HistoryFor("alice").CanUndo)
}

func TestAppendStroke(t *testing.T) {
	b := New()
	b.StartStroke("alice", "s1", types.StrokeStyle{Tool: "pen", Width: 1}, nil)

	ok := b.AppendStroke("s1", nil, []types.Point{{X: 0.1}, {X: 0.2}})
	assert.True(t, ok)

	// Style replacement is last writer wins.
	ok = b.AppendStroke("s1", &types.StrokeStyle{Tool: "pen", Width: 4}, []types.Point{{X: 0.3}})
	assert.True(t, ok)

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Len(t, snap[0].Points, 3)
	assert.Equal(t, 4.0, snap[0].Style.Width)

	assert.False(t, b.AppendStroke("missing", nil, []types.Point{{X: 0.5}}))
}

func TestUndo_OwnershipAndOrder(t *testing.T) {
	b := New()
	b.StartStroke("alice", "a1", types.StrokeStyle{}, nil)
	b.StartStroke("bob", "b1", types.StrokeStyle{}, nil)
	b.StartStroke("alice", "a2", types.StrokeStyle{}, nil)

	// Undo removes alice's newest stroke, skipping bob's.
	s := b.Undo("alice")
	require.NotNil(t, s)
	assert.Equal(t, "a2", s.StrokeID)
	assert.Equal(t, 2, b.Len())

	s = b.Undo("alice")
	require.NotNil(t, s)
	assert.Equal(t, "a1", s.StrokeID)

	assert.Nil(t, b.Undo("alice"), "nothing left to undo")
	assert.True(t, b.HasStroke("b1"), "bob's stroke untouched")
}

func TestUndoRedo_RoundTripPreservesContent(t *testing.T) {
	b := New()
	pts := []types.Point{{X: 0.1, Y: 0.2, T: 5}}
	b.StartStroke("alice", "s1", types.StrokeStyle{Tool: "pen", Color: "#00ff00"}, pts)

	undone := b.Undo("alice")
	require.NotNil(t, undone)
	assert.False(t, b.HasStroke("s1"))

	restored := b.Redo("alice")
	require.NotNil(t, restored)
	assert.Equal(t, "s1", restored.StrokeID)
	assert.Equal(t, types.ClientIdType("alice"), restored.UserID)
	assert.Equal(t, "#00ff00", restored.Style.Color)
	assert.Equal(t, pts, restored.Points)
	assert.True(t, b.HasStroke("s1"))

	// And the round trip is repeatable.
	require.NotNil(t, b.Undo("alice"))
	require.NotNil(t, b.Redo("alice"))
}

func TestRedo_InvalidatedByNewStroke(t *testing.T) {
	b := New()
	b.StartStroke("alice", "s1", types.StrokeStyle{}, nil)
	require.NotNil(t, b.Undo("alice"))
	assert.True(t, b.HistoryFor("alice").CanRedo)

	b.StartStroke("alice", "s2", types.StrokeStyle{}, nil)
	assert.False(t, b.HistoryFor("alice").CanRedo)
	assert.Nil(t, b.Redo("alice"))
}

func TestRedo_PerUserStacks(t *testing.T) {
	b := New()
	b.StartStroke("alice", "a1", types.StrokeStyle{}, nil)
	b.StartStroke("bob", "b1", types.StrokeStyle{}, nil)
	require.NotNil(t, b.Undo("alice"))

	// Bob drawing does not invalidate alice's redo.
	b.StartStroke("bob", "b2", types.StrokeStyle{}, nil)
	assert.True(t, b.HistoryFor("alice").CanRedo)
	assert.Nil(t, b.Redo("bob"))
	require.NotNil(t, b.Redo("alice"))
}

func TestRedo_SkipsIdTakenOverByAnotherUser(t *testing.T) {
	b := New()
	b.StartStroke("alice", "s1", types.StrokeStyle{}, nil)
	require.NotNil(t, b.Undo("alice"))

	// Bob reuses the freed id while alice's redo entry is pending.
	assert.True(t, b.StartStroke("bob", "s1", types.StrokeStyle{}, nil))

	// Alice's redo must not overwrite bob's live stroke or duplicate the id.
	assert.Nil(t, b.Redo("alice"))
	assert.Equal(t, 1, b.Len())
	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, types.ClientIdType("bob"), snap[0].UserID)

	// The stale entry was discarded, not left to retry.
	assert.False(t, b.HistoryFor("alice").CanRedo)
}

func TestClear_NotUndoable(t *testing.T) {
	b := New()
	b.StartStroke("alice", "a1", types.StrokeStyle{}, nil)
	b.StartStroke("bob", "b1", types.StrokeStyle{}, nil)
	require.NotNil(t, b.Undo("bob"))

	b.Clear()
	assert.Equal(t, 0, b.Len())

	// Both stacks were wiped for everyone.
	assert.Nil(t, b.Undo("alice"))
	assert.Nil(t, b.Redo("bob"))

	h := b.HistoryFor("alice")
	assert.False(t, h.CanUndo)
	assert.Equal(t, 0, h.UndoCount)
}

func TestSnapshot_InsertionOrder(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.StartStroke("alice", fmt.Sprintf("s%d", i), types.StrokeStyle{}, nil)
	}

	snap := b.Snapshot()
	require.Len(t, snap, 5)
	for i, s := range snap {
		assert.Equal(t, fmt.Sprintf("s%d", i), s.StrokeID)
	}

	// Undoing a middle stroke keeps the rest in order; redo re-appends at
	// the end.
	require.NotNil(t, b.Undo("alice")) // removes s4
	require.NotNil(t, b.Undo("alice")) // removes s3
	require.NotNil(t, b.Redo("alice")) // restores s3 at the tail

	ids := []string{}
	for _, s := range b.Snapshot() {
		ids = append(ids, s.StrokeID)
	}
	assert.Equal(t, []string{"s0", "s1", "s2", "s3"}, ids)
}

func TestRestore_SeedsBoardWithoutHistory(t *testing.T) {
	b := New()
	b.Restore([]*types.Stroke{
		{StrokeID: "s1", UserID: "alice"},
		{StrokeID: "s2", UserID: "bob"},
		nil,
		{StrokeID: ""},
		{StrokeID: "s1", UserID: "mallory"}, // duplicate id ignored
	})

	assert.Equal(t, 2, b.Len())
	snap := b.Snapshot()
	assert.Equal(t, "s1", snap[0].StrokeID)
	assert.Equal(t, types.ClientIdType("alice"), snap[0].UserID)

	// Restored strokes are not undoable, even by their original author.
	assert.Nil(t, b.Undo("alice"))
	assert.False(t, b.HistoryFor("bob").CanUndo)
}

func TestHistoryFor_CountsSurvivingEntriesOnly(t *testing.T) {
	b := New()
	b.StartStroke("alice", "s1", types.StrokeStyle{}, nil)
	b.StartStroke("alice", "s2", types.StrokeStyle{}, nil)
	b.Clear()
	b.StartStroke("alice", "s3", types.StrokeStyle{}, nil)

	h := b.HistoryFor("alice")
	assert.Equal(t, 1, h.UndoCount)
	assert.True(t, h.CanUndo)
	assert.Equal(t, 0, h.RedoCount)
}
