package pairing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndClaim(t *testing.T) {
	r := NewRegistry(DefaultTTL)

	tok := r.Create("room-1", "web-1")
	assert.Len(t, tok.Value, TokenLength)
	assert.Equal(t, 1, r.Len())

	claimed, err := r.Claim(tok.Value, "room-1")
	require.NoError(t, err)
	assert.Equal(t, tok.Value, claimed.Value)
	assert.Equal(t, tok.WebUserID, claimed.WebUserID)
	assert.Equal(t, 0, r.Len(), "claim consumes the token")
}

func TestClaim_SingleUse(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	tok := r.Create("room-1", "web-1")

	_, err := r.Claim(tok.Value, "room-1")
	require.NoError(t, err)

	_, err = r.Claim(tok.Value, "room-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaim_UnknownToken(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	_, err := r.Claim("no-such-token", "room-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaim_RoomMismatchDoesNotConsume(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	tok := r.Create("room-1", "web-1")

	_, err := r.Claim(tok.Value, "room-2")
	assert.ErrorIs(t, err, ErrRoomMismatch)
	assert.Equal(t, 1, r.Len())

	// Still claimable in the right room afterwards.
	_, err = r.Claim(tok.Value, "room-1")
	assert.NoError(t, err)
}

func TestClaim_ExpiredToken(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	tok := r.Create("room-1", "web-1")

	// Advance past the TTL.
	r.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, err := r.Claim(tok.Value, "room-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, r.Len(), "expired token is removed on the failed claim")
}

func TestMultipleOutstandingTokens(t *testing.T) {
	r := NewRegistry(DefaultTTL)

	t1 := r.Create("room-1", "web-1")
	t2 := r.Create("room-1", "web-1")
	assert.NotEqual(t, t1.Value, t2.Value)
	assert.Equal(t, 2, r.Len())

	// Claiming one leaves the other valid.
	_, err := r.Claim(t1.Value, "room-1")
	require.NoError(t, err)
	_, err = r.Claim(t2.Value, "room-1")
	require.NoError(t, err)
}

func TestReap_RemovesOnlyExpired(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	old := r.Create("room-1", "web-1")
	r.now = func() time.Time { return now.Add(30 * time.Second) }
	fresh := r.Create("room-1", "web-1")

	r.now = func() time.Time { return now.Add(70 * time.Second) }
	assert.Equal(t, 1, r.reap())
	assert.Equal(t, 1, r.Len())

	_, err := r.Claim(old.Value, "room-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Claim(fresh.Value, "room-1")
	assert.NoError(t, err)
}
