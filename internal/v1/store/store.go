// Package store persists whiteboard contents as one JSON file per room
// under a data directory. Writes go through a temp file and rename so a
// crash mid-save never corrupts the previous snapshot.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/types"
)

// BoardFile is the on-disk shape of one room's whiteboard.
type BoardFile struct {
	RoomID  string          `json:"roomId"`
	SavedAt time.Time       `json:"savedAt"`
	Strokes []*types.Stroke `json:"strokes"`
}

// Store reads and writes board files under a single directory.
type Store struct {
	dir string
}

// New ensures dir exists and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the persisted strokes for roomID. A missing or unreadable
// file yields an empty board rather than an error; persistence is best
// effort and must never block a room from opening.
func (s *Store) Load(ctx context.Context, roomID types.RoomIdType) []*types.Stroke {
	path := s.pathFor(roomID)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn(ctx, "failed to read board file, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	var bf BoardFile
	if err := json.Unmarshal(data, &bf); err != nil {
		logging.Warn(ctx, "board file is corrupt, starting empty",
			zap.String("path", path), zap.Error(err))
		return nil
	}
	return bf.Strokes
}

// Write persists the given strokes for roomID atomically.
func (s *Store) Write(ctx context.Context, roomID types.RoomIdType, strokes []*types.Stroke) error {
	if strokes == nil {
		strokes = []*types.Stroke{}
	}
	bf := BoardFile{
		RoomID:  string(roomID),
		SavedAt: time.Now().UTC(),
		Strokes: strokes,
	}
	data, err := json.MarshalIndent(bf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal board for room %q: %w", roomID, err)
	}

	path := s.pathFor(roomID)
	tmp, err := os.CreateTemp(s.dir, "board-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write board file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close board file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace board file: %w", err)
	}
	logging.Debug(ctx, "board saved",
		zap.String("room_id", string(roomID)), zap.Int("strokes", len(strokes)))
	return nil
}

// Writable reports whether the data directory accepts writes. Used by the
// readiness probe.
func (s *Store) Writable() error {
	f, err := os.CreateTemp(s.dir, "probe-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (s *Store) pathFor(roomID types.RoomIdType) string {
	return filepath.Join(s.dir, sanitizeRoomID(string(roomID))+".json")
}

// sanitizeRoomID maps a client-chosen room id onto a safe filename. Anything
// outside [A-Za-z0-9_-] becomes an underscore so ids like "../etc" cannot
// escape the data directory.
func sanitizeRoomID(roomID string) string {
	var b strings.Builder
	b.Grow(len(roomID))
	for _, r := range roomID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
