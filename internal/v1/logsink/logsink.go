// Package logsink accepts batched debug logs from clients and appends them
// to per-app files on disk. The endpoint exists for field debugging of
// mobile clients that have no console; it is disabled unless a directory
// is configured.
package logsink

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/logging"
)

// maxBodyBytes bounds one log submission.
const maxBodyBytes = 64 * 1024

// Entry is the POST /log request body: one client-side log line plus an
// optional structured blob the server stores verbatim.
type Entry struct {
	App   string          `json:"app"`
	Level string          `json:"level"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler appends client log batches under a directory.
type Handler struct {
	dir string
}

// NewHandler returns a handler writing under dir, or nil when dir is empty,
// which disables the endpoint.
func NewHandler(dir string) (*Handler, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug log dir %q: %w", dir, err)
	}
	return &Handler{dir: dir}, nil
}

// Ingest handles POST /log. Oversized bodies are terminated by the reader;
// bad entries get a 400; disk trouble gets a 500 with no detail leaked.
func (h *Handler) Ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var entry Entry
	if err := json.NewDecoder(c.Request.Body).Decode(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log entry"})
		return
	}
	if entry.App == "" || entry.Msg == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "app and msg are required"})
		return
	}

	if err := h.append(entry); err != nil {
		logging.Error(c.Request.Context(), "Failed to append debug log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// append writes one line. The open-write-close per request keeps lines
// atomic without holding file handles for idle apps.
func (h *Handler) append(entry Entry) error {
	path := filepath.Join(h.dir, sanitizeApp(entry.App)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("%s level=%s %s",
		time.Now().UTC().Format(time.RFC3339), entry.Level,
		strings.ReplaceAll(entry.Msg, "\n", " "))
	if len(entry.Data) > 0 {
		line += " " + string(entry.Data)
	}
	_, err = f.WriteString(line + "\n")
	return err
}

// sanitizeApp keeps app names filesystem-safe.
func sanitizeApp(app string) string {
	var b strings.Builder
	b.Grow(len(app))
	for _, r := range app {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
