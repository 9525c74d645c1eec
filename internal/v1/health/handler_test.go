package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type mockStorage struct {
	err error
}

func (m *mockStorage) Writable() error { return m.err }

func perform(handler gin.HandlerFunc, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", path, nil)
	handler(c)
	return w
}

func TestLiveness_AlwaysOK(t *testing.T) {
	handler := NewHandler(nil)

	w := perform(handler.Liveness, "/health/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
	assert.Contains(t, w.Body.String(), "timestamp")
}

func TestReadiness_NilStorage(t *testing.T) {
	handler := NewHandler(nil)

	w := perform(handler.Readiness, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestReadiness_StorageStates(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "writable storage is ready",
			err:        nil,
			wantStatus: http.StatusOK,
			wantBody:   `"storage":"healthy"`,
		},
		{
			name:       "unwritable storage is unavailable",
			err:        errors.New("read-only filesystem"),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `"storage":"unhealthy"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&mockStorage{err: tt.err})

			w := perform(handler.Readiness, "/health/ready")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
