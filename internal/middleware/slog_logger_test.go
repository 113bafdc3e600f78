package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/backend/internal/middleware"
)

// logOne runs one request through the logger and returns the decoded line.
func logOne(t *testing.T, status int, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := middleware.NewSlogLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestSlogLogger_LogsRequestAndActor(t *testing.T) {
	actor := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/rides/123/claim", nil)
	req.Header.Set(middleware.HeaderActorID, actor.String())
	req = req.WithContext(context.WithValue(req.Context(), chimiddleware.RequestIDKey, "req-42"))

	entry := logOne(t, http.StatusConflict, req)

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/rides/123/claim", entry["path"])
	assert.EqualValues(t, http.StatusConflict, entry["status"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, actor.String(), entry["actor_id"])
	assert.NotNil(t, entry["duration_ms"])
}

func TestSlogLogger_ServerErrorsLogAtErrorLevel(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/rides/123/transitions", nil)

	entry := logOne(t, http.StatusInternalServerError, req)

	assert.Equal(t, "ERROR", entry["level"])
	assert.NotContains(t, entry, "actor_id")
}
