package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dictation-orchestrator/internal/app"
	"dictation-orchestrator/internal/config"
	"dictation-orchestrator/internal/service/audio"
	"dictation-orchestrator/internal/service/orchestrator"
)

func newTestRouter(t *testing.T, preferCloud bool, cloud string) (*app.Application, http.Handler) {
	t.Helper()
	cfg := &config.Config{
		Engine:       orchestrator.EngineConfig{PreferCloud: preferCloud},
		Session:      orchestrator.DefaultSessionConfig(),
		STT:          config.STTConfig{LocalProvider: config.LocalMock, CloudProvider: cloud},
		StreamLimits: audio.DefaultLimits(),
	}
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a, NewRouter(a, zerolog.Nop())
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	a, h := newTestRouter(t, false, config.CloudNone)

	rec := do(h, http.MethodGet, "/v1/liveness", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(h, http.MethodGet, "/v1/readiness", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, a.Start(context.Background()))
	rec = do(h, http.MethodGet, "/v1/readiness", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestSessionEndpoints(t *testing.T) {
	a, h := newTestRouter(t, false, config.CloudNone)
	require.NoError(t, a.Start(context.Background()))

	stream, err := a.OpenStream(context.Background())
	require.NoError(t, err)
	id := stream.SessionID()

	rec := do(h, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []orchestrator.Snapshot `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, id, list.Sessions[0].ID)

	rec = do(h, http.MethodGet, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap orchestrator.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.ID)
	assert.False(t, snap.Degraded)

	rec = do(h, http.MethodGet, "/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/v1/sessions/"+id+"/sentences/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/v1/sessions/"+id+"/sentences/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/v1/sessions/"+id+"/selections",
		`{"selections":[{"sentenceId":7,"activeVariant":"raw"}]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(h, http.MethodPost, "/v1/sessions/"+id+"/selections",
		`{"selections":[{"sentenceId":7,"activeVariant":"shiny"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/v1/sessions/"+id+"/selections", `{"selections":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodDelete, "/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Eventually(t, func() bool { return a.Sessions.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestEngineDecision(t *testing.T) {
	_, h := newTestRouter(t, true, config.CloudMock)

	rec := do(h, http.MethodPost, "/v1/engine/decision", `{"session_id":"s-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var d app.EngineDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "s-1", d.SessionID)
	assert.True(t, d.PreferCloud)
	assert.Equal(t, "configured to prefer cloud", d.Reason)

	rec = do(h, http.MethodPost, "/v1/engine/decision", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
