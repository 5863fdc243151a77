package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/session"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
)

type testServer struct {
	router   *gin.Engine
	sessions *session.Manager
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opts := session.DefaultOptions()
	opts.Sandbox.Timeout = 500 * time.Millisecond
	opts.Sandbox.PoolSize = 1
	opts.MaxSessions = 3

	metrics := monitoring.NewMetrics()
	t.Cleanup(metrics.Close)

	manager := session.NewManager(opts, nil).WithMetrics(metrics)
	t.Cleanup(manager.CloseAll)

	router := gin.New()
	router.Use(monitoring.Middleware(metrics))
	NewHandlers(manager, metrics, export.Identity, nil).Register(router)

	return &testServer{router: router, sessions: manager}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) create(t *testing.T) SessionView {
	t.Helper()
	w := s.do("POST", "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var v SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRootAndHealth(t *testing.T) {
	s := setupTestServer(t)

	w := s.do("GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", decode(t, w)["status"])

	w = s.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["sessions"])

	w = s.do("GET", "/metrics/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "backend")
}

func TestSessionLifecycle(t *testing.T) {
	s := setupTestServer(t)
	v := s.create(t)

	assert.Regexp(t, regexp.MustCompile(`^sess_[0-9A-Z]{26}$`), string(v.ID))
	assert.Len(t, v.Fragments, 3)
	assert.Len(t, v.Libraries, 3)

	w := s.do("GET", "/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = s.do("GET", "/sessions/"+string(v.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do("DELETE", "/sessions/"+string(v.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do("GET", "/sessions/"+string(v.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w)["error"], "session not found")

	w = s.do("DELETE", "/sessions/"+string(v.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionLimit(t *testing.T) {
	s := setupTestServer(t)
	for i := 0; i < 3; i++ {
		s.create(t)
	}

	w := s.do("POST", "/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestInvalidSessionID(t *testing.T) {
	s := setupTestServer(t)

	w := s.do("GET", "/sessions/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("GET", "/sessions/sess_01ARZ3NDEKTSV4RRFFQ69G5FAV/preview", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFragments(t *testing.T) {
	s := setupTestServer(t)
	base := "/sessions/" + string(s.create(t).ID)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantText   string
	}{
		{"set markup", "PUT", "/fragments/markup", FragmentRequest{Text: "<p>new</p>"}, http.StatusOK, "<p>new</p>"},
		{"get by alias", "GET", "/fragments/html", nil, http.StatusOK, "<p>new</p>"},
		{"set empty script", "PUT", "/fragments/js", FragmentRequest{Text: ""}, http.StatusOK, ""},
		{"unknown kind", "GET", "/fragments/wasm", nil, http.StatusBadRequest, ""},
		{"bad body", "PUT", "/fragments/css", "{", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, base+tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				var f fragment.Fragment
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
				assert.Equal(t, tt.wantText, f.Text)
			}
		})
	}

	w := s.do("GET", base+"/fragments", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["fragments"], 3)
}

func TestLibrariesAndPreview(t *testing.T) {
	s := setupTestServer(t)
	base := "/sessions/" + string(s.create(t).ID)

	w := s.do("POST", base+"/libraries", LibraryRequest{URL: "https://cdn.example/x.js"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decode(t, w)["libraries"], 4)

	w = s.do("GET", base+"/libraries", nil)
	libs := decode(t, w)["libraries"].([]any)
	assert.Equal(t, "https://cdn.example/x.js", libs[3])

	w = s.do("GET", base+"/preview", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `<script src="https://cdn.example/x.js"></script>`)
	assert.Contains(t, w.Body.String(), `/static/relay.js`)
}

func TestRunAndConsole(t *testing.T) {
	s := setupTestServer(t)
	base := "/sessions/" + string(s.create(t).ID)

	w := s.do("PUT", base+"/fragments/script?run=true", FragmentRequest{Text: `console.error("boom")`})
	require.Equal(t, http.StatusOK, w.Code)

	var entries []sandbox.Message
	require.Eventually(t, func() bool {
		w := s.do("GET", base+"/console", nil)
		var body struct {
			Entries []sandbox.Message `json:"entries"`
		}
		if json.Unmarshal(w.Body.Bytes(), &body) != nil {
			return false
		}
		entries = body.Entries
		for _, e := range entries {
			if e.Payload == "boom" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	last := entries[len(entries)-1]
	assert.Equal(t, sandbox.ClassError, last.Class)

	w = s.do("GET", base+"/console?since="+strconv.FormatUint(last.Seq, 10), nil)
	assert.Empty(t, decode(t, w)["entries"])

	w = s.do("GET", base+"/console?since=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("POST", base+"/run", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, decode(t, w), "generation")
}

func TestRelay(t *testing.T) {
	s := setupTestServer(t)
	base := "/sessions/" + string(s.create(t).ID)

	w := s.do("POST", base+"/relay", map[string]any{"type": "info", "data": "posted"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["accepted"])

	w = s.do("POST", base+"/relay", map[string]any{"data": "untyped"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, decode(t, w)["accepted"])

	w = s.do("POST", base+"/relay", "not json")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, decode(t, w)["accepted"])
}

func TestExport(t *testing.T) {
	s := setupTestServer(t)
	base := "/sessions/" + string(s.create(t).ID)

	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantName    *regexp.Regexp
		contentType string
	}{
		{"plain", "", http.StatusOK, regexp.MustCompile(`filename="PenEditor-\d+\.html"`), "text/html; charset=utf-8"},
		{"gzip", "?compress=gzip", http.StatusOK, regexp.MustCompile(`filename="PenEditor-\d+\.html\.gz"`), "application/gzip"},
		{"zstd", "?compress=zstd", http.StatusOK, regexp.MustCompile(`filename="PenEditor-\d+\.html\.zst"`), "application/zstd"},
		{"unknown", "?compress=br", http.StatusBadRequest, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do("GET", base+"/export"+tt.query, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantName == nil {
				return
			}
			assert.Regexp(t, tt.wantName, w.Header().Get("Content-Disposition"))
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
		})
	}

	w := s.do("GET", base+"/export", nil)
	assert.NotContains(t, w.Body.String(), "relay.js")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrSessionNotFound, http.StatusNotFound},
		{fragment.ErrUnknownKind, http.StatusBadRequest},
		{export.ErrUnknownEncoding, http.StatusBadRequest},
		{session.ErrSessionClosed, http.StatusGone},
		{sandbox.ErrClosed, http.StatusGone},
		{session.ErrTooManySessions, http.StatusTooManyRequests},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
