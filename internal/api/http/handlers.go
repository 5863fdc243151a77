package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/session"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
	"github.com/GriffinCanCode/PenEditor/backend/internal/shared/id"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions *session.Manager
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	encoding export.Encoding
	started  time.Time
}

// NewHandlers creates a new handler set. encoding is the export compression
// used when the request does not name one.
func NewHandlers(sessions *session.Manager, metrics *monitoring.Metrics, encoding export.Encoding, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		encoding: encoding,
		started:  time.Now(),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics/summary", h.MetricsSummary)

	sessions := r.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("", h.ListSessions)
	sessions.GET("/:id", h.GetSession)
	sessions.DELETE("/:id", h.DeleteSession)
	sessions.GET("/:id/fragments", h.ListFragments)
	sessions.GET("/:id/fragments/:kind", h.GetFragment)
	sessions.PUT("/:id/fragments/:kind", h.SetFragment)
	sessions.GET("/:id/libraries", h.ListLibraries)
	sessions.POST("/:id/libraries", h.AppendLibrary)
	sessions.POST("/:id/run", h.Run)
	sessions.GET("/:id/preview", h.Preview)
	sessions.GET("/:id/console", h.Console)
	sessions.POST("/:id/relay", h.Relay)
	sessions.GET("/:id/export", h.Export)
}

// SessionView is the JSON shape of a session
type SessionView struct {
	session.Info
	Fragments []fragment.Fragment `json:"fragments"`
	Libraries []string            `json:"libraries"`
}

// FragmentRequest replaces one fragment
type FragmentRequest struct {
	Text string `json:"text"`
}

// LibraryRequest appends one library URL
type LibraryRequest struct {
	URL string `json:"url"`
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "PenEditor preview service",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       h.sessions.Count(),
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

// MetricsSummary returns the JSON metrics snapshot
func (h *Handlers) MetricsSummary(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now(),
		"backend":   h.metrics.GetSnapshot(),
	})
}

// CreateSession starts a session seeded from the starter template
func (h *Handlers) CreateSession(c *gin.Context) {
	s, err := h.sessions.Create()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view(s))
}

// ListSessions lists live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	infos := h.sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": infos,
		"count":    len(infos),
	})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view(s))
}

// DeleteSession closes a session
func (h *Handlers) DeleteSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(sessionID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListFragments returns all three fragments
func (h *Handlers) ListFragments(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"fragments": s.FragmentList()})
}

// GetFragment returns one fragment
func (h *Handlers) GetFragment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	kind, err := fragment.ParseKind(c.Param("kind"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fragment.Fragment{Kind: kind, Text: s.Text(kind)})
}

// SetFragment replaces one fragment
func (h *Handlers) SetFragment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	kind, err := fragment.ParseKind(c.Param("kind"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var req FragmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fragment request: " + err.Error()})
		return
	}
	if err := s.SetText(kind, req.Text); err != nil {
		h.fail(c, err)
		return
	}

	if run, _ := strconv.ParseBool(c.Query("run")); run {
		if err := s.Run(); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, fragment.Fragment{Kind: kind, Text: req.Text})
}

// ListLibraries returns the library URLs in order
func (h *Handlers) ListLibraries(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"libraries": s.Libraries()})
}

// AppendLibrary adds a library URL. The URL is stored as given.
func (h *Handlers) AppendLibrary(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req LibraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid library request: " + err.Error()})
		return
	}
	if err := s.AppendLibrary(req.URL); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"libraries": s.Libraries()})
}

// Run hard-reloads the preview
func (h *Handlers) Run(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Run(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"generation": s.Generation()})
}

// Preview returns the composed preview document
func (h *Handlers) Preview(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(s.Preview()))
}

// Console returns console entries after ?since
func (h *Handlers) Console(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var since uint64
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a sequence number"})
			return
		}
		since = parsed
	}

	entries := s.Console().Since(since)
	c.JSON(http.StatusOK, gin.H{
		"entries":    entries,
		"generation": s.Generation(),
	})
}

// Relay accepts a message posted by a preview frame. Malformed or filtered
// messages are dropped without an error.
func (h *Handlers) Relay(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusAccepted, gin.H{"accepted": false})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": s.Post(raw)})
}

// Export downloads the standalone document
func (h *Handlers) Export(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	encoding := h.encoding
	if raw, set := c.GetQuery("compress"); set {
		parsed, err := export.ParseEncoding(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		encoding = parsed
	}

	artifact, err := s.Export(encoding)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordExport(encodingLabel(artifact.Encoding), len(artifact.Body))
	}

	c.Header("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Body)
}

func encodingLabel(e export.Encoding) string {
	if e == export.Identity {
		return "identity"
	}
	return string(e)
}

func view(s *session.Session) SessionView {
	return SessionView{
		Info:      s.Info(),
		Fragments: s.FragmentList(),
		Libraries: s.Libraries(),
	}
}

func sessionParam(c *gin.Context) (id.SessionID, bool) {
	raw := c.Param("id")
	if !id.IsSessionID(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return "", false
	}
	return id.SessionID(raw), true
}

func (h *Handlers) session(c *gin.Context) (*session.Session, bool) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

// fail maps domain errors to status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor returns the HTTP status for a domain error
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, fragment.ErrUnknownKind), errors.Is(err, export.ErrUnknownEncoding):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, sandbox.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
