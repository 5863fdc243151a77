package ws

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/PenEditor/backend/internal/api/http"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/session"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
	"github.com/GriffinCanCode/PenEditor/backend/internal/shared/id"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// ClientMessage is a request sent by the client
type ClientMessage struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
	Run  bool   `json:"run,omitempty"`
}

// Handler manages WebSocket connections
type Handler struct {
	sessions *session.Manager
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions *session.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// conn serialises writes; gorilla allows one concurrent writer
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// HandleConnection upgrades the request and streams the session console.
// ?since=<seq> replays entries after seq first.
func (h *Handler) HandleConnection(c *gin.Context) {
	raw := c.Param("id")
	if !id.IsSessionID(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	s, err := h.sessions.Get(id.SessionID(raw))
	if err != nil {
		c.JSON(apihttp.StatusFor(err), gin.H{"error": err.Error()})
		return
	}
	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	clientID := uuid.NewString()
	logger := h.logger.With(zap.String("session_id", raw), zap.String("client_id", clientID))
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	out := &conn{ws: ws}
	updates, cancel := s.Console().Subscribe()
	defer cancel()

	h.send(out, map[string]interface{}{
		"type":       "system",
		"client_id":  clientID,
		"session_id": raw,
		"generation": s.Generation(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.forward(out, s, updates, since)
	}()

	for {
		var msg ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			break
		}
		h.record("in", msg.Type)

		switch msg.Type {
		case "run":
			h.ack(out, s, msg.Type, s.Run())
		case "set_fragment":
			h.handleSetFragment(out, s, msg)
		case "append_library":
			h.ack(out, s, msg.Type, s.AppendLibrary(msg.URL))
		case "ping":
			h.send(out, map[string]interface{}{"type": "pong"})
		default:
			h.sendError(out, "unknown message type")
		}
	}

	cancel()
	wg.Wait()
}

// forward pushes console entries until the subscription ends. Every update
// only wakes the loop; entries are read back from the console so messages
// the subscription dropped while the client lagged are still delivered.
func (h *Handler) forward(out *conn, s *session.Session, updates <-chan sandbox.Message, since uint64) {
	last, ok := h.catchUp(out, s, since)
	if !ok {
		return
	}

	for msg := range updates {
		if msg.Seq <= last {
			continue
		}
		if last, ok = h.catchUp(out, s, last); !ok {
			return
		}
	}

	if s.Closed() {
		h.send(out, map[string]interface{}{"type": "closed"})
		out.mu.Lock()
		out.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
			time.Now().Add(writeTimeout))
		out.mu.Unlock()
	}
}

// catchUp sends every stored entry after last and returns the new position
func (h *Handler) catchUp(out *conn, s *session.Session, last uint64) (uint64, bool) {
	for _, msg := range s.Console().Since(last) {
		if h.send(out, consoleFrame(msg)) != nil {
			return last, false
		}
		last = msg.Seq
	}
	return last, true
}

func (h *Handler) handleSetFragment(out *conn, s *session.Session, msg ClientMessage) {
	kind, err := fragment.ParseKind(msg.Kind)
	if err != nil {
		h.sendError(out, err.Error())
		return
	}
	if err := s.SetText(kind, msg.Text); err != nil {
		h.sendError(out, err.Error())
		return
	}
	if msg.Run {
		h.ack(out, s, msg.Type, s.Run())
		return
	}
	h.ack(out, s, msg.Type, nil)
}

func consoleFrame(msg sandbox.Message) map[string]interface{} {
	return map[string]interface{}{
		"type":  "console",
		"entry": msg,
	}
}

func (h *Handler) ack(out *conn, s *session.Session, request string, err error) {
	if err != nil {
		h.sendError(out, err.Error())
		return
	}
	h.send(out, map[string]interface{}{
		"type":       "ack",
		"request":    request,
		"generation": s.Generation(),
	})
}

func (h *Handler) send(out *conn, v map[string]interface{}) error {
	if t, ok := v["type"].(string); ok {
		h.record("out", t)
	}
	return out.send(v)
}

func (h *Handler) sendError(out *conn, message string) {
	h.send(out, map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

func (h *Handler) record(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}
