package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/compose"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/library"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
	"github.com/GriffinCanCode/PenEditor/backend/internal/shared/id"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrTooManySessions = errors.New("too many sessions")
)

// Info is a point-in-time summary of a session
type Info struct {
	ID         id.SessionID `json:"id"`
	CreatedAt  time.Time    `json:"created_at"`
	Generation uint64       `json:"generation"`
	State      string       `json:"state"`
	Libraries  int          `json:"libraries"`
	Messages   int          `json:"messages"`
}

// Session is one editing workspace with its preview
type Session struct {
	ID        id.SessionID
	CreatedAt time.Time

	fragments *fragment.Store
	libraries *library.Registry
	console   *sandbox.Console
	relay     *sandbox.Relay
	context   sandbox.Context
	renderer  *sandbox.Renderer
	composer  *compose.Composer
	exporter  *export.Exporter
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
}

type sessionDeps struct {
	composer   *compose.Composer
	exporter   *export.Exporter
	newContext func(sandbox.Emitter) sandbox.Context
	relaySize  int
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

func newSession(sessionID id.SessionID, set fragment.Set, libs []string, deps sessionDeps) *Session {
	logger := deps.logger.With(zap.String("session_id", sessionID.String()))

	s := &Session{
		ID:        sessionID,
		CreatedAt: time.Now(),
		fragments: fragment.NewStore(),
		libraries: library.NewRegistry(libs...),
		console:   sandbox.NewConsole(),
		composer:  deps.composer,
		exporter:  deps.exporter,
		logger:    logger,
	}
	s.fragments.Load(set)

	s.relay = sandbox.NewRelayWithBuffer(s.console, s.Generation, logger, deps.relaySize)
	s.context = deps.newContext(s.relay.Publish)
	s.renderer = sandbox.NewRenderer(s.context, s, s.composer, logger)

	if deps.metrics != nil {
		s.relay.WithMetrics(deps.metrics)
		s.renderer.WithMetrics(deps.metrics)
	}
	return s
}

// Fragments returns a snapshot of all three fragments
func (s *Session) Fragments() fragment.Set {
	return s.fragments.Snapshot()
}

// FragmentList returns every fragment in composition order
func (s *Session) FragmentList() []fragment.Fragment {
	return s.fragments.List()
}

// Libraries returns the library URLs in insertion order
func (s *Session) Libraries() []string {
	return s.libraries.List()
}

// Text returns the current text of one fragment
func (s *Session) Text(kind fragment.Kind) string {
	return s.fragments.Text(kind)
}

// SetText replaces one fragment. The preview is not refreshed until Run.
func (s *Session) SetText(kind fragment.Kind, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.fragments.SetText(kind, text)
	return nil
}

// AppendLibrary adds a script URL to every subsequent render
func (s *Session) AppendLibrary(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.libraries.Append(url)
	s.logger.Debug("Library appended", zap.String("url", url))
	return nil
}

// Run hard-reloads the preview with the current fragments
func (s *Session) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	return s.renderer.Reload()
}

// Preview returns the document the preview context is given
func (s *Session) Preview() string {
	return s.composer.Compose(s.Fragments(), s.Libraries(), compose.Preview)
}

// Export packages the current composition as a standalone file
func (s *Session) Export(encoding export.Encoding) (export.Artifact, error) {
	return s.exporter.ExportEncoded(s.Fragments(), s.Libraries(), encoding)
}

// Console returns the session's console sink
func (s *Session) Console() *sandbox.Console {
	return s.console
}

// Post relays a browser-posted message into the console
func (s *Session) Post(raw map[string]any) bool {
	return s.relay.Post(raw)
}

// Generation returns the generation of the active run
func (s *Session) Generation() uint64 {
	return s.renderer.Generation()
}

// Info summarises the session
func (s *Session) Info() Info {
	return Info{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Generation: s.renderer.Generation(),
		State:      s.renderer.State().String(),
		Libraries:  s.libraries.Len(),
		Messages:   s.console.Len(),
	}
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears down the context and the relay. Console entries stay readable.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.context.Close()
	s.relay.Close()
	s.console.Close()

	s.logger.Debug("Session closed")
	return err
}
