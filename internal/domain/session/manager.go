package session

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/compose"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/starter"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
	"github.com/GriffinCanCode/PenEditor/backend/internal/shared/id"
)

// ContextFactory creates the execution context of a new session
type ContextFactory func(emit sandbox.Emitter) sandbox.Context

// Options configures a Manager
type Options struct {
	Sandbox     sandbox.Config
	Loader      sandbox.Loader // nil disables external scripts
	Starter     starter.Template
	Composer    *compose.Composer
	NewContext  ContextFactory // defaults to a goja runtime
	RelayBuffer int
	MaxSessions int // 0 for unlimited
	RunOnCreate bool
}

// DefaultOptions returns the options used by the server
func DefaultOptions() Options {
	return Options{
		Sandbox:     sandbox.DefaultConfig(),
		Starter:     starter.Default(),
		RelayBuffer: sandbox.DefaultRelayBuffer,
		MaxSessions: 64,
		RunOnCreate: true,
	}
}

// Manager owns the live sessions
type Manager struct {
	sessions sync.Map
	opts     Options
	deps     sessionDeps
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu    sync.Mutex // serialises Create against the session limit
	count int
}

// NewManager creates a session manager
func NewManager(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Composer == nil {
		opts.Composer = compose.New(compose.DefaultOptions())
	}

	m := &Manager{
		opts:   opts,
		logger: logger,
	}
	m.deps = sessionDeps{
		composer:   opts.Composer,
		exporter:   export.New(opts.Composer),
		newContext: opts.NewContext,
		relaySize:  opts.RelayBuffer,
		logger:     logger,
	}
	if m.deps.newContext == nil {
		m.deps.newContext = m.newRuntime
	}
	return m
}

// WithMetrics attaches a metrics collector to the manager and every
// session it creates afterwards
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	m.deps.metrics = metrics
	return m
}

func (m *Manager) newRuntime(emit sandbox.Emitter) sandbox.Context {
	runtime := sandbox.NewRuntime(m.opts.Sandbox, emit, m.opts.Loader, m.logger)
	if m.metrics != nil {
		runtime.WithMetrics(m.metrics)
	}
	return runtime
}

// Create starts a session seeded from the starter template
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	if m.opts.MaxSessions > 0 && m.count >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.opts.MaxSessions)
	}
	m.count++
	count := m.count
	m.mu.Unlock()

	sessionID := id.NewSessionID()
	s := newSession(sessionID, m.opts.Starter.Fragments(), m.opts.Starter.Libraries, m.deps)
	m.sessions.Store(sessionID, s)

	if m.metrics != nil {
		m.metrics.IncSessionsTotal()
		m.metrics.SetSessionsActive(count)
	}
	m.logger.Info("Session created",
		zap.String("session_id", sessionID.String()),
		zap.String("starter", m.opts.Starter.Name))

	if m.opts.RunOnCreate {
		if err := s.Run(); err != nil {
			m.logger.Warn("Initial run failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
	return s, nil
}

// Get returns a live session
func (m *Manager) Get(sessionID id.SessionID) (*Session, error) {
	value, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return value.(*Session), nil
}

// Close removes and tears down a session
func (m *Manager) Close(sessionID id.SessionID) error {
	value, ok := m.sessions.LoadAndDelete(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	m.mu.Lock()
	m.count--
	count := m.count
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetSessionsActive(count)
	}
	m.logger.Info("Session closed", zap.String("session_id", sessionID.String()))

	return value.(*Session).Close()
}

// CloseAll tears down every session
func (m *Manager) CloseAll() {
	m.sessions.Range(func(key, _ interface{}) bool {
		if err := m.Close(key.(id.SessionID)); err != nil {
			m.logger.Warn("Failed to close session", zap.Any("session_id", key), zap.Error(err))
		}
		return true
	})
}

// List returns a summary of every live session, oldest first
func (m *Manager) List() []Info {
	infos := []Info{}
	m.sessions.Range(func(_, value interface{}) bool {
		infos = append(infos, value.(*Session).Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
