package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/export"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
	"github.com/GriffinCanCode/PenEditor/backend/internal/sandbox"
	"github.com/GriffinCanCode/PenEditor/backend/internal/shared/id"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Sandbox.Timeout = 500 * time.Millisecond
	opts.Sandbox.PoolSize = 1
	opts.MaxSessions = 4
	return opts
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts, nil)
	t.Cleanup(m.CloseAll)
	return m
}

func payloads(c *sandbox.Console) []string {
	var out []string
	for _, msg := range c.Entries() {
		out = append(out, msg.Payload)
	}
	return out
}

func waitForPayload(t *testing.T, s *Session, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, p := range payloads(s.Console()) {
			if p == want {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "console never showed %q", want)
}

func TestCreateSeedsFromStarter(t *testing.T) {
	m := newTestManager(t, testOptions())

	s, err := m.Create()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(s.ID.String(), "sess_"))
	assert.Contains(t, s.Text(fragment.Markup), `id="message"`)
	assert.Len(t, s.Libraries(), 3)

	waitForPayload(t, s, "hello from the preview")
	assert.Equal(t, uint64(1), s.Generation())
}

func TestCreateWithoutRun(t *testing.T) {
	opts := testOptions()
	opts.RunOnCreate = false
	m := newTestManager(t, opts)

	s, err := m.Create()
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, s.Console().Len())
	assert.Equal(t, "idle", s.Info().State)
}

func TestRunUsesLatestFragments(t *testing.T) {
	m := newTestManager(t, testOptions())
	s, err := m.Create()
	require.NoError(t, err)
	waitForPayload(t, s, "hello from the preview")

	require.NoError(t, s.SetText(fragment.Script, `console.info("second run")`))
	require.NoError(t, s.Run())

	waitForPayload(t, s, "second run")
	assert.Equal(t, uint64(2), s.Generation())

	for _, msg := range s.Console().Entries() {
		if msg.Payload == "second run" {
			assert.Equal(t, sandbox.ClassInfo, msg.Class)
			assert.Equal(t, uint64(2), msg.Generation)
		}
	}
}

func TestAppendLibraryAffectsPreviewAndExport(t *testing.T) {
	opts := testOptions()
	opts.RunOnCreate = false
	m := newTestManager(t, opts)
	s, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, s.AppendLibrary("https://cdn.example/extra.js"))
	require.NoError(t, s.SetText(fragment.Script, "const answer = 42"))

	preview := s.Preview()
	assert.Contains(t, preview, `<script src="https://cdn.example/extra.js"></script>`)
	assert.Contains(t, preview, "/static/relay.js")
	assert.Less(t, strings.Index(preview, "extra.js"), strings.Index(preview, "const answer = 42"))

	artifact, err := s.Export(export.Identity)
	require.NoError(t, err)
	assert.Contains(t, string(artifact.Body), "extra.js")
	assert.NotContains(t, string(artifact.Body), "/static/relay.js")
}

func TestPostReachesConsole(t *testing.T) {
	opts := testOptions()
	opts.Starter.Script = ""
	m := newTestManager(t, opts)
	s, err := m.Create()
	require.NoError(t, err)

	assert.True(t, s.Post(map[string]any{"type": "log", "data": "from browser"}))
	assert.True(t, s.Post(map[string]any{"type": "warn", "data": "filtered"}))

	waitForPayload(t, s, "from browser")
	assert.NotContains(t, payloads(s.Console()), "filtered")
}

func TestGetAndClose(t *testing.T) {
	m := newTestManager(t, testOptions())
	s, err := m.Create()
	require.NoError(t, err)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Close(s.ID))
	assert.True(t, s.Closed())

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(s.ID), ErrSessionNotFound)

	assert.ErrorIs(t, s.SetText(fragment.Markup, "x"), ErrSessionClosed)
	assert.ErrorIs(t, s.AppendLibrary("x"), ErrSessionClosed)
	assert.ErrorIs(t, s.Run(), ErrSessionClosed)
	assert.NoError(t, s.Close())
}

func TestSessionLimit(t *testing.T) {
	opts := testOptions()
	opts.MaxSessions = 2
	opts.RunOnCreate = false
	m := newTestManager(t, opts)

	first, err := m.Create()
	require.NoError(t, err)
	_, err = m.Create()
	require.NoError(t, err)

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)

	require.NoError(t, m.Close(first.ID))
	_, err = m.Create()
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Count())
}

func TestListIsOrdered(t *testing.T) {
	opts := testOptions()
	opts.RunOnCreate = false
	m := newTestManager(t, opts)

	var ids []id.SessionID
	for i := 0; i < 3; i++ {
		s, err := m.Create()
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	infos := m.List()
	require.Len(t, infos, 3)
	for i, info := range infos {
		assert.Equal(t, ids[i], info.ID)
	}

	m.CloseAll()
	assert.Empty(t, m.List())
	assert.Equal(t, 0, m.Count())
}

func TestCustomContextFactory(t *testing.T) {
	var emitted sandbox.Emitter
	opts := testOptions()
	opts.RunOnCreate = false
	opts.NewContext = func(emit sandbox.Emitter) sandbox.Context {
		emitted = emit
		return sandbox.NewRuntime(opts.Sandbox, emit, nil, nil)
	}
	m := newTestManager(t, opts)

	_, err := m.Create()
	require.NoError(t, err)
	assert.NotNil(t, emitted)
}
