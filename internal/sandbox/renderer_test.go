package sandbox

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
)

type staticSource struct {
	mu   sync.Mutex
	set  fragment.Set
	libs []string
}

func (s *staticSource) Fragments() fragment.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(fragment.Set, len(s.set))
	for k, v := range s.set {
		out[k] = v
	}
	return out
}

func (s *staticSource) Libraries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.libs...)
}

type write struct {
	generation uint64
	document   string
}

// fakeContext records calls and leaves ready signals to the test
type fakeContext struct {
	mu        sync.Mutex
	reloads   []uint64
	ready     map[uint64]func(uint64)
	writes    []write
	heads     []write
	reloadErr error
}

func newFakeContext() *fakeContext {
	return &fakeContext{ready: make(map[uint64]func(uint64))}
}

func (f *fakeContext) Reload(gen uint64, ready func(uint64)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reloadErr != nil {
		return f.reloadErr
	}
	f.reloads = append(f.reloads, gen)
	f.ready[gen] = ready
	return nil
}

func (f *fakeContext) Write(gen uint64, doc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{gen, doc})
	return nil
}

func (f *fakeContext) InjectHead(gen uint64, head string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads = append(f.heads, write{gen, head})
	return nil
}

func (f *fakeContext) Close() error { return nil }

func (f *fakeContext) signal(gen uint64) {
	f.mu.Lock()
	ready := f.ready[gen]
	f.mu.Unlock()
	ready(gen)
}

func (f *fakeContext) snapshot() ([]uint64, []write, []write) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.reloads...), append([]write(nil), f.writes...), append([]write(nil), f.heads...)
}

func newTestRenderer(ctx Context, set fragment.Set) *Renderer {
	return NewRenderer(ctx, &staticSource{set: set}, nil, nil)
}

func TestRendererCoalescesReloads(t *testing.T) {
	ctx := newFakeContext()
	r := newTestRenderer(ctx, fragment.Set{fragment.Markup: "<p>hi</p>"})

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Reload())
	}
	assert.Equal(t, StateLoading, r.State())

	reloads, writes, _ := ctx.snapshot()
	assert.Equal(t, []uint64{1}, reloads)
	assert.Empty(t, writes)

	ctx.signal(1)

	_, writes, heads := ctx.snapshot()
	require.Len(t, writes, 1)
	assert.Equal(t, uint64(1), writes[0].generation)
	assert.Contains(t, writes[0].document, "<p>hi</p>")
	require.Len(t, heads, 1)
	assert.Equal(t, StateReady, r.State())
	assert.Equal(t, uint64(1), r.Writes())
}

func TestRendererDefersRenderWhileLoading(t *testing.T) {
	ctx := newFakeContext()
	src := &staticSource{set: fragment.Set{fragment.Markup: "old"}}
	r := NewRenderer(ctx, src, nil, nil)

	require.NoError(t, r.Reload())
	require.NoError(t, r.Render())

	src.mu.Lock()
	src.set[fragment.Markup] = "new"
	src.mu.Unlock()

	_, writes, _ := ctx.snapshot()
	assert.Empty(t, writes)

	ctx.signal(1)

	_, writes, _ = ctx.snapshot()
	require.Len(t, writes, 1)
	assert.Contains(t, writes[0].document, "new")
	assert.NotContains(t, writes[0].document, "old")
}

func TestRendererRenderWhenReadyStartsFreshRun(t *testing.T) {
	ctx := newFakeContext()
	r := newTestRenderer(ctx, fragment.Set{})

	require.NoError(t, r.Reload())
	ctx.signal(1)
	require.NoError(t, r.Render())

	reloads, writes, _ := ctx.snapshot()
	assert.Equal(t, []uint64{1, 2}, reloads)
	assert.Len(t, writes, 1)
	assert.Equal(t, StateLoading, r.State())
	assert.Equal(t, uint64(2), r.Generation())

	ctx.signal(2)
	_, writes, _ = ctx.snapshot()
	assert.Len(t, writes, 2)
	assert.Equal(t, StateReady, r.State())
}

func TestRendererRenderWhenIdleReloads(t *testing.T) {
	ctx := newFakeContext()
	r := newTestRenderer(ctx, fragment.Set{})

	require.NoError(t, r.Render())

	reloads, writes, _ := ctx.snapshot()
	assert.Equal(t, []uint64{1}, reloads)
	assert.Empty(t, writes)
	assert.Equal(t, StateLoading, r.State())
}

func TestRendererIgnoresStaleReady(t *testing.T) {
	ctx := newFakeContext()
	r := newTestRenderer(ctx, fragment.Set{})

	require.NoError(t, r.Reload())
	ctx.signal(1)
	require.NoError(t, r.Reload())
	assert.Equal(t, uint64(2), r.Generation())

	ctx.signal(1)
	_, writes, _ := ctx.snapshot()
	assert.Len(t, writes, 1)
	assert.Equal(t, StateLoading, r.State())

	ctx.signal(2)
	_, writes, _ = ctx.snapshot()
	require.Len(t, writes, 2)
	assert.Equal(t, uint64(2), writes[1].generation)
}

func TestRendererWritesDocumentBeforeHead(t *testing.T) {
	ctx := newFakeContext()
	r := newTestRenderer(ctx, fragment.Set{fragment.Style: "p { color: red; }"})

	require.NoError(t, r.Reload())
	ctx.signal(1)

	_, writes, heads := ctx.snapshot()
	require.Len(t, writes, 1)
	require.Len(t, heads, 1)
	assert.True(t, strings.HasPrefix(writes[0].document, "<!DOCTYPE html>"))
	assert.Contains(t, heads[0].document, "p { color: red; }")
	assert.Contains(t, heads[0].document, "/static/view.css")
}

func TestRendererReloadFailureReturnsToIdle(t *testing.T) {
	ctx := newFakeContext()
	ctx.reloadErr = errors.New("boom")
	r := newTestRenderer(ctx, fragment.Set{})

	assert.Error(t, r.Reload())
	assert.Equal(t, StateIdle, r.State())
}
