package sandbox

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/compose"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
)

// Source supplies the current fragments and libraries at write time
type Source interface {
	Fragments() fragment.Set
	Libraries() []string
}

// Renderer owns one execution context and its reload lifecycle.
//
// State machine:
//
//	Idle --Reload--> Loading --ready--> Ready --Reload--> Loading ...
//
// A Reload while Loading is coalesced into the one in flight. A Render while
// Loading is parked in the pending slot and flushed once on Ready.
type Renderer struct {
	ctx      Context
	src      Source
	composer *compose.Composer
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu         sync.Mutex
	state      State
	generation uint64
	pending    bool
	writes     uint64
}

// NewRenderer creates a renderer for ctx
func NewRenderer(ctx Context, src Source, composer *compose.Composer, logger *zap.Logger) *Renderer {
	if composer == nil {
		composer = compose.New(compose.DefaultOptions())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		ctx:      ctx,
		src:      src,
		composer: composer,
		logger:   logger,
	}
}

// WithMetrics attaches a metrics collector
func (r *Renderer) WithMetrics(metrics *monitoring.Metrics) *Renderer {
	r.metrics = metrics
	return r
}

// Reload hard-reloads the context and writes the current composition once it
// is ready. Returns without doing anything if a reload is already in flight.
func (r *Renderer) Reload() error {
	r.mu.Lock()
	if r.state == StateLoading {
		r.pending = true
		r.mu.Unlock()
		r.logger.Debug("Reload coalesced", zap.Uint64("generation", r.Generation()))
		if r.metrics != nil {
			r.metrics.RecordReload(true)
		}
		return nil
	}

	r.generation++
	gen := r.generation
	r.state = StateLoading
	r.pending = true
	r.mu.Unlock()

	r.logger.Debug("Reload started", zap.Uint64("generation", gen))
	if r.metrics != nil {
		r.metrics.RecordReload(false)
	}

	if err := r.ctx.Reload(gen, r.onReady); err != nil {
		r.mu.Lock()
		if r.generation == gen {
			r.state = StateIdle
			r.pending = false
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// Render writes the current composition into a fresh run. While the context
// is loading the request is deferred and flushed by the pending ready; any
// other state reloads, so every document lands in a clean VM.
func (r *Renderer) Render() error {
	r.mu.Lock()
	if r.state == StateLoading {
		r.pending = true
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	return r.Reload()
}

// Generation returns the generation of the active run
func (r *Renderer) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// State returns the current context state
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Writes returns how many documents have been written
func (r *Renderer) Writes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// onReady is the context's ready signal for generation gen
func (r *Renderer) onReady(gen uint64) {
	r.mu.Lock()
	if gen != r.generation || r.state != StateLoading {
		r.mu.Unlock()
		return
	}
	r.state = StateReady
	flush := r.pending
	r.pending = false
	r.mu.Unlock()

	if !flush {
		return
	}
	if err := r.write(gen); err != nil {
		r.logger.Warn("Preview write failed", zap.Uint64("generation", gen), zap.Error(err))
	}
}

// write composes the preview and hands it to the context: the whole
// document first, then the head styles.
func (r *Renderer) write(gen uint64) error {
	start := time.Now()

	set := r.src.Fragments()
	doc := r.composer.Compose(set, r.src.Libraries(), compose.Preview)

	if err := r.ctx.Write(gen, doc); err != nil {
		return err
	}
	if err := r.ctx.InjectHead(gen, r.composer.HeadStyles(set.Text(fragment.Style))); err != nil {
		return err
	}

	r.mu.Lock()
	r.writes++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordWrite(time.Since(start))
	}
	r.logger.Debug("Preview written", zap.Uint64("generation", gen), zap.Int("bytes", len(doc)))
	return nil
}
