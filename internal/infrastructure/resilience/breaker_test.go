package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFetch = errors.New("fetch failed")

// clock is a manually advanced time source
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	b := New("cdn.example", settings)
	b.now = c.now
	b.expiry = b.windowEnd(c.now())
	return b, c
}

func outcome(success bool) func() error {
	return func() error {
		if success {
			return nil
		}
		return errFetch
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Threshold: 2},
			requests: []bool{true, true, true},
			want:     StateClosed,
		},
		{
			name:     "success resets the failure streak",
			settings: Settings{Threshold: 2},
			requests: []bool{false, true, false},
			want:     StateClosed,
		},
		{
			name:     "opens after consecutive failures",
			settings: Settings{Threshold: 3},
			requests: []bool{false, false, false},
			want:     StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(tt.settings)
			for _, success := range tt.requests {
				_ = b.Do(outcome(success))
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerOpenRejects(t *testing.T) {
	b, _ := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Minute})

	require.ErrorIs(t, b.Do(outcome(false)), errFetch)

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	tests := []struct {
		name  string
		probe bool
		want  State
	}{
		{"probe success closes", true, StateClosed},
		{"probe failure reopens", false, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, c := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Second, Probes: 1})
			_ = b.Do(outcome(false))
			require.Equal(t, StateOpen, b.State())

			c.advance(2 * time.Second)
			require.Equal(t, StateHalfOpen, b.State())

			_ = b.Do(outcome(tt.probe))
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b, c := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Second, Probes: 1})
	_ = b.Do(outcome(false))
	c.advance(2 * time.Second)

	var second error
	err := b.Do(func() error {
		second = b.Do(outcome(true))
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, second, ErrTooManyRequests)
}

func TestBreakerWindowClearsCounts(t *testing.T) {
	b, c := newTestBreaker(Settings{Threshold: 3, Window: time.Minute})

	_ = b.Do(outcome(false))
	_ = b.Do(outcome(false))
	assert.Equal(t, uint32(2), b.Counts().ConsecutiveFailures)

	c.advance(2 * time.Minute)
	_ = b.Do(outcome(false))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().Failures)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{Threshold: 1})

	assert.Panics(t, func() {
		_ = b.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	settings := Settings{
		Threshold: 1,
		Cooldown:  time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	}
	b, c := newTestBreaker(settings)

	_ = b.Do(outcome(false))
	c.advance(2 * time.Second)
	_ = b.Do(outcome(true))

	assert.Equal(t, []string{
		"cdn.example:closed->open",
		"cdn.example:open->half-open",
		"cdn.example:half-open->closed",
	}, transitions)
}

func TestGroupIsolatesKeys(t *testing.T) {
	g := NewGroup(Settings{Threshold: 1, Cooldown: time.Minute})

	_ = g.Do("a.example", outcome(false))
	assert.ErrorIs(t, g.Do("a.example", outcome(true)), ErrCircuitOpen)
	assert.NoError(t, g.Do("b.example", outcome(true)))

	assert.Same(t, g.Get("a.example"), g.Get("a.example"))
	assert.Equal(t, map[string]State{
		"a.example": StateOpen,
		"b.example": StateClosed,
	}, g.States())
}
