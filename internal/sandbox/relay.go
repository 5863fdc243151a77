package sandbox

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
)

// DefaultRelayBuffer is the inbound queue capacity
const DefaultRelayBuffer = 1024

// Sink receives forwarded messages in order
type Sink interface {
	Append(msg Message)
}

// Relay is the one-way channel from an execution context to the host.
//
// Producers never block: when the queue is full the message is dropped.
// A single consumer filters by class and generation and forwards to the sink.
type Relay struct {
	sink      Sink
	current   func() uint64
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	in   chan Message
	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewRelay starts a relay forwarding to sink. current reports the active generation.
func NewRelay(sink Sink, current func() uint64, logger *zap.Logger) *Relay {
	return NewRelayWithBuffer(sink, current, logger, DefaultRelayBuffer)
}

// NewRelayWithBuffer starts a relay with a custom queue capacity
func NewRelayWithBuffer(sink Sink, current func() uint64, logger *zap.Logger, buffer int) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = DefaultRelayBuffer
	}

	r := &Relay{
		sink:      sink,
		current:   current,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger,
		in:        make(chan Message, buffer),
		done:      make(chan struct{}),
	}

	r.wg.Add(1)
	go r.consume()

	return r
}

// WithMetrics attaches a metrics collector
func (r *Relay) WithMetrics(metrics *monitoring.Metrics) *Relay {
	r.metrics = metrics
	return r
}

// Publish enqueues a typed message. Reports false if it was not accepted.
func (r *Relay) Publish(msg Message) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	select {
	case r.in <- msg:
		return true
	case <-r.done:
		return false
	default:
		r.record("overflow")
		return false
	}
}

// Post enqueues a message of arbitrary shape, as posted by a browser iframe:
//
//	{"type": "log", "data": "...", "generation": 3}
//
// Anything without a string type is dropped.
func (r *Relay) Post(raw map[string]any) bool {
	class, ok := raw["type"].(string)
	if !ok {
		r.record("malformed")
		return false
	}

	return r.Publish(Message{
		Class:      Class(class),
		Payload:    payloadString(raw["data"]),
		Generation: generationOf(raw["generation"]),
	})
}

// Close stops the consumer. Messages still queued are discarded.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Relay) consume() {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case msg := <-r.in:
			r.forward(msg)
		}
	}
}

func (r *Relay) forward(msg Message) {
	if !msg.Class.Valid() {
		r.record("unknown_class")
		return
	}

	active := r.current()
	if msg.Generation == 0 {
		msg.Generation = active
	} else if msg.Generation != active {
		r.record("stale")
		return
	}

	msg.Payload = r.sanitizer.Sanitize(msg.Payload)
	r.sink.Append(msg)
	r.record("forwarded")
}

func (r *Relay) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordRelay(outcome)
	}
}

func payloadString(v any) string {
	switch data := v.(type) {
	case nil:
		return ""
	case string:
		return data
	case []any:
		parts := make([]string, 0, len(data))
		for _, item := range data {
			parts = append(parts, payloadString(item))
		}
		return strings.Join(parts, " ")
	case map[string]any:
		out, err := sonic.MarshalString(data)
		if err != nil {
			return fmt.Sprint(data)
		}
		return out
	default:
		return fmt.Sprint(data)
	}
}

func generationOf(v any) uint64 {
	switch g := v.(type) {
	case float64:
		if g > 0 {
			return uint64(g)
		}
	case int:
		if g > 0 {
			return uint64(g)
		}
	case int64:
		if g > 0 {
			return uint64(g)
		}
	case uint64:
		return g
	}
	return 0
}
