package sandbox

import (
	"errors"
	"time"
)

var (
	ErrClosed          = errors.New("sandbox is closed")
	ErrStaleGeneration = errors.New("stale generation")
)

// Class is the classification of a relayed message
type Class string

const (
	ClassLog   Class = "log"
	ClassError Class = "error"
	ClassInfo  Class = "info"
)

// Valid reports whether c is one of the classes the relay forwards
func (c Class) Valid() bool {
	switch c {
	case ClassLog, ClassError, ClassInfo:
		return true
	}
	return false
}

// Message is one unit of output from the execution context
type Message struct {
	Seq        uint64    `json:"seq"`
	Class      Class     `json:"type"`
	Payload    string    `json:"data"`
	Generation uint64    `json:"generation"`
	Time       time.Time `json:"time"`
}

// State of the execution context as seen by the renderer
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Context is the isolated environment a Renderer drives.
//
// Reload discards all state and loads the idle base document; ready is called
// asynchronously once for that generation. Write replaces the whole document
// in one step. InjectHead replaces the head content. Calls carrying a
// generation other than the latest reload are ignored.
type Context interface {
	Reload(generation uint64, ready func(generation uint64)) error
	Write(generation uint64, document string) error
	InjectHead(generation uint64, head string) error
	Close() error
}

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // per-script execution timeout
	MaxCallStackSize int           // goja call stack limit
	PoolSize         int           // prewarmed VMs
	QueueSize        int           // event loop queue capacity
	SkipScripts      []string      // src values handled natively (console relay shim)
}

// DefaultConfig returns the configuration used by the server
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		PoolSize:         2,
		QueueSize:        256,
		SkipScripts:      []string{"/static/relay.js"},
	}
}
