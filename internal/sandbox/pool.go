package sandbox

import (
	"sync"

	"github.com/dop251/goja"
)

// Pool keeps fresh goja VMs ready so a reload does not pay for VM creation.
// VMs are handed out once and never returned: a reload always starts clean.
type Pool struct {
	fresh chan *goja.Runtime
	done  chan struct{}
	once  sync.Once
}

// NewPool creates a pool prewarmed with size VMs
func NewPool(size int) *Pool {
	if size < 0 {
		size = 0
	}

	p := &Pool{
		fresh: make(chan *goja.Runtime, size),
		done:  make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.fresh <- goja.New()
	}
	return p
}

// Acquire returns a VM that has never run any script
func (p *Pool) Acquire() *goja.Runtime {
	select {
	case vm := <-p.fresh:
		go p.refill()
		return vm
	default:
		return goja.New()
	}
}

func (p *Pool) refill() {
	vm := goja.New()
	select {
	case <-p.done:
	case p.fresh <- vm:
	default:
	}
}

// Available returns the number of prewarmed VMs
func (p *Pool) Available() int {
	return len(p.fresh)
}

// Close drops prewarmed VMs and stops refilling
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.done)
		for {
			select {
			case <-p.fresh:
			default:
				return
			}
		}
	})
}
