package sandbox

import "sync"

const subscriberBuffer = 64

// Console is the append-only sink of relayed messages. Subscribers are woken
// with each appended message; a full subscriber buffer drops the message, so
// readers that must not lose entries read them back with Since.
type Console struct {
	mu      sync.RWMutex
	entries []Message
	subs    map[chan Message]struct{}
}

// NewConsole creates an empty console
func NewConsole() *Console {
	return &Console{
		subs: make(map[chan Message]struct{}),
	}
}

// Append stores msg and fans it out to subscribers
func (c *Console) Append(msg Message) {
	c.mu.Lock()
	msg.Seq = uint64(len(c.entries)) + 1
	c.entries = append(c.entries, msg)
	for ch := range c.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	c.mu.Unlock()
}

// Entries returns a copy of every message in arrival order
func (c *Console) Entries() []Message {
	return c.Since(0)
}

// Since returns the messages with a sequence number above seq
func (c *Console) Since(seq uint64) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if seq >= uint64(len(c.entries)) {
		return []Message{}
	}
	return append([]Message(nil), c.entries[seq:]...)
}

// Len returns the number of stored messages
func (c *Console) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Subscribe registers for new messages. cancel must be called to release it.
func (c *Console) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close ends every subscription. Stored entries stay readable.
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}
