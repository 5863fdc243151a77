// Package library keeps the ordered list of external script URLs injected into every render.
package library

import "sync"

// Registry is an append-only, ordered list of script URLs. Duplicates are kept.
type Registry struct {
	mu   sync.RWMutex
	urls []string
}

// NewRegistry creates a registry seeded with urls
func NewRegistry(urls ...string) *Registry {
	return &Registry{urls: append([]string(nil), urls...)}
}

// Append adds url at the end of the list. The URL is not validated.
func (r *Registry) Append(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
}

// List returns a copy of the URLs in insertion order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.urls...)
}

// Len returns the number of registered URLs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.urls)
}
