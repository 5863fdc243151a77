package fragment

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownKind is returned when a kind name cannot be parsed.
var ErrUnknownKind = errors.New("unknown fragment kind")

// Kind identifies one of the three fragments
type Kind string

const (
	Markup Kind = "markup"
	Style  Kind = "style"
	Script Kind = "script"
)

// Kinds lists every fragment kind in composition order
var Kinds = []Kind{Markup, Style, Script}

// ParseKind accepts the canonical names plus the editor aliases (html, css, js)
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markup", "html":
		return Markup, nil
	case "style", "css":
		return Style, nil
	case "script", "js", "javascript":
		return Script, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Fragment is a single source text
type Fragment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Set is an immutable copy of all fragments. Missing kinds read as empty.
type Set map[Kind]string

// Text returns the fragment text for kind, or "" when absent
func (s Set) Text(kind Kind) string {
	return s[kind]
}

// Store holds the live fragments of one session
type Store struct {
	mu    sync.RWMutex
	texts map[Kind]string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{texts: make(map[Kind]string, len(Kinds))}
}

// Text returns the current text for kind
func (s *Store) Text(kind Kind) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.texts[kind]
}

// SetText replaces the text for kind
func (s *Store) SetText(kind Kind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[kind] = text
}

// Load replaces every kind present in set
func (s *Store) Load(set Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, text := range set {
		s.texts[kind] = text
	}
}

// Snapshot copies the current fragments
func (s *Store) Snapshot() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(Set, len(Kinds))
	for _, kind := range Kinds {
		set[kind] = s.texts[kind]
	}
	return set
}

// List returns the fragments in composition order
func (s *Store) List() []Fragment {
	set := s.Snapshot()
	out := make([]Fragment, 0, len(Kinds))
	for _, kind := range Kinds {
		out = append(out, Fragment{Kind: kind, Text: set[kind]})
	}
	return out
}
