package sos

import "sync"

// Session is the per-chat suppression state. It lives only in memory.
type Session struct {
	mu        sync.Mutex
	dismissed bool
}

// NewSession returns a session with no dismissal
func NewSession() *Session {
	return &Session{}
}

// Dismiss suppresses automatic matches until an explicit crisis flag is seen
func (s *Session) Dismiss() {
	s.mu.Lock()
	s.dismissed = true
	s.mu.Unlock()
}

// Dismissed reports whether automatic matches are suppressed
func (s *Session) Dismissed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dismissed
}

func (s *Session) clearDismissal() {
	s.mu.Lock()
	s.dismissed = false
	s.mu.Unlock()
}
