// Package session owns the authenticated-session state shared by every
// component of the client.
package session

import (
	"sync"

	"github.com/dmitrijs2005/podesk/internal/client/models"
)

// Session is a point-in-time copy of the session state.
type Session struct {
	Authenticated           bool
	User                    string
	CanApproveLoginRequests bool
}

// Store guards the session and the last known server auth status. The only
// way to become authenticated is Authenticate, which the shared completion
// path calls.
type Store struct {
	mu         sync.RWMutex
	session    Session
	status     models.AuthStatus
	haveStatus bool
	generation uint64
}

func NewStore() *Store {
	return &Store{}
}

// Authenticate establishes a session and bumps the generation.
func (s *Store) Authenticate(user string, canApprove bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{Authenticated: true, User: user, CanApproveLoginRequests: canApprove}
	s.generation++
}

// Clear drops the session and the approval capability.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.generation++
}

// SetCanApprove updates the capability without touching the rest.
func (s *Store) SetCanApprove(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.CanApproveLoginRequests = v
}

func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Authenticated
}

func (s *Store) CanApprove() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Authenticated && s.session.CanApproveLoginRequests
}

// Generation changes on every Authenticate and Clear. Async work captures it
// before a network call and compares afterwards to detect a stale result.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ApplyStatus records the server-reported status. It never authenticates;
// an unauthenticated status clears an existing session.
func (s *Store) ApplyStatus(st *models.AuthStatus) {
	if st == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = *st
	s.haveStatus = true
	if !st.Authenticated && s.session.Authenticated {
		s.session = Session{}
		s.generation++
	}
}

// Status returns the last applied status and whether one is known.
func (s *Store) Status() (models.AuthStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.haveStatus
}

// HasPasskey reports whether at least one passkey exists on the server.
// Unknown counts as false.
func (s *Store) HasPasskey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.haveStatus && s.status.HasPasskey
}

// CodeLoginEnabled reports whether the server accepts access codes.
func (s *Store) CodeLoginEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.haveStatus && s.status.CodeLogin.Enabled
}

// MarkPasskeyRegistered records a successful registration locally so the
// next ceremony no longer asks for a setup code.
func (s *Store) MarkPasskeyRegistered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.HasPasskey = true
	s.haveStatus = true
}
