// Package session implements the server-side chunked-upload session store
// used by the agent's POST /deploy/chunk endpoint: a session is
// created on a request with no session id, extended by subsequent chunks
// carrying that id, and destroyed on commit, explicit cancel, or idle
// timeout. At most maxSessions sessions may be open at once; a new session
// beyond that limit evicts the oldest by last-touched time.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/rollouterr"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

const (
	// MaxSessions bounds concurrently open chunk sessions per agent.
	MaxSessions = 10
	// IdleTTL is how long a session may sit untouched before it is reaped.
	IdleTTL = 30 * time.Minute
)

// Session accumulates the files and deletions of one in-progress chunked
// upload until it is committed.
type Session struct {
	ID         string
	Files      []types.Entry
	Deletions  []string
	CreatedAt  time.Time
	LastTouch  time.Time
	ExpectedN  int
}

// Store is the in-memory collection of open sessions for one agent process.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore builds an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Begin creates a new session for a chunk request that carried no session
// id, evicting the oldest session first if the store is already at
// MaxSessions.
func (s *Store) Begin(expectedFiles int) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= MaxSessions {
		s.evictOldestLocked()
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		LastTouch: now,
		ExpectedN: expectedFiles,
	}
	s.sessions[sess.ID] = sess
	log.WithSessionID(sess.ID).Info().Msg("chunk session started")
	return sess
}

// evictOldestLocked removes the session with the smallest LastTouch.
// Callers must hold s.mu.
func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, sess := range s.sessions {
		if oldestID == "" || sess.LastTouch.Before(oldest) {
			oldestID = id
			oldest = sess.LastTouch
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
		log.WithSessionID(oldestID).Warn().Msg("evicted oldest chunk session to make room")
	}
}

// Append adds files/deletions to an existing session. Deletions are only
// honored on the very first chunk of a session; callers are expected to pass
// deletions only when len(existing.Files)==0 and existing.Deletions is
// empty. It does not refresh LastTouch: chunk arrivals are not activity for
// eviction/idle-reap purposes, so a client cannot pin a session past its TTL
// by trickling in chunks.
func (s *Store) Append(id string, files []types.Entry, deletions []string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, rollouterr.New(rollouterr.KindSessionExpired, "", "unknown or expired session "+id, nil)
	}

	if len(sess.Files) == 0 && len(sess.Deletions) == 0 {
		sess.Deletions = deletions
	}
	sess.Files = append(sess.Files, files...)
	return sess, nil
}

// Commit removes and returns a session for final processing.
func (s *Store) Commit(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, rollouterr.New(rollouterr.KindSessionExpired, "", "unknown or expired session "+id, nil)
	}
	delete(s.sessions, id)
	return sess, nil
}

// Cancel removes a session without returning its contents for processing.
// Canceling an already-gone session is not an error.
func (s *Store) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ReapIdle removes every session whose last touch predates the IdleTTL
// window. Intended to be called periodically from a background ticker.
func (s *Store) ReapIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-IdleTTL)
	reaped := 0
	for id, sess := range s.sessions {
		if sess.LastTouch.Before(cutoff) {
			delete(s.sessions, id)
			reaped++
			log.WithSessionID(id).Warn().Msg("reaped idle chunk session")
		}
	}
	return reaped
}

// Count reports the number of currently open sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
