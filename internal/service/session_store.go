package service

import (
	"sync"
	"time"

	"lumifax/internal/models"
)

// SessionStore is the single source of truth for batch session state. One
// instance is constructed at startup and shared by the dispatcher, the
// analysis driver and the results endpoint. Each method completes its
// mutation under the lock, so no caller can observe a half-written session.
//
// Sessions are never deleted: they are short-lived, volatile state scoped to
// the process lifetime.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
	}
}

// SessionUpdate is a partial mutation; nil fields are left untouched.
// A non-nil Results replaces the stored slice, but only when it does not
// shrink it (results are append-only until the terminal state).
type SessionUpdate struct {
	Status   *models.SessionStatus
	Progress *int
	Error    *string
	Results  []models.FileResult
}

// Create inserts a new session, overwriting any entry with the same id.
// Callers guarantee id uniqueness (UUIDs).
func (s *SessionStore) Create(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.sessions[id] = &models.Session{
		ID:        id,
		Status:    models.StatusProcessing,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Get returns a snapshot of the session, safe to retain and mutate.
func (s *SessionStore) Get(id string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return snapshot(sess), true
}

// Update merges a partial update into the session, creating a default
// processing entry if the id is unknown. Progress never decreases and a
// terminal status never reverts.
func (s *SessionStore) Update(id string, upd SessionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &models.Session{
			ID:        id,
			Status:    models.StatusProcessing,
			CreatedAt: time.Now(),
		}
		s.sessions[id] = sess
	}

	if upd.Status != nil && !sess.Status.Terminal() {
		sess.Status = *upd.Status
	}
	if upd.Progress != nil && *upd.Progress > sess.Progress {
		sess.Progress = *upd.Progress
	}
	if upd.Error != nil {
		sess.Error = *upd.Error
	}
	if upd.Results != nil && len(upd.Results) >= len(sess.Results) {
		sess.Results = append([]models.FileResult(nil), upd.Results...)
	}
	sess.UpdatedAt = time.Now()
}

// ListIDs returns the ids of all known sessions, for diagnostics.
func (s *SessionStore) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func snapshot(sess *models.Session) *models.Session {
	cp := *sess
	cp.Results = append([]models.FileResult(nil), sess.Results...)
	return &cp
}
