package services

import (
	"strings"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"lottery/internal/models"
	"lottery/internal/session"
)

// HostFactory builds the wallet host for a newly seen caller.
type HostFactory func(who models.Identity) session.Host

// UserSession holds the session state of a single caller.
type UserSession struct {
	ID           string
	Session      *session.Session
	LastActivity time.Time
}

// SessionRegistry manages one session per caller address.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*UserSession // Key: lowercase address
	required models.NetworkID
	newHost  HostFactory
}

// NewSessionRegistry creates a registry whose sessions require network required.
func NewSessionRegistry(required models.NetworkID, newHost HostFactory) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*UserSession),
		required: required,
		newHost:  newHost,
	}
}

// GetSession returns the session for who, creating one if it doesn't exist.
func (r *SessionRegistry) GetSession(who models.Identity) *UserSession {
	key := strings.ToLower(who.Hex())

	r.mu.Lock()
	defer r.mu.Unlock()

	us, exists := r.sessions[key]
	if !exists {
		us = &UserSession{
			ID:      uuid.NewString(),
			Session: session.New(r.newHost(who), r.required),
		}
		r.sessions[key] = us
		logger.Infof("Opened session %s for %s", us.ID, who.Hex())
	}
	us.LastActivity = time.Now()
	return us
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CleanUpInactiveSessions removes sessions idle for longer than idle.
func (r *SessionRegistry) CleanUpInactiveSessions(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, us := range r.sessions {
		if time.Since(us.LastActivity) > idle {
			logger.Infof("Expired session %s for %s", us.ID, key)
			delete(r.sessions, key)
			removed++
		}
	}
	return removed
}

// ClearSession removes the session of who.
func (r *SessionRegistry) ClearSession(who models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, strings.ToLower(who.Hex()))
	logger.Infof("Cleared session for %s", who.Hex())
}
