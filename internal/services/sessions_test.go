package services

import (
	"context"
	"testing"
	"time"

	"lottery/internal/models"
	"lottery/internal/session"
)

func TestSessionRegistry(t *testing.T) {
	r := NewSessionRegistry(network, func(who models.Identity) session.Host {
		return session.NewDevHost(network, who)
	})

	t.Run("Test one session per address", func(t *testing.T) {
		a := r.GetSession(alice)
		b := r.GetSession(alice)
		if a != b || a.ID == "" {
			t.Fatalf("Expected the same session, but got %s and %s", a.ID, b.ID)
		}
		who, err := a.Session.Ready(context.Background())
		if err != nil || who != alice {
			t.Errorf("Expected alice, but got %s (%v)", who.Hex(), err)
		}
		if r.GetSession(bob) == a {
			t.Error("Expected a separate session for bob")
		}
		if r.Len() != 2 {
			t.Errorf("Expected 2 sessions, but got %d", r.Len())
		}
	})

	t.Run("Test janitor removes idle sessions", func(t *testing.T) {
		r.GetSession(alice).LastActivity = time.Now().Add(-2 * time.Hour)
		if n := r.CleanUpInactiveSessions(time.Hour); n != 1 {
			t.Errorf("Expected 1 session removed, but got %d", n)
		}
		if r.Len() != 1 {
			t.Errorf("Expected 1 session left, but got %d", r.Len())
		}
	})

	t.Run("Test clear", func(t *testing.T) {
		r.ClearSession(bob)
		if r.Len() != 0 {
			t.Errorf("Expected no sessions, but got %d", r.Len())
		}
	})
}
