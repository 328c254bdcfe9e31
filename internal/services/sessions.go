package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/CloudCabinet/Drive-Service/internal/models"
)

// SessionStore is the persistence surface for sessions; PostgresService
// implements it.
type SessionStore interface {
	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, token string) (models.Session, bool, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SessionManager mints opaque session tokens at login and resolves them
// on every request until TTL expiry or logout.
type SessionManager struct {
	store SessionStore
	ttl   time.Duration
}

var sessionInstance *SessionManager

func InitializeSessions(store SessionStore, ttl time.Duration) {
	sessionInstance = &SessionManager{store: store, ttl: ttl}
}

func GetSessionManager() *SessionManager {
	return sessionInstance
}

// Login creates a session for an already-verified user.
func (s *SessionManager) Login(ctx context.Context, user models.User) (models.Session, error) {
	session := models.Session{
		Token:     uuid.New().String(),
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// Resolve looks up a session token; expired or unknown tokens come back
// as absent.
func (s *SessionManager) Resolve(ctx context.Context, token string) (models.Session, bool) {
	session, ok, err := s.store.GetSession(ctx, token)
	if err != nil {
		log.Printf("[AUTH] Session lookup failed: %v", err)
		return models.Session{}, false
	}
	return session, ok
}

// Logout deletes the session; logging out an unknown token is a no-op.
func (s *SessionManager) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// StartSweeper periodically clears expired sessions until ctx is done.
func (s *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.DeleteExpiredSessions(ctx)
				if err != nil {
					log.Printf("[AUTH] Session sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("[AUTH] Swept %d expired sessions", n)
				}
			}
		}
	}()
}
