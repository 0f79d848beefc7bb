// Package session keeps opaque, expiring session tokens that stand in for a
// JWT after login.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL is how long a session stays valid after creation.
const DefaultTTL = 7 * 24 * time.Hour

// Session is the identity bound to a token.
type Session struct {
	Token     string
	UserID    uint
	CompanyID uint
	Role      string
	Name      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists sessions keyed by token.
type Store interface {
	// Create issues a new token for s and returns the stored session.
	Create(ctx context.Context, s Session) (*Session, error)
	// Get returns the live session for token, or ErrNotFound.
	Get(ctx context.Context, token string) (*Session, error)
	// Delete revokes token. Unknown tokens are ignored.
	Delete(ctx context.Context, token string) error
	// Sweep removes expired sessions and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore returns an empty store. A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) (*Session, error) {
	if s.UserID == 0 || s.CompanyID == 0 {
		return nil, fmt.Errorf("%w: session needs a user and a company", e.ErrInvalidInput)
	}
	now := m.now()
	s.Token = uuid.NewString()
	s.CreatedAt = now
	s.ExpiresAt = now.Add(m.ttl)

	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()
	return &s, nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok || !m.now().Before(s.ExpiresAt) {
		return nil, fmt.Errorf("%w: session", e.ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunSweeper sweeps store every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) {
	logger = logger.Named("session_sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Sweep(ctx)
			if err != nil {
				logger.Warn("Session sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("Expired sessions removed", zap.Int("removed", removed))
			}
		}
	}
}
