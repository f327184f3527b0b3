package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lifeos/los-coach/internal/domain"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]*domain.Profile
	exchanges map[string][]*domain.Exchange
	now       func() time.Time
}

var _ Repository = (*MemoryStore)(nil)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*domain.Profile),
		exchanges: make(map[string][]*domain.Exchange),
		now:       time.Now,
	}
}

// GetProfile returns a copy of the stored profile.
func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return cloneProfile(p), nil
}

// UpsertProfile stores a copy of profile.
func (m *MemoryStore) UpsertProfile(_ context.Context, profile *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := cloneProfile(profile)
	if existing, ok := m.profiles[p.UserID]; ok && !existing.CreatedAt.IsZero() {
		p.CreatedAt = existing.CreatedAt
	}
	m.profiles[p.UserID] = p
	return nil
}

// AppendExchange stores a copy of ex.
func (m *MemoryStore) AppendExchange(_ context.Context, ex *domain.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ex
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.exchanges[c.UserID] = append(m.exchanges[c.UserID], &c)
	return nil
}

// ListExchanges returns copies of the last limit exchanges, oldest first.
func (m *MemoryStore) ListExchanges(_ context.Context, userID string, limit int) ([]*domain.Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.exchanges[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*domain.Exchange, 0, len(all))
	for _, ex := range all {
		c := *ex
		out = append(out, &c)
	}
	return out, nil
}

// DeleteExchanges clears the user's transcript.
func (m *MemoryStore) DeleteExchanges(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.exchanges[userID]))
	delete(m.exchanges, userID)
	return n, nil
}

// CleanupExpiredExchanges removes exchanges older than ttl.
func (m *MemoryStore) CleanupExpiredExchanges(_ context.Context, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-ttl)
	var removed int64
	for userID, list := range m.exchanges {
		kept := list[:0]
		for _, ex := range list {
			if ex.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, ex)
		}
		if len(kept) == 0 {
			delete(m.exchanges, userID)
		} else {
			m.exchanges[userID] = kept
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func cloneProfile(p *domain.Profile) *domain.Profile {
	c := *p
	c.Skills = slices.Clone(p.Skills)
	c.Goals = slices.Clone(p.Goals)
	if p.ActiveLaw != nil {
		law := *p.ActiveLaw
		c.ActiveLaw = &law
	}
	return &c
}
