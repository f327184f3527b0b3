// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lifeos/los-coach/internal/config"
	"github.com/lifeos/los-coach/internal/domain"
)

// Repository persists dashboard profiles and the coach transcript.
type Repository interface {
	// GetProfile returns the profile for userID, or nil if there is none.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpsertProfile creates or replaces a profile.
	UpsertProfile(ctx context.Context, profile *domain.Profile) error

	// AppendExchange adds one coach turn to the user's transcript.
	AppendExchange(ctx context.Context, ex *domain.Exchange) error

	// ListExchanges returns the last limit exchanges for userID, oldest first.
	ListExchanges(ctx context.Context, userID string, limit int) ([]*domain.Exchange, error)

	// DeleteExchanges clears the user's transcript.
	DeleteExchanges(ctx context.Context, userID string) (int64, error)

	// CleanupExpiredExchanges removes exchanges older than ttl.
	CleanupExpiredExchanges(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Open builds the repository selected by cfg.
func Open(cfg config.StorageConfig) (Repository, error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		return NewMemory(), nil
	case config.StorageSQLite:
		return NewSQLite(cfg.DBPath)
	case config.StoragePostgres:
		return NewPostgres(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
