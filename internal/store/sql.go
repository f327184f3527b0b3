package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/lifeos/los-coach/internal/domain"
)

// SQLStore implements Repository on top of sqlx. It serves both the
// embedded SQLite database and PostgreSQL; queries are written with '?'
// and rebound per driver.
type SQLStore struct {
	db      *sqlx.DB
	driver  string
	writeMu sync.Mutex // serializes SQLite writers to avoid SQLITE_BUSY
}

var _ Repository = (*SQLStore)(nil)

type profileRow struct {
	UserID        string         `db:"user_id"`
	SkillsJSON    string         `db:"skills_json"`
	GoalsJSON     string         `db:"goals_json"`
	ActiveLawJSON sql.NullString `db:"active_law_json"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
}

type exchangeRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	SessionID string `db:"session_id"`
	Message   string `db:"message"`
	Reply     string `db:"reply"`
	Outcome   string `db:"outcome"`
	CreatedAt int64  `db:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	skills_json TEXT NOT NULL,
	goals_json TEXT NOT NULL,
	active_law_json TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS exchanges (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	message TEXT NOT NULL,
	reply TEXT NOT NULL,
	outcome TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchanges_user_created ON exchanges(user_id, created_at);
`

// NewSQLite opens (creating if needed) a SQLite database at dbPath.
func NewSQLite(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, "sqlite")
}

// NewPostgres connects to the PostgreSQL database at databaseURL.
func NewPostgres(databaseURL string) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, "postgres")
}

func newSQLStore(db *sqlx.DB, driver string) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLStore{db: db, driver: driver}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

func (s *SQLStore) write(ctx context.Context, op string, fn func() error) error {
	if s.driver == "sqlite" {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	return withRetry(ctx, op, fn)
}

// GetProfile returns the profile for userID, or nil if none exists.
func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT user_id, skills_json, goals_json, active_law_json, created_at, updated_at
		FROM profiles WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	p := &domain.Profile{
		UserID:    row.UserID,
		CreatedAt: time.Unix(0, row.CreatedAt),
		UpdatedAt: time.Unix(0, row.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(row.SkillsJSON), &p.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	if err := json.Unmarshal([]byte(row.GoalsJSON), &p.Goals); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	if row.ActiveLawJSON.Valid && row.ActiveLawJSON.String != "" {
		var law domain.GrowthLaw
		if err := json.Unmarshal([]byte(row.ActiveLawJSON.String), &law); err != nil {
			return nil, fmt.Errorf("decode active law: %w", err)
		}
		p.ActiveLaw = &law
	}
	return p, nil
}

// UpsertProfile creates or replaces a profile. CreatedAt is preserved on update.
func (s *SQLStore) UpsertProfile(ctx context.Context, profile *domain.Profile) error {
	skills, err := json.Marshal(profile.Skills)
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	goals, err := json.Marshal(profile.Goals)
	if err != nil {
		return fmt.Errorf("encode goals: %w", err)
	}
	var activeLaw sql.NullString
	if profile.ActiveLaw != nil {
		b, err := json.Marshal(profile.ActiveLaw)
		if err != nil {
			return fmt.Errorf("encode active law: %w", err)
		}
		activeLaw = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now()
	created := profile.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := profile.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	query := s.q(`
		INSERT INTO profiles (user_id, skills_json, goals_json, active_law_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			skills_json = excluded.skills_json,
			goals_json = excluded.goals_json,
			active_law_json = excluded.active_law_json,
			updated_at = excluded.updated_at`)

	return s.write(ctx, "upsert profile", func() error {
		_, err := s.db.ExecContext(ctx, query,
			profile.UserID, string(skills), string(goals), activeLaw,
			created.UnixNano(), updated.UnixNano())
		return err
	})
}

// AppendExchange inserts one transcript entry.
func (s *SQLStore) AppendExchange(ctx context.Context, ex *domain.Exchange) error {
	created := ex.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	query := s.q(`
		INSERT INTO exchanges (id, user_id, session_id, message, reply, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	return s.write(ctx, "append exchange", func() error {
		_, err := s.db.ExecContext(ctx, query,
			ex.ID, ex.UserID, ex.SessionID, ex.Message, ex.Reply, string(ex.Outcome), created.UnixNano())
		return err
	})
}

// ListExchanges returns the last limit exchanges for userID, oldest first.
// A non-positive limit returns the whole transcript.
func (s *SQLStore) ListExchanges(ctx context.Context, userID string, limit int) ([]*domain.Exchange, error) {
	var rows []exchangeRow
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &rows, s.q(`
			SELECT id, user_id, session_id, message, reply, outcome, created_at
			FROM exchanges WHERE user_id = ?
			ORDER BY created_at DESC LIMIT ?`), userID, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, s.q(`
			SELECT id, user_id, session_id, message, reply, outcome, created_at
			FROM exchanges WHERE user_id = ?
			ORDER BY created_at DESC`), userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}

	out := make([]*domain.Exchange, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = &domain.Exchange{
			ID:        row.ID,
			UserID:    row.UserID,
			SessionID: row.SessionID,
			Message:   row.Message,
			Reply:     row.Reply,
			Outcome:   domain.ExchangeOutcome(row.Outcome),
			CreatedAt: time.Unix(0, row.CreatedAt),
		}
	}
	return out, nil
}

// DeleteExchanges removes the user's whole transcript.
func (s *SQLStore) DeleteExchanges(ctx context.Context, userID string) (int64, error) {
	return s.deleteWhere(ctx, "delete exchanges", `DELETE FROM exchanges WHERE user_id = ?`, userID)
}

// CleanupExpiredExchanges removes exchanges older than ttl.
func (s *SQLStore) CleanupExpiredExchanges(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).UnixNano()
	return s.deleteWhere(ctx, "cleanup exchanges", `DELETE FROM exchanges WHERE created_at < ?`, cutoff)
}

func (s *SQLStore) deleteWhere(ctx context.Context, op, query string, arg any) (int64, error) {
	var n int64
	err := s.write(ctx, op, func() error {
		res, err := s.db.ExecContext(ctx, s.q(query), arg)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
