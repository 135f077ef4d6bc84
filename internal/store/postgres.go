// Package store provides storage backends for Recommendy.
//
// This file implements a PostgreSQL-backed store for sessions and recommendations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/Recommendy/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, userID string) (*models.DialogueSession, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session for %s: %w", userID, err)
	}
	return decodeSession(userID, data)
}

func (s *PostgresStore) SaveSession(ctx context.Context, session *models.DialogueSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", session.UserID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		session.UserID, data, time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "userID", session.UserID)
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) AppendRecommendation(ctx context.Context, rec models.RecommendationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recommendations (`+recommendationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		recommendationArgs(rec)...,
	)
	if err != nil {
		slog.Error("PostgresStore AppendRecommendation failed", "error", err, "userID", rec.UserID)
		return fmt.Errorf("failed to insert recommendation for %s: %w", rec.UserID, err)
	}
	slog.Debug("PostgresStore AppendRecommendation succeeded", "userID", rec.UserID, "id", rec.ID)
	return nil
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, userID string) ([]models.RecommendationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE user_id = $1 ORDER BY created_at DESC, seq DESC`,
		userID,
	)
	if err != nil {
		slog.Error("PostgresStore ListRecommendations query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	recs, err := collectRecommendations(rows)
	if err != nil {
		slog.Error("PostgresStore ListRecommendations scan failed", "error", err, "userID", userID)
		return nil, err
	}
	slog.Debug("PostgresStore ListRecommendations succeeded", "userID", userID, "count", len(recs))
	return recs, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
