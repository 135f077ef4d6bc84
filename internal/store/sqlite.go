// Package store provides storage backends for Recommendy.
//
// This file implements an SQLite-backed store for sessions and recommendations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/Recommendy/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection serialises writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*models.DialogueSession, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session for %s: %w", userID, err)
	}
	return decodeSession(userID, data)
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *models.DialogueSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", session.UserID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		session.UserID, string(data), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "userID", session.UserID)
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendRecommendation(ctx context.Context, rec models.RecommendationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recommendations (`+recommendationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recommendationArgs(rec)...,
	)
	if err != nil {
		slog.Error("SQLiteStore AppendRecommendation failed", "error", err, "userID", rec.UserID)
		return fmt.Errorf("failed to insert recommendation for %s: %w", rec.UserID, err)
	}
	slog.Debug("SQLiteStore AppendRecommendation succeeded", "userID", rec.UserID, "id", rec.ID)
	return nil
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, userID string) ([]models.RecommendationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE user_id = ? ORDER BY created_at DESC, seq DESC`,
		userID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListRecommendations query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	recs, err := collectRecommendations(rows)
	if err != nil {
		slog.Error("SQLiteStore ListRecommendations scan failed", "error", err, "userID", userID)
		return nil, err
	}
	slog.Debug("SQLiteStore ListRecommendations succeeded", "userID", userID, "count", len(recs))
	return recs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
