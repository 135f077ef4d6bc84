// Package store provides storage backends for Recommendy.
//
// It includes an in-memory store plus SQLite and PostgreSQL stores for
// dialogue sessions, recommendation records and inbound message dedup, and a
// Redis-backed session store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// Opts holds configuration for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and keyword DSNs, and
// "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return "postgres"
	case strings.Contains(d, "host=") || strings.Contains(d, "dbname="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// SessionStore persists dialogue sessions keyed by user id.
type SessionStore interface {
	// GetSession returns the stored session, or nil when there is none.
	GetSession(ctx context.Context, userID string) (*models.DialogueSession, error)
	SaveSession(ctx context.Context, session *models.DialogueSession) error
	DeleteSession(ctx context.Context, userID string) error
}

// RecordStore persists write-once recommendation records.
type RecordStore interface {
	AppendRecommendation(ctx context.Context, rec models.RecommendationRecord) error
	// ListRecommendations returns a user's records, most recent first.
	ListRecommendations(ctx context.Context, userID string) ([]models.RecommendationRecord, error)
}

// Store is a complete storage backend.
type Store interface {
	SessionStore
	RecordStore
	DedupRepo
	Close() error
}

// InMemoryStore keeps everything in process memory. Sessions are stored as
// JSON so callers never share maps with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	records  []models.RecommendationRecord
	inbound  map[string]*DedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]byte),
		inbound:  make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) GetSession(_ context.Context, userID string) (*models.DialogueSession, error) {
	s.mu.RLock()
	data, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var session models.DialogueSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session for %s: %w", userID, err)
	}
	return &session, nil
}

func (s *InMemoryStore) SaveSession(_ context.Context, session *models.DialogueSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", session.UserID, err)
	}
	s.mu.Lock()
	s.sessions[session.UserID] = data
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) AppendRecommendation(_ context.Context, rec models.RecommendationRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	slog.Debug("InMemoryStore AppendRecommendation succeeded", "userID", rec.UserID, "id", rec.ID)
	return nil
}

func (s *InMemoryStore) ListRecommendations(_ context.Context, userID string) ([]models.RecommendationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RecommendationRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserID == userID {
			out = append(out, s.records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.inbound[messageID]
	s.mu.RUnlock()
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = &DedupRecord{MessageID: messageID, UserID: userID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) ForgetInbound(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok && rec.ProcessedAt == nil {
		delete(s.inbound, messageID)
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
