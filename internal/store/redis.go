package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/Recommendy/internal/models"
)

const (
	// DefaultSessionTTL is how long an idle session is kept in Redis.
	DefaultSessionTTL = 24 * time.Hour
	sessionKeyPrefix  = "recommendy:session:"
	activeSessionsKey = "recommendy:active_sessions"
)

// RedisOpts holds configuration for the Redis session store.
type RedisOpts struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisOption configures the Redis session store.
type RedisOption func(*RedisOpts)

// WithRedisAddr sets the Redis host:port.
func WithRedisAddr(addr string) RedisOption {
	return func(o *RedisOpts) { o.Addr = addr }
}

// WithRedisPassword sets the Redis password.
func WithRedisPassword(pw string) RedisOption {
	return func(o *RedisOpts) { o.Password = pw }
}

// WithRedisDB selects the Redis logical database.
func WithRedisDB(db int) RedisOption {
	return func(o *RedisOpts) { o.DB = db }
}

// WithSessionTTL sets the idle expiry of stored sessions.
func WithSessionTTL(ttl time.Duration) RedisOption {
	return func(o *RedisOpts) { o.TTL = ttl }
}

// RedisSessionStore keeps dialogue sessions in Redis with an idle TTL.
// Expired sessions read as absent.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Compile-time check that RedisSessionStore implements SessionStore.
var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(ctx context.Context, opts ...RedisOption) (*RedisSessionStore, error) {
	cfg := RedisOpts{TTL: DefaultSessionTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		slog.Error("RedisSessionStore ping failed", "error", err, "addr", cfg.Addr)
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	slog.Debug("RedisSessionStore connected", "addr", cfg.Addr, "ttl", cfg.TTL)
	return &RedisSessionStore{client: client, ttl: cfg.TTL}, nil
}

func sessionKey(userID string) string { return sessionKeyPrefix + userID }

func (s *RedisSessionStore) GetSession(ctx context.Context, userID string) (*models.DialogueSession, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisSessionStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session for %s: %w", userID, err)
	}
	return decodeSession(userID, data)
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, session *models.DialogueSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", session.UserID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.UserID), data, s.ttl)
	pipe.SAdd(ctx, activeSessionsKey, session.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("RedisSessionStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	slog.Debug("RedisSessionStore SaveSession succeeded", "userID", session.UserID)
	return nil
}

func (s *RedisSessionStore) DeleteSession(ctx context.Context, userID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(userID))
	pipe.SRem(ctx, activeSessionsKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// ActiveUsers returns the ids of users with a saved session. Ids whose session
// has expired are pruned from the set.
func (s *RedisSessionStore) ActiveUsers(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	var live []string
	for _, id := range ids {
		n, err := s.client.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check session %s: %w", id, err)
		}
		if n == 0 {
			s.client.SRem(ctx, activeSessionsKey, id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Close closes the Redis client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
