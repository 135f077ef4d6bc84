// Package flow provides concrete implementations of session management.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/store"
)

// StoreBasedSessionManager implements SessionManager using a SessionStore backend.
type StoreBasedSessionManager struct {
	store store.SessionStore
}

// NewStoreBasedSessionManager creates a new SessionManager backed by a SessionStore.
func NewStoreBasedSessionManager(st store.SessionStore) *StoreBasedSessionManager {
	slog.Debug("Creating StoreBasedSessionManager")
	return &StoreBasedSessionManager{store: st}
}

// LoadSession retrieves the session for a user. An absent or expired session
// yields fresh defaults.
func (sm *StoreBasedSessionManager) LoadSession(ctx context.Context, userID string) (*models.DialogueSession, error) {
	slog.Debug("SessionManager LoadSession", "userID", userID)

	session, err := sm.store.GetSession(ctx, userID)
	if err != nil {
		slog.Error("SessionManager LoadSession error", "error", err, "userID", userID)
		return nil, fmt.Errorf("load session for %s: %w", userID, err)
	}

	if session == nil {
		slog.Debug("SessionManager LoadSession not found, using defaults", "userID", userID)
		return models.NewDialogueSession(userID, ""), nil
	}

	session.Normalize()
	slog.Debug("SessionManager LoadSession found", "userID", userID, "step", session.CurrentStep)
	return session, nil
}

// SaveSession stamps and persists the session.
func (sm *StoreBasedSessionManager) SaveSession(ctx context.Context, session *models.DialogueSession) error {
	session.UpdatedAt = time.Now()
	if err := sm.store.SaveSession(ctx, session); err != nil {
		slog.Error("SessionManager SaveSession error", "error", err, "userID", session.UserID)
		return fmt.Errorf("save session for %s: %w", session.UserID, err)
	}
	slog.Debug("SessionManager SaveSession succeeded", "userID", session.UserID, "step", session.CurrentStep)
	return nil
}

// ResetSession stores and returns a fresh session for the user.
func (sm *StoreBasedSessionManager) ResetSession(ctx context.Context, userID, displayName string) (*models.DialogueSession, error) {
	session := models.NewDialogueSession(userID, displayName)
	if err := sm.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	slog.Info("SessionManager ResetSession succeeded", "userID", userID)
	return session, nil
}
