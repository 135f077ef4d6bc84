// Package flow defines session management interfaces for the dialogue.
package flow

import (
	"context"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// SessionManager defines the interface for managing dialogue sessions.
type SessionManager interface {
	// LoadSession returns the user's session, or a fresh default session when none exists
	LoadSession(ctx context.Context, userID string) (*models.DialogueSession, error)

	// SaveSession persists the session
	SaveSession(ctx context.Context, session *models.DialogueSession) error

	// ResetSession replaces the user's session with a fresh default one
	ResetSession(ctx context.Context, userID, displayName string) (*models.DialogueSession, error)
}
