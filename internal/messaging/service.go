// Package messaging connects chat channels (WhatsApp via whatsmeow or Twilio)
// to the conversation manager.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/BTreeMap/Recommendy/internal/models"
)

const (
	// DefaultChannelBufferSize defines the buffer size of inbound message channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an emit waits on a full channel
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted phone number
	minPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service is a chat channel: it sends text and delivers inbound messages.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a recipient identifier and
	// returns its canonical form, which doubles as the conversation user ID.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event subscriptions).
	Start(ctx context.Context) error

	// Stop stops background processing and closes Messages.
	Stop() error

	// Messages returns the channel of inbound chat messages.
	Messages() <-chan models.InboundMessage
}

// canonicalizePhone strips everything but digits and requires a plausible length.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	return canonical, nil
}
