// Package models defines state management structures for Recommendy dialogues.
package models

import "time"

// DialogueSession is the per-user mutable state of one slot-filling conversation.
type DialogueSession struct {
	UserID       string                `json:"user_id"`
	CurrentStep  int                   `json:"current_step"`
	Utterances   map[SlotName]string   `json:"utterances"`    // last raw text given at each step
	Slots        map[SlotName][]string `json:"slots"`         // extracted matches; frozen once non-empty
	Sentiment    Sentiment             `json:"sentiment"`     // set once, on the greeting turn
	Urgent       bool                  `json:"urgent"`        // set once, alongside Sentiment
	SentimentSet bool                  `json:"sentiment_set"` // true after the first classification
	DisplayName  string                `json:"display_name,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// NewDialogueSession returns a session reset to its defaults.
func NewDialogueSession(userID, displayName string) *DialogueSession {
	now := time.Now()
	return &DialogueSession{
		UserID:      userID,
		CurrentStep: 0,
		Utterances:  make(map[SlotName]string),
		Slots:       make(map[SlotName][]string),
		Sentiment:   SentimentNeutral,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasSlot reports whether a non-empty value list was extracted for the slot.
func (s *DialogueSession) HasSlot(name SlotName) bool {
	return len(s.Slots[name]) > 0
}

// FirstSlot returns the first extracted value for a slot, or "" when unset.
func (s *DialogueSession) FirstSlot(name SlotName) string {
	if v := s.Slots[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Normalize fills nil maps and an empty sentiment, e.g. after decoding a stored session.
func (s *DialogueSession) Normalize() {
	if s.Utterances == nil {
		s.Utterances = make(map[SlotName]string)
	}
	if s.Slots == nil {
		s.Slots = make(map[SlotName][]string)
	}
	if !IsValidSentiment(s.Sentiment) {
		s.Sentiment = SentimentNeutral
	}
	if s.CurrentStep < 0 {
		s.CurrentStep = 0
	}
}
