// Package models defines flow type definitions to avoid circular imports.
package models

// SlotName identifies both a conversational step and the slot it fills.
type SlotName string

// Sentiment is the session-wide mood label used to pick question phrasings.
type Sentiment string

// Slot and step constants. Step ordering lives in the flow package.
const (
	SlotGreet          SlotName = "greet"
	SlotOccasion       SlotName = "ask_occasion"
	SlotAtmosphere     SlotName = "ask_atmosphere"
	SlotBookingHistory SlotName = "ask_booking_history"
	SlotDietary        SlotName = "ask_dietary"
	SlotCuisine        SlotName = "ask_cuisine"
	SlotTimeDay        SlotName = "ask_time_day"
	SlotGuests         SlotName = "ask_guests"
	SlotLocation       SlotName = "ask_location"
	SlotBudget         SlotName = "ask_budget"
	SlotSuggestSpecial SlotName = "suggest_special"
)

// Sentiment constants.
const (
	SentimentHappy   Sentiment = "happy"
	SentimentNeutral Sentiment = "neutral"
	SentimentSad     Sentiment = "sad"
	SentimentUrgent  Sentiment = "urgent"
)

// IsValidSentiment checks if the given sentiment label is supported.
func IsValidSentiment(s Sentiment) bool {
	switch s {
	case SentimentHappy, SentimentNeutral, SentimentSad, SentimentUrgent:
		return true
	default:
		return false
	}
}
