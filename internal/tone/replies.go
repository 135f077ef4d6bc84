package tone

import (
	"fmt"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// FollowUp returns at most one extra line to append to the next question, or "".
func FollowUp(sentiment models.Sentiment, utterances map[models.SlotName]string) string {
	switch sentiment {
	case models.SentimentUrgent:
		if _, ok := utterances[models.SlotTimeDay]; !ok {
			return "What time do you need the table?"
		}
		return "Anything else I should know for the booking?"
	case models.SentimentSad:
		return "Would you like me to focus on restaurants known for their comfort food or peaceful atmosphere?"
	case models.SentimentHappy:
		if _, ok := utterances[models.SlotOccasion]; ok {
			return "Should I look for restaurants that are great for celebrations?"
		}
	}
	return ""
}

// EmpatheticReply acknowledges an answer in a way that fits the session's mood.
func EmpatheticReply(sentiment models.Sentiment, text string) string {
	switch sentiment {
	case models.SentimentUrgent:
		return "I understand you're in a hurry. I'll help you find something quickly."
	case models.SentimentHappy:
		return fmt.Sprintf("That's wonderful! %s", text)
	case models.SentimentSad:
		return fmt.Sprintf("I understand. Let me help you find something that might cheer you up. You said: %s", text)
	default:
		return fmt.Sprintf("I see. You said: %s", text)
	}
}
