package tone

import (
	"regexp"
	"strings"
)

var (
	urgencyKeywords = regexp.MustCompile(`(?i)\b(?:quick|quickly|hurry|fast|asap|urgent|soon|running late|immediately|right now|emergency|rush|short time|busy|no time)\b`)
	deadlinePhrases = regexp.MustCompile(`(?i)\b(?:next hour|within (?:an |the )?hour|30 minutes|15 minutes|half (?:an )?hour|quarter (?:of an )?hour)\b`)
	doubledPunct    = regexp.MustCompile(`!!|\?\?|\.\.`)
)

// urgentReplacements are applied in order by UrgentRewrite.
var urgentReplacements = []struct{ from, to string }{
	{"Would you like", "Do you want"},
	{"Please provide", "Enter"},
	{"I would love to know", "Tell me"},
	{"Could you tell me", "What is"},
}

// IsUrgent reports whether text signals time pressure. Any one of an urgency
// keyword, a short-deadline phrase, or an exclamation mark together with a
// doubled punctuation run is enough.
func IsUrgent(text string) bool {
	score := 0
	if urgencyKeywords.MatchString(text) {
		score++
	}
	if deadlinePhrases.MatchString(text) {
		score++
	}
	if strings.Contains(text, "!") && doubledPunct.MatchString(text) {
		score++
	}
	return score >= 1
}

// UrgentRewrite shortens pleasantries in a question.
func UrgentRewrite(question string) string {
	for _, r := range urgentReplacements {
		question = strings.ReplaceAll(question, r.from, r.to)
	}
	return question
}
