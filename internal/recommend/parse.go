package recommend

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dayWord maps a word to a point in time relative to now.
type dayWord struct {
	re *regexp.Regexp
	at func(now time.Time) time.Time
}

func atClock(now time.Time, hour, minute int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
}

func word(w string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + w + `\b`)
}

// Checked in order; the first word present wins.
var dayWords = []dayWord{
	{word("now"), func(now time.Time) time.Time { return now }},
	{word("tonight"), func(now time.Time) time.Time { return atClock(now, 19, 0) }},
	{word("today"), func(now time.Time) time.Time { return now }},
	{word("tomorrow"), func(now time.Time) time.Time { return now.AddDate(0, 0, 1) }},
	{word("morning"), func(now time.Time) time.Time { return atClock(now, 10, 0) }},
	{word("noon"), func(now time.Time) time.Time { return atClock(now, 12, 0) }},
	{word("evening"), func(now time.Time) time.Time { return atClock(now, 18, 0) }},
	{word("lunch"), func(now time.Time) time.Time { return atClock(now, 12, 0) }},
	{word("dinner"), func(now time.Time) time.Time { return atClock(now, 19, 0) }},
}

var (
	clockForm = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*([ap]m)?`)
	firstInt  = regexp.MustCompile(`\d+`)
)

// ParseTime turns a time expression into a timestamp relative to now. Day
// words take precedence over clock forms such as "8pm" or "14:30". It returns
// nil when nothing is recognised.
func ParseTime(text string, now time.Time) *time.Time {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return nil
	}
	for _, w := range dayWords {
		if w.re.MatchString(t) {
			v := w.at(now)
			return &v
		}
	}
	m := clockForm.FindStringSubmatch(t)
	if m == nil {
		return nil
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch {
	case m[3] == "pm" && hour < 12:
		hour += 12
	case m[3] == "am" && hour == 12:
		hour = 0
	}
	if hour > 23 || minute > 59 {
		return nil
	}
	v := atClock(now, hour, minute)
	return &v
}

// ParseGuests returns the party size in text, defaulting to 1.
func ParseGuests(text string) int {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return 1
	case strings.Contains(t, "alone"), strings.Contains(t, "solo"):
		return 1
	case strings.Contains(t, "couple"):
		return 2
	}
	if m := firstInt.FindString(t); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// Budget tiers on the provider's price scale.
const (
	TierCheap     = 1
	TierModerate  = 2
	TierExpensive = 3
)

// BudgetTier maps a budget word onto a price tier, defaulting to moderate.
func BudgetTier(text string) int {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cheap", "inexpensive", "affordable":
		return TierCheap
	case "expensive", "upscale", "fancy", "pricey":
		return TierExpensive
	default:
		return TierModerate
	}
}
