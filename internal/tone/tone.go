// Package tone infers a diner's mood and urgency from free text and adapts
// question phrasing, follow-ups and acknowledgements to it.
//
// Polarity scoring is pluggable through PolarityScorer. The package ships a
// deterministic, VADER-based LexiconScorer; the genai package provides an LLM-backed one.
package tone

import (
	"context"
	"math"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// ---- Thresholds ----

const (
	// HappyThreshold is the polarity strictly above which a text is happy.
	HappyThreshold = 0.3
	// SadThreshold is the polarity strictly below which a text is sad.
	SadThreshold = -0.2
)

// ---- Data types ----

// Polarity is the result of scoring one utterance.
type Polarity struct {
	Polarity     float64 `json:"polarity"`     // in [-1, 1]
	Subjectivity float64 `json:"subjectivity"` // in [0, 1]; reserved, not used by Classify
}

// PolarityScorer scores the polarity and subjectivity of a text.
type PolarityScorer interface {
	Score(ctx context.Context, text string) (Polarity, error)
}

// ---- Public API ----

// Classify maps a polarity score onto happy, neutral or sad.
func Classify(p Polarity) models.Sentiment {
	switch {
	case p.Polarity > HappyThreshold:
		return models.SentimentHappy
	case p.Polarity < SadThreshold:
		return models.SentimentSad
	default:
		return models.SentimentNeutral
	}
}

// Interpret labels a polarity by its sign: positive, negative or neutral.
func Interpret(p Polarity) string {
	switch {
	case p.Polarity > 0:
		return "positive"
	case p.Polarity < 0:
		return "negative"
	default:
		return "neutral"
	}
}

// ---- helpers ----

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	// Round to 4 decimal places to avoid floating point drift.
	return math.Round(v*10000) / 10000
}
