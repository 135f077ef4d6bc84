package tone

import (
	"context"
	"strings"
	"sync"

	"github.com/jonreiter/govader"
)

var (
	analyzerOnce sync.Once
	analyzer     *govader.SentimentIntensityAnalyzer
)

// sharedAnalyzer loads the VADER lexicon once per process.
func sharedAnalyzer() *govader.SentimentIntensityAnalyzer {
	analyzerOnce.Do(func() {
		analyzer = govader.NewSentimentIntensityAnalyzer()
	})
	return analyzer
}

// LexiconScorer scores text with VADER, a rule-based lexicon that handles
// negation ("not good"), boosters ("really sad"), capitals and punctuation.
type LexiconScorer struct {
	sia *govader.SentimentIntensityAnalyzer
}

// NewLexiconScorer returns the default, offline scorer.
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{sia: sharedAnalyzer()}
}

// Score implements PolarityScorer. It never fails.
//
// Polarity is VADER's compound score. Subjectivity is the share of the text
// that carries sentiment either way.
func (s *LexiconScorer) Score(_ context.Context, text string) (Polarity, error) {
	if strings.TrimSpace(text) == "" {
		return Polarity{}, nil
	}
	scores := s.sia.PolarityScores(text)
	return Polarity{
		Polarity:     clamp(scores.Compound, -1, 1),
		Subjectivity: clamp(scores.Positive+scores.Negative, 0, 1),
	}, nil
}
