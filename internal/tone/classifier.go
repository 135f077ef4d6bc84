package tone

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// Classifier combines a PolarityScorer with urgency detection.
type Classifier struct {
	scorer PolarityScorer
}

// NewClassifier creates a Classifier. A nil scorer selects the LexiconScorer.
func NewClassifier(scorer PolarityScorer) *Classifier {
	if scorer == nil {
		scorer = NewLexiconScorer()
	}
	return &Classifier{scorer: scorer}
}

// Score runs the underlying scorer.
func (c *Classifier) Score(ctx context.Context, text string) (Polarity, error) {
	return c.scorer.Score(ctx, text)
}

// Analyze returns the session sentiment label and urgency flag for text.
// Urgency is checked first and forces the urgent label. A scorer error
// degrades to neutral.
func (c *Classifier) Analyze(ctx context.Context, text string) (models.Sentiment, bool) {
	if IsUrgent(text) {
		slog.Debug("Classifier.Analyze: urgency detected")
		return models.SentimentUrgent, true
	}
	p, err := c.scorer.Score(ctx, text)
	if err != nil {
		slog.Warn("Classifier.Analyze: polarity scoring failed, using neutral", "error", err)
		return models.SentimentNeutral, false
	}
	label := Classify(p)
	slog.Debug("Classifier.Analyze: classified", "polarity", p.Polarity, "subjectivity", p.Subjectivity, "sentiment", label)
	return label, false
}
