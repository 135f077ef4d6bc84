package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/Recommendy/internal/tone"
)

const polaritySystemPrompt = `You rate the emotional tone of a restaurant customer's message.
Reply with a single JSON object and nothing else:
{"polarity": <number from -1 (very negative) to 1 (very positive)>, "subjectivity": <number from 0 (objective) to 1 (subjective)>}`

// Scorer is a tone.PolarityScorer backed by a chat model. When the model call
// fails or its reply cannot be parsed, the fallback scorer is used instead.
type Scorer struct {
	client   *Client
	fallback tone.PolarityScorer
}

// NewScorer creates a Scorer. A nil fallback disables the fallback path.
func NewScorer(client *Client, fallback tone.PolarityScorer) *Scorer {
	return &Scorer{client: client, fallback: fallback}
}

// Score implements tone.PolarityScorer.
func (s *Scorer) Score(ctx context.Context, text string) (tone.Polarity, error) {
	reply, err := s.client.GeneratePromptWithContext(ctx, polaritySystemPrompt, text)
	if err == nil {
		var p tone.Polarity
		p, err = parsePolarity(reply)
		if err == nil {
			return p, nil
		}
	}
	if s.fallback == nil {
		return tone.Polarity{}, err
	}
	slog.Warn("Scorer.Score: model scoring failed, using fallback", "error", err)
	return s.fallback.Score(ctx, text)
}

// parsePolarity reads the model reply, tolerating surrounding code fences.
func parsePolarity(reply string) (tone.Polarity, error) {
	body := strings.TrimSpace(reply)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if !gjson.Valid(body) {
		return tone.Polarity{}, fmt.Errorf("invalid polarity reply %q", reply)
	}
	pol := gjson.Get(body, "polarity")
	if !pol.Exists() {
		return tone.Polarity{}, fmt.Errorf("polarity missing in reply %q", reply)
	}
	return tone.Polarity{
		Polarity:     clampRange(pol.Float(), -1, 1),
		Subjectivity: clampRange(gjson.Get(body, "subjectivity").Float(), 0, 1),
	}, nil
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
