// Package recommend turns a finished session's slots into a ranked restaurant
// recommendation.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// Searcher finds restaurant candidates. Failures must be reported as an
// empty result.
type Searcher interface {
	Search(ctx context.Context, location, query string) []models.Candidate
}

// RecordStore persists finished recommendations.
type RecordStore interface {
	AppendRecommendation(ctx context.Context, rec models.RecommendationRecord) error
	ListRecommendations(ctx context.Context, userID string) ([]models.RecommendationRecord, error)
}

// Preferences are the first extracted value of each slot the scorer reads.
type Preferences struct {
	Cuisine    string
	Dietary    string
	Atmosphere string
	Budget     string
	Location   string
	Guests     int
	Time       *time.Time
}

var noDietary = regexp.MustCompile(`(?i)^(?:none|nothing special|eat anything|no (?:dietary )?(?:restrictions?|preferences?|requirements?))$`)

func first(slots map[models.SlotName][]string, name models.SlotName) string {
	if v := slots[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// PreferencesFromSlots reads the scorer's inputs from a slot map.
func PreferencesFromSlots(slots map[models.SlotName][]string, now time.Time) Preferences {
	dietary := first(slots, models.SlotDietary)
	if noDietary.MatchString(dietary) {
		dietary = ""
	}
	return Preferences{
		Cuisine:    first(slots, models.SlotCuisine),
		Dietary:    dietary,
		Atmosphere: first(slots, models.SlotAtmosphere),
		Budget:     first(slots, models.SlotBudget),
		Location:   first(slots, models.SlotLocation),
		Guests:     ParseGuests(first(slots, models.SlotGuests)),
		Time:       ParseTime(first(slots, models.SlotTimeDay), now),
	}
}

// BuildQuery concatenates cuisine, dietary, atmosphere and budget, then an
// "in <location>" clause when the location is known.
func BuildQuery(p Preferences) (query, location string) {
	var parts []string
	for _, v := range []string{p.Cuisine, p.Dietary, p.Atmosphere, p.Budget} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if p.Location != "" {
		parts = append(parts, "in "+p.Location)
	}
	return strings.Join(parts, " "), p.Location
}

func anyContains(list []string, term string) bool {
	term = strings.ToLower(term)
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

// ScoreCandidate rates how well c fits p. Higher is better.
func ScoreCandidate(c models.Candidate, p Preferences) float64 {
	score := 0.0
	if p.Cuisine != "" && anyContains(c.Types, p.Cuisine) {
		score += 2
	}
	if p.Dietary != "" {
		if anyContains(c.Types, p.Dietary) {
			score += 3
		} else if strings.Contains(strings.ToLower(c.Name), strings.ToLower(p.Dietary)) {
			score += 2
		}
	}
	if p.Atmosphere != "" && anyContains(c.Reviews, p.Atmosphere) {
		score += 1
	}
	if p.Budget != "" && c.PriceLevel == BudgetTier(p.Budget) {
		score += 2
	}
	score += c.Rating / 2
	score += min(float64(c.ReviewCount)/1000, 1)
	if p.Time != nil && c.OpenNow {
		score += 1
	}
	return score
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the time source used for parsing booking times.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// Scorer ranks search results and records the winner.
type Scorer struct {
	search  Searcher
	records RecordStore
	now     func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer(search Searcher, records RecordStore, opts ...Option) *Scorer {
	s := &Scorer{search: search, records: records, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type scored struct {
	c     models.Candidate
	score float64
}

// Rank scores candidates and sorts them best first, keeping provider order on ties.
func Rank(candidates []models.Candidate, p Preferences) []models.Candidate {
	list := make([]scored, len(candidates))
	for i, c := range candidates {
		list[i] = scored{c: c, score: ScoreCandidate(c, p)}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	out := make([]models.Candidate, len(list))
	for i, s := range list {
		out[i] = s.c
	}
	return out
}

// Recommend searches, ranks and appends the best candidate as a record. It
// returns nil without error when no candidate is found; errors come only from
// the record store.
func (s *Scorer) Recommend(ctx context.Context, userID, displayName string, slots map[models.SlotName][]string) (*models.RecommendationRecord, error) {
	now := s.now()
	prefs := PreferencesFromSlots(slots, now)
	query, location := BuildQuery(prefs)
	slog.Debug("Scorer.Recommend: searching", "userID", userID, "query", query, "location", location)

	var candidates []models.Candidate
	if s.search != nil {
		candidates = s.search.Search(ctx, location, query)
	}
	if len(candidates) == 0 {
		slog.Info("Scorer.Recommend: no candidates", "userID", userID, "query", query)
		return nil, nil
	}

	best := Rank(candidates, prefs)[0]
	rec := models.RecommendationRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		UserName:       displayName,
		RestaurantName: best.Name,
		Cuisine:        prefs.Cuisine,
		Location:       prefs.Location,
		Guests:         prefs.Guests,
		BookingTime:    prefs.Time,
		Dietary:        prefs.Dietary,
		Atmosphere:     prefs.Atmosphere,
		Budget:         prefs.Budget,
		Rating:         best.Rating,
		ReviewCount:    best.ReviewCount,
		PriceLevel:     best.PriceLevel,
		Address:        best.Address,
		PlaceID:        best.PlaceID,
		PhotoURL:       best.PhotoURL,
		Website:        best.Website,
		MapsURL:        best.MapsURL,
		Score:          ScoreCandidate(best, prefs),
		CreatedAt:      now,
	}
	if err := s.records.AppendRecommendation(ctx, rec); err != nil {
		slog.Error("Scorer.Recommend: append failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("append recommendation: %w", err)
	}
	slog.Info("Scorer.Recommend: recommendation stored", "userID", userID, "restaurant", rec.RestaurantName, "score", rec.Score)
	return &rec, nil
}

// History returns a user's stored recommendations, most recent first.
func (s *Scorer) History(ctx context.Context, userID string) ([]models.RecommendationRecord, error) {
	recs, err := s.records.ListRecommendations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return recs, nil
}
