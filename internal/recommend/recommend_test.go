package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/Recommendy/internal/models"
)

type fakeSearcher struct {
	candidates []models.Candidate
	location   string
	query      string
}

func (f *fakeSearcher) Search(ctx context.Context, location, query string) []models.Candidate {
	f.location, f.query = location, query
	return f.candidates
}

type memRecords struct {
	recs []models.RecommendationRecord
	err  error
}

func (m *memRecords) AppendRecommendation(ctx context.Context, rec models.RecommendationRecord) error {
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecords) ListRecommendations(ctx context.Context, userID string) ([]models.RecommendationRecord, error) {
	var out []models.RecommendationRecord
	for i := len(m.recs) - 1; i >= 0; i-- {
		if m.recs[i].UserID == userID {
			out = append(out, m.recs[i])
		}
	}
	return out, m.err
}

var fixedNow = time.Date(2026, 3, 14, 15, 4, 0, 0, time.UTC)

func TestParseGuests(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"party of 4", 4},
		{"just me, solo", 1},
		{"", 1},
		{"alone", 1},
		{"a couple", 2},
		{"table for 6", 6},
		{"12 people", 12},
		{"some friends", 1},
	}
	for _, tt := range tests {
		if got := ParseGuests(tt.in); got != tt.want {
			t.Errorf("ParseGuests(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in         string
		wantNil    bool
		hour, min  int
		dayOffset  int
		keepsClock bool
	}{
		{in: "tonight", hour: 19},
		{in: "8pm", hour: 20},
		{in: "8:30 pm", hour: 20, min: 30},
		{in: "12pm", hour: 12},
		{in: "12am", hour: 0},
		{in: "14:30", hour: 14, min: 30},
		{in: "morning", hour: 10},
		{in: "noon", hour: 12},
		{in: "evening", hour: 18},
		{in: "tomorrow", dayOffset: 1, keepsClock: true},
		{in: "now", keepsClock: true},
		{in: "gibberish", wantNil: true},
		{in: "", wantNil: true},
		{in: "25:00", wantNil: true},
	}
	for _, tt := range tests {
		got := ParseTime(tt.in, fixedNow)
		if tt.wantNil {
			if got != nil {
				t.Errorf("ParseTime(%q) = %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil {
			t.Errorf("ParseTime(%q) = nil", tt.in)
			continue
		}
		if got.Day() != fixedNow.AddDate(0, 0, tt.dayOffset).Day() {
			t.Errorf("ParseTime(%q) day = %d", tt.in, got.Day())
		}
		if tt.keepsClock {
			if got.Hour() != fixedNow.Hour() || got.Minute() != fixedNow.Minute() {
				t.Errorf("ParseTime(%q) = %v, want clock of now", tt.in, *got)
			}
			continue
		}
		if got.Hour() != tt.hour || got.Minute() != tt.min {
			t.Errorf("ParseTime(%q) = %02d:%02d, want %02d:%02d", tt.in, got.Hour(), got.Minute(), tt.hour, tt.min)
		}
	}
}

func TestParseTime_DayWordsBeforeClock(t *testing.T) {
	got := ParseTime("tonight at 9pm", fixedNow)
	if got == nil || got.Hour() != 19 {
		t.Fatalf("day words should take precedence, got %v", got)
	}
}

func TestBudgetTier(t *testing.T) {
	if BudgetTier("cheap") != 1 || BudgetTier("Moderate") != 2 || BudgetTier("expensive") != 3 {
		t.Error("unexpected tier mapping")
	}
	if BudgetTier("") != 2 || BudgetTier("whatever") != 2 {
		t.Error("default tier should be moderate")
	}
}

func TestBuildQuery(t *testing.T) {
	slots := map[models.SlotName][]string{
		models.SlotCuisine:    {"italian", "thai"},
		models.SlotDietary:    {"vegan"},
		models.SlotAtmosphere: {"quiet"},
		models.SlotBudget:     {"cheap"},
		models.SlotLocation:   {"Soho"},
	}
	q, loc := BuildQuery(PreferencesFromSlots(slots, fixedNow))
	if q != "italian vegan quiet cheap in Soho" {
		t.Errorf("query = %q", q)
	}
	if loc != "Soho" {
		t.Errorf("location = %q", loc)
	}

	q, loc = BuildQuery(PreferencesFromSlots(map[models.SlotName][]string{models.SlotDietary: {"no restrictions"}}, fixedNow))
	if q != "" || loc != "" {
		t.Errorf("expected empty query, got %q %q", q, loc)
	}
}

func TestScoreCandidate(t *testing.T) {
	p := Preferences{Cuisine: "italian", Dietary: "vegan", Atmosphere: "quiet", Budget: "cheap", Time: &fixedNow}
	c := models.Candidate{
		Name:        "Luigi's",
		Types:       []string{"italian_restaurant", "vegan", "food"},
		Reviews:     []string{"A quiet little place"},
		Rating:      4.0,
		ReviewCount: 2500,
		PriceLevel:  1,
		OpenNow:     true,
	}
	// 2 cuisine + 3 dietary + 1 atmosphere + 2 budget + 2 rating + 1 reviews + 1 open
	if got := ScoreCandidate(c, p); got != 12 {
		t.Errorf("ScoreCandidate() = %v, want 12", got)
	}

	nameOnly := models.Candidate{Name: "Vegan Garden", ReviewCount: 500}
	// 2 dietary-in-name + 0.5 reviews
	if got := ScoreCandidate(nameOnly, Preferences{Dietary: "vegan"}); got != 2.5 {
		t.Errorf("ScoreCandidate(name match) = %v, want 2.5", got)
	}

	closed := models.Candidate{OpenNow: false}
	if got := ScoreCandidate(closed, Preferences{Time: &fixedNow}); got != 0 {
		t.Errorf("closed candidate = %v, want 0", got)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	cands := []models.Candidate{{Name: "A", Rating: 4}, {Name: "B", Rating: 4}, {Name: "C", Rating: 5}}
	got := Rank(cands, Preferences{})
	if got[0].Name != "C" || got[1].Name != "A" || got[2].Name != "B" {
		t.Errorf("Rank() order = %s %s %s", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestRecommend_PicksItalianCheap(t *testing.T) {
	search := &fakeSearcher{candidates: []models.Candidate{
		{Name: "Chez Paris", Types: []string{"french", "restaurant"}, PriceLevel: 3, Rating: 4.5, ReviewCount: 300, PlaceID: "p1"},
		{Name: "Trattoria Roma", Types: []string{"italian", "restaurant"}, PriceLevel: 1, Rating: 4.5, ReviewCount: 300, PlaceID: "p2"},
	}}
	records := &memRecords{}
	scorer := NewScorer(search, records, WithClock(func() time.Time { return fixedNow }))

	slots := map[models.SlotName][]string{
		models.SlotCuisine:  {"italian"},
		models.SlotLocation: {"Soho"},
		models.SlotBudget:   {"cheap"},
		models.SlotGuests:   {"4"},
		models.SlotTimeDay:  {"8pm"},
	}
	rec, err := scorer.Recommend(context.Background(), "u1", "Ana", slots)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if rec == nil || rec.RestaurantName != "Trattoria Roma" {
		t.Fatalf("Recommend() = %+v, want Trattoria Roma", rec)
	}
	if search.location != "Soho" || search.query != "italian cheap in Soho" {
		t.Errorf("search called with %q %q", search.location, search.query)
	}
	if rec.Guests != 4 || rec.BookingTime == nil || rec.BookingTime.Hour() != 20 {
		t.Errorf("record guests/time = %d %v", rec.Guests, rec.BookingTime)
	}
	if rec.ID == "" || rec.UserID != "u1" || rec.UserName != "Ana" || !rec.CreatedAt.Equal(fixedNow) {
		t.Errorf("record metadata = %+v", rec)
	}
	if len(records.recs) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(records.recs))
	}

	hist, err := scorer.History(context.Background(), "u1")
	if err != nil || len(hist) != 1 {
		t.Errorf("History() = %v, %v", hist, err)
	}
}

func TestRecommend_NoCandidates(t *testing.T) {
	records := &memRecords{}
	scorer := NewScorer(&fakeSearcher{}, records)
	rec, err := scorer.Recommend(context.Background(), "u1", "", map[models.SlotName][]string{})
	if err != nil || rec != nil {
		t.Fatalf("Recommend() = %v, %v; want nil, nil", rec, err)
	}
	if len(records.recs) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestRecommend_StoreError(t *testing.T) {
	search := &fakeSearcher{candidates: []models.Candidate{{Name: "X"}}}
	scorer := NewScorer(search, &memRecords{err: errors.New("disk full")})
	if _, err := scorer.Recommend(context.Background(), "u1", "", nil); err == nil {
		t.Fatal("expected store error")
	}
}
