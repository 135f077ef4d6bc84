package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/recommend"
	"github.com/BTreeMap/Recommendy/internal/store"
	"github.com/BTreeMap/Recommendy/internal/tone"
)

type stubSearcher struct {
	mu         sync.Mutex
	candidates []models.Candidate
	queries    []string
}

func (s *stubSearcher) Search(ctx context.Context, location, query string) []models.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.candidates
}

func newTestManager(candidates ...models.Candidate) (*ConversationManager, *stubSearcher) {
	st := store.NewInMemoryStore()
	search := &stubSearcher{candidates: candidates}
	scorer := recommend.NewScorer(search, st)
	cm := NewConversationManager(nil, NewStoreBasedSessionManager(st), tone.NewClassifier(nil), scorer)
	return cm, search
}

// converse feeds turns in order and returns every result.
func converse(t *testing.T, cm *ConversationManager, userID string, turns ...string) []TurnResult {
	t.Helper()
	var out []TurnResult
	for _, text := range turns {
		res, err := cm.ProcessTurn(context.Background(), userID, text)
		if err != nil {
			t.Fatalf("ProcessTurn(%q) failed: %v", text, err)
		}
		out = append(out, res)
	}
	return out
}

func TestStartConversation(t *testing.T) {
	cm, _ := newTestManager()
	res, err := cm.StartConversation(context.Background(), "u1", "Ana")
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	if res.State != models.SlotGreet {
		t.Errorf("expected greet state, got %s", res.State)
	}
	if !strings.HasPrefix(res.Question, "Hello Ana!") {
		t.Errorf("unexpected greeting %q", res.Question)
	}
}

func TestStartConversationResetsSession(t *testing.T) {
	cm, _ := newTestManager()
	ctx := context.Background()
	cm.StartConversation(ctx, "u1", "")
	converse(t, cm, "u1", "Hello", "nothing special")

	if _, err := cm.StartConversation(ctx, "u1", ""); err != nil {
		t.Fatal(err)
	}
	res := converse(t, cm, "u1", "Hello")[0]
	if res.Response != GreetingReply || res.NextState != models.SlotOccasion {
		t.Errorf("expected a fresh conversation after restart, got %+v", res)
	}
	if _, ok := res.CurrentConversation[models.SlotOccasion]; ok {
		t.Error("old utterances survived the restart")
	}
}

func TestUrgentUserSkipsNonEssentialSteps(t *testing.T) {
	cm, _ := newTestManager()
	cm.StartConversation(context.Background(), "u1", "")

	res := converse(t, cm, "u1", "I'm in a hurry, need lunch fast!!")[0]
	if !res.Urgent || res.Sentiment != models.SentimentUrgent {
		t.Fatalf("expected urgent session, got sentiment=%s urgent=%v", res.Sentiment, res.Urgent)
	}
	if res.NextState != models.SlotBookingHistory || res.CurrentStep != 3 {
		t.Fatalf("expected to land on booking history (3), got %s (%d)", res.NextState, res.CurrentStep)
	}
	if res.Response != GreetingReply {
		t.Errorf("greet turn response = %q", res.Response)
	}
	booking := RenderQuestion(cm.Flow().Step(3).Question, QuestionContext{})
	if res.NextQuestion != tone.UrgentRewrite(booking) {
		t.Errorf("urgent question not rewritten: %q", res.NextQuestion)
	}
	if got := res.UserInfo[models.SlotTimeDay]; len(got) != 1 || got[0] != "lunch" {
		t.Errorf("time slot = %v", got)
	}
	if _, ok := res.UserInfo[models.SlotLocation]; ok {
		t.Errorf("\"in a hurry\" extracted a location: %v", res.UserInfo[models.SlotLocation])
	}

	results := converse(t, cm, "u1", "no", "vegan", "thai", "2", "Soho")
	wantStates := []models.SlotName{models.SlotDietary, models.SlotCuisine, models.SlotGuests, models.SlotLocation}
	for i, want := range wantStates {
		if results[i].NextState != want {
			t.Errorf("turn %d: expected %s, got %s", i, want, results[i].NextState)
		}
	}
	last := results[len(results)-1]
	if !last.Complete || last.Response != NoMatchReply {
		t.Errorf("expected completion without a match, got %+v", last)
	}
	if last.CurrentStep != cm.Flow().Len()-1 {
		t.Errorf("expected final step %d, got %d", cm.Flow().Len()-1, last.CurrentStep)
	}
}

func TestPreStatedSlotsAreSkipped(t *testing.T) {
	cm, _ := newTestManager()
	cm.StartConversation(context.Background(), "u1", "")

	results := converse(t, cm, "u1",
		"Hello",
		"nothing special",
		"something relaxed",
		"first time, table for 4, vegan, in Soho",
		"Italian",
		"tomorrow at 8pm",
	)
	want := []models.SlotName{
		models.SlotOccasion, models.SlotAtmosphere, models.SlotBookingHistory,
		models.SlotCuisine, // dietary already known
		models.SlotTimeDay,
		models.SlotBudget, // guests and location already known
	}
	for i, st := range want {
		if results[i].NextState != st {
			t.Errorf("turn %d: expected %s, got %s", i, st, results[i].NextState)
		}
	}
	info := results[len(results)-1].UserInfo
	if info[models.SlotGuests][0] != "4" || info[models.SlotDietary][0] != "vegan" || info[models.SlotLocation][0] != "Soho" {
		t.Errorf("pre-stated slots = %v", info)
	}
}

func TestEssentialStepRepeatsUntilAnswered(t *testing.T) {
	cm, _ := newTestManager()
	cm.StartConversation(context.Background(), "u1", "")
	results := converse(t, cm, "u1", "Hello", "nothing special", "relaxed", "yes", "none")
	if got := results[len(results)-1]; got.NextState != models.SlotCuisine || got.CurrentStep != 5 {
		t.Fatalf("expected to reach cuisine, got %s (%d)", got.NextState, got.CurrentStep)
	}

	res := converse(t, cm, "u1", "I don't know")[0]
	if !res.Repeat || res.Response != RepeatReply {
		t.Errorf("expected a repeat, got %+v", res)
	}
	if res.CurrentStep != 5 || res.NextState != models.SlotCuisine {
		t.Errorf("step moved on a repeat: %s (%d)", res.NextState, res.CurrentStep)
	}
	if !strings.Contains(res.NextQuestion, cm.Flow().Step(5).Clarification) {
		t.Errorf("repeat question lacks clarification: %q", res.NextQuestion)
	}
	if _, ok := res.UserInfo[models.SlotCuisine]; ok {
		t.Error("cuisine slot should still be empty")
	}

	res = converse(t, cm, "u1", "Thai")[0]
	if res.Repeat || res.NextState != models.SlotTimeDay {
		t.Errorf("expected to advance to time, got %+v", res)
	}
}

func TestCompletedFlowRecommendsBestCandidate(t *testing.T) {
	cm, search := newTestManager(
		models.Candidate{Name: "Le Chic", Types: []string{"french", "restaurant"}, PriceLevel: 3, Rating: 4.8, ReviewCount: 900},
		models.Candidate{Name: "Trattoria Roma", Types: []string{"italian", "restaurant"}, PriceLevel: 1, Rating: 4.5, ReviewCount: 300, Address: "1 Greek St"},
	)
	ctx := context.Background()
	cm.StartConversation(ctx, "u1", "Ana")

	results := converse(t, cm, "u1",
		"Hello",
		"nothing special",
		"relaxed",
		"first time",
		"no restrictions",
		"Italian please",
		"tomorrow at 8pm",
		"4",
		"Soho",
		"cheap",
		"no thanks",
	)
	prev := 0
	for i, r := range results {
		if r.CurrentStep < prev {
			t.Errorf("turn %d: current step went back from %d to %d", i, prev, r.CurrentStep)
		}
		prev = r.CurrentStep
		if i < len(results)-1 && (r.Complete || r.Repeat) {
			t.Errorf("turn %d: unexpected complete=%v repeat=%v", i, r.Complete, r.Repeat)
		}
	}

	last := results[len(results)-1]
	if !last.Complete || last.Recommendation == nil {
		t.Fatalf("expected a recommendation, got %+v", last)
	}
	if last.Recommendation.RestaurantName != "Trattoria Roma" {
		t.Errorf("recommended %s", last.Recommendation.RestaurantName)
	}
	if !strings.Contains(last.Response, "Trattoria Roma") {
		t.Errorf("response does not name the restaurant: %q", last.Response)
	}
	if len(search.queries) != 1 || search.queries[0] != "Italian relaxed cheap in Soho" {
		t.Errorf("search queries = %v", search.queries)
	}

	hist, err := cm.GetRecommendations(ctx, "u1")
	if err != nil || len(hist) != 1 || hist[0].UserName != "Ana" {
		t.Errorf("GetRecommendations = %v, %v", hist, err)
	}
}

func TestTurnsAfterCompletionRecommendAgain(t *testing.T) {
	cm, search := newTestManager(
		models.Candidate{Name: "Trattoria Roma", Types: []string{"italian", "restaurant"}, PriceLevel: 1, Rating: 4.5, ReviewCount: 300},
	)
	ctx := context.Background()
	cm.StartConversation(ctx, "u1", "Ana")
	results := converse(t, cm, "u1",
		"Hello", "nothing special", "relaxed", "first time", "no restrictions",
		"Italian please", "tomorrow at 8pm", "4", "Soho", "cheap", "no thanks",
	)
	if !results[len(results)-1].Complete {
		t.Fatalf("flow did not complete: %+v", results[len(results)-1])
	}

	last := cm.Flow().Len() - 1
	for i, text := range []string{"anything else?", "thanks"} {
		res := converse(t, cm, "u1", text)[0]
		if !res.Complete || res.Repeat || res.Recommendation == nil {
			t.Errorf("extra turn %d: expected another recommendation, got %+v", i, res)
		}
		if res.CurrentStep != last {
			t.Errorf("extra turn %d: current step = %d, want %d", i, res.CurrentStep, last)
		}
		if got, want := len(search.queries), i+2; got != want {
			t.Errorf("extra turn %d: %d searches, want %d", i, got, want)
		}
		hist, err := cm.GetRecommendations(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if got, want := len(hist), i+2; got != want {
			t.Errorf("extra turn %d: %d stored recommendations, want %d", i, got, want)
		}
	}
}

func TestUserLockIsStable(t *testing.T) {
	cm, _ := newTestManager()
	if cm.userLock("u1") != cm.userLock("u1") {
		t.Error("same user mapped to different locks")
	}
	seen := make(map[*sync.Mutex]bool)
	for i := 0; i < 1000; i++ {
		seen[cm.userLock(fmt.Sprintf("user-%d", i))] = true
	}
	if len(seen) > lockShards {
		t.Errorf("%d distinct locks, want at most %d", len(seen), lockShards)
	}
}

func TestConcurrentUsersComplete(t *testing.T) {
	cm, _ := newTestManager(models.Candidate{Name: "Trattoria Roma", Types: []string{"italian"}, PriceLevel: 1, Rating: 4.5})
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := cm.StartConversation(ctx, user, ""); err != nil {
				errs <- err
				return
			}
			var res TurnResult
			var err error
			for _, text := range []string{"Hello", "nothing special", "relaxed", "first time", "no restrictions", "Italian", "tonight at 8pm", "2", "Soho", "cheap", "no"} {
				if res, err = cm.ProcessTurn(ctx, user, text); err != nil {
					errs <- err
					return
				}
			}
			if !res.Complete {
				errs <- fmt.Errorf("%s did not complete: step %d", user, res.CurrentStep)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSentimentIsSetOnce(t *testing.T) {
	cm, _ := newTestManager()
	cm.StartConversation(context.Background(), "u1", "")

	res := converse(t, cm, "u1", "I'm so happy today!")[0]
	if res.Sentiment != models.SentimentHappy {
		t.Fatalf("expected happy, got %s", res.Sentiment)
	}
	if res.NextQuestion != "Are you celebrating something special today?" {
		t.Errorf("occasion question not keyed on sentiment: %q", res.NextQuestion)
	}

	res = converse(t, cm, "u1", "honestly it has been a terrible awful week")[0]
	if res.Sentiment != models.SentimentHappy || res.Urgent {
		t.Errorf("sentiment changed after the greeting: %s urgent=%v", res.Sentiment, res.Urgent)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	cm, _ := newTestManager()
	ctx := context.Background()
	cm.StartConversation(ctx, "a", "")
	cm.StartConversation(ctx, "b", "")

	converse(t, cm, "a", "I need a table asap!!")
	resB := converse(t, cm, "b", "Hello")[0]
	if resB.Urgent || resB.NextState != models.SlotOccasion {
		t.Errorf("user b affected by user a: %+v", resB)
	}

	var wg sync.WaitGroup
	for _, id := range []string{"c", "d", "e", "f"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, text := range []string{"Hello", "nothing special", "relaxed"} {
				if _, err := cm.ProcessTurn(ctx, id, text); err != nil {
					t.Errorf("ProcessTurn(%s) failed: %v", id, err)
				}
			}
		}(id)
	}
	wg.Wait()
	for _, id := range []string{"c", "d", "e", "f"} {
		res := converse(t, cm, id, "yes")[0]
		if res.NextState != models.SlotDietary {
			t.Errorf("user %s: expected dietary, got %s", id, res.NextState)
		}
	}
}

func TestIsRestart(t *testing.T) {
	for text, want := range map[string]bool{
		"restart":          true,
		" Start over! ":    true,
		"START AGAIN":      true,
		"please restart":   false,
		"restart the oven": false,
		"":                 false,
	} {
		if got := IsRestart(text); got != want {
			t.Errorf("IsRestart(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestTurnResultMessages(t *testing.T) {
	res := TurnResult{Response: "Got it.", NextQuestion: "How many people?"}
	if got := res.Messages(); len(got) != 2 || got[1] != "How many people?" {
		t.Errorf("Messages() = %v", got)
	}

	res = TurnResult{
		Response:       "I recommend Roma.",
		Complete:       true,
		Recommendation: &models.RecommendationRecord{Website: "https://roma.example", MapsURL: "https://maps.example/1"},
	}
	got := res.Messages()
	if len(got) != 2 || !strings.Contains(got[1], "Website: https://roma.example") || !strings.Contains(got[1], "Map: https://maps.example/1") {
		t.Errorf("Messages() = %v", got)
	}
}
