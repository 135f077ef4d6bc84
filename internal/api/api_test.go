package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/Recommendy/internal/flow"
	"github.com/BTreeMap/Recommendy/internal/messaging"
	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/recommend"
	"github.com/BTreeMap/Recommendy/internal/store"
	"github.com/BTreeMap/Recommendy/internal/tone"
	"github.com/BTreeMap/Recommendy/internal/twiliowhatsapp"
)

type stubSearcher struct {
	candidates []models.Candidate
}

func (s *stubSearcher) Search(ctx context.Context, location, query string) []models.Candidate {
	return s.candidates
}

var testCandidates = []models.Candidate{
	{Name: "Le Chic", Types: []string{"french", "restaurant"}, PriceLevel: 3, Rating: 4.8, ReviewCount: 900},
	{Name: "Trattoria Roma", Types: []string{"italian", "restaurant"}, PriceLevel: 1, Rating: 4.5, ReviewCount: 300,
		Website: "https://roma.example", MapsURL: "https://maps.example/roma"},
}

// fullConversation answers every step of the default flow.
var fullConversation = []string{
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
}

func newTestServer(t *testing.T, twilioSvc *messaging.TwilioService) *Server {
	t.Helper()
	st := store.NewInMemoryStore()
	cm := flow.NewConversationManager(nil,
		flow.NewStoreBasedSessionManager(st),
		tone.NewClassifier(nil),
		recommend.NewScorer(&stubSearcher{candidates: testCandidates}, st))
	return NewServer(cm, twilioSvc)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, envelope) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestStartConversationHandler(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	code, env := do(t, h, http.MethodPost, "/start_conversation", `{"user_id":"u1","name":"Ana"}`)
	if code != http.StatusOK || env.Status != "ok" {
		t.Fatalf("status %d, envelope %+v", code, env)
	}
	var res flow.StartResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.State != models.SlotGreet || !strings.HasPrefix(res.Question, "Hello Ana!") {
		t.Errorf("unexpected start result %+v", res)
	}
}

func TestHandlersRejectBadRequests(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	tests := []struct {
		name, method, target, body string
		want                       int
	}{
		{"start wrong method", http.MethodGet, "/start_conversation", "", http.StatusMethodNotAllowed},
		{"start invalid json", http.MethodPost, "/start_conversation", `{"user_id":`, http.StatusBadRequest},
		{"start missing user", http.MethodPost, "/start_conversation", `{"name":"Ana"}`, http.StatusBadRequest},
		{"input missing text", http.MethodPost, "/process_input", `{"user_id":"u1"}`, http.StatusBadRequest},
		{"input blank text", http.MethodPost, "/process_input", `{"user_id":"u1","text":"   "}`, http.StatusBadRequest},
		{"input too long", http.MethodPost, "/process_input", `{"user_id":"u1","text":"` + strings.Repeat("a", models.MaxUtteranceLength+1) + `"}`, http.StatusBadRequest},
		{"recommendations missing user", http.MethodGet, "/recommendations", "", http.StatusBadRequest},
		{"recommendations wrong method", http.MethodPost, "/recommendations?user_id=u1", "", http.StatusMethodNotAllowed},
		{"sentiment empty", http.MethodPost, "/sentiment_analysis", `{"text":""}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, h, tt.method, tt.target, tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
			if env.Status != "error" || env.Message == "" {
				t.Errorf("expected error envelope, got %+v", env)
			}
		})
	}
}

func TestConversationOverHTTP(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	do(t, h, http.MethodPost, "/start_conversation", `{"user_id":"u1","name":"Ana"}`)

	var last flow.TurnResult
	for _, text := range fullConversation {
		body, _ := json.Marshal(models.ProcessInputRequest{UserID: "u1", Text: text})
		code, env := do(t, h, http.MethodPost, "/process_input", string(body))
		if code != http.StatusOK {
			t.Fatalf("turn %q: status %d (%s)", text, code, env.Message)
		}
		last = flow.TurnResult{}
		if err := json.Unmarshal(env.Result, &last); err != nil {
			t.Fatal(err)
		}
	}
	if !last.Complete || last.Recommendation == nil || last.Recommendation.RestaurantName != "Trattoria Roma" {
		t.Fatalf("unexpected final turn %+v", last)
	}
	if last.UserInfo[models.SlotLocation][0] != "Soho" {
		t.Errorf("user_info = %v", last.UserInfo)
	}

	code, env := do(t, h, http.MethodGet, "/recommendations?user_id=u1", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	var recs []models.RecommendationRecord
	if err := json.Unmarshal(env.Result, &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].UserName != "Ana" || recs[0].Website != "https://roma.example" {
		t.Errorf("recommendations = %+v", recs)
	}

	_, env = do(t, h, http.MethodGet, "/recommendations?user_id=nobody", "")
	if string(env.Result) != "[]" {
		t.Errorf("expected empty list for unknown user, got %s", env.Result)
	}
}

func TestSentimentAnalysisHandler(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	tests := []struct {
		text string
		want string
	}{
		{"I love this wonderful place", "positive"},
		{"this is terrible and awful", "negative"},
		{"the table is by the window", "neutral"},
	}
	for _, tt := range tests {
		body, _ := json.Marshal(models.SentimentAnalysisRequest{Text: tt.text})
		code, env := do(t, h, http.MethodPost, "/sentiment_analysis", string(body))
		if code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		var res models.SentimentAnalysisResult
		if err := json.Unmarshal(env.Result, &res); err != nil {
			t.Fatal(err)
		}
		if res.Interpretation != tt.want {
			t.Errorf("%q: interpretation = %s (polarity %.2f), want %s", tt.text, res.Interpretation, res.Polarity, tt.want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" || body["twilio"] != false {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestTwilioWebhookRoute(t *testing.T) {
	// Without the Twilio channel the route does not exist.
	rec := httptest.NewRecorder()
	newTestServer(t, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, TwilioWebhookPath, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	defer svc.Stop()
	h := newTestServer(t, svc).Handler()
	form := url.Values{"From": {"whatsapp:+447700900123"}, "Body": {"hi"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, TwilioWebhookPath, bytes.NewBufferString(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := <-svc.Messages(); msg.ID != "SM1" || msg.From != "447700900123" {
		t.Errorf("unexpected inbound message %+v", msg)
	}
}

func TestWriteJSONResponseFallback(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONResponse(rec, http.StatusOK, models.Success(make(chan int)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), encodeFailureBody) {
		t.Errorf("body = %s", rec.Body.String())
	}
	var body struct {
		Status  string            `json:"status"`
		Message string            `json:"message"`
		Result  map[string]string `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("fallback body is not JSON: %v", err)
	}
	if body.Status != string(models.APIStatusError) || body.Result["response"] != messaging.ErrorReply {
		t.Errorf("fallback body = %+v", body)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, "user_id is required")
	if rec.Code != http.StatusBadRequest || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("status = %d, content type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	want := `{"status":"error","message":"user_id is required"}`
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestOpenStore(t *testing.T) {
	st, err := openStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*store.InMemoryStore); !ok {
		t.Errorf("expected in-memory store, got %T", st)
	}

	path := filepath.Join(t.TempDir(), "recommendy.db")
	st, err = openStore([]store.Option{store.WithSQLiteDSN(path)})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, ok := st.(*store.SQLiteStore); !ok {
		t.Errorf("expected SQLite store, got %T", st)
	}
}

func TestBuildersFallBack(t *testing.T) {
	if _, ok := buildPolarityScorer(nil).(*tone.LexiconScorer); !ok {
		t.Error("expected lexicon scorer without an OpenAI key")
	}
	if s := buildSearcher(nil); s != nil {
		t.Errorf("expected nil searcher without a Places key, got %T", s)
	}
}
