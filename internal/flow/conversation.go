package flow

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/recommend"
	"github.com/BTreeMap/Recommendy/internal/tone"
)

// Canned replies.
const (
	GreetingReply = "Thank you for sharing! Let me help you find the perfect restaurant."
	RepeatReply   = "I'm sorry, I didn't catch that. Can you please repeat?"
	NoMatchReply  = "I couldn't find a restaurant matching your preferences. Try different preferences, or say 'restart' to start over."
)

var restartKeyword = regexp.MustCompile(`(?i)^\s*(?:restart|start over|start again)\s*[.!]*\s*$`)

// IsRestart reports whether a chat message asks to start the conversation over.
func IsRestart(text string) bool {
	return restartKeyword.MatchString(text)
}

// StartResult is returned when a conversation starts.
type StartResult struct {
	State    models.SlotName `json:"state"`
	Question string          `json:"question"`
}

// TurnResult is returned for every processed utterance.
type TurnResult struct {
	Response            string                       `json:"response"`
	NextQuestion        string                       `json:"next_question,omitempty"`
	NextState           models.SlotName              `json:"next_state,omitempty"`
	Sentiment           models.Sentiment             `json:"sentiment"`
	Urgent              bool                         `json:"urgent"`
	CurrentConversation map[models.SlotName]string   `json:"current_conversation"`
	UserInfo            map[models.SlotName][]string `json:"user_info"`
	CurrentStep         int                          `json:"current_step"`
	Repeat              bool                         `json:"repeat,omitempty"`
	Recommendation      *models.RecommendationRecord `json:"recommendation,omitempty"`
	Complete            bool                         `json:"complete"`
}

// Messages renders the result as chat messages: the response, then the next
// question or the recommendation links.
func (r TurnResult) Messages() []string {
	out := []string{r.Response}
	if r.NextQuestion != "" {
		out = append(out, r.NextQuestion)
	}
	if rec := r.Recommendation; rec != nil {
		var links []string
		if rec.Website != "" {
			links = append(links, "Website: "+rec.Website)
		}
		if rec.MapsURL != "" {
			links = append(links, "Map: "+rec.MapsURL)
		}
		if len(links) > 0 {
			out = append(out, strings.Join(links, "\n"))
		}
	}
	return out
}

// ConversationManager drives the slot-filling dialogue for many users.
type ConversationManager struct {
	flow       *FlowDefinition
	extractor  *SlotExtractor
	sessions   SessionManager
	classifier *tone.Classifier
	scorer     *recommend.Scorer

	locks [lockShards]sync.Mutex
}

// lockShards bounds the per-user lock table. Users that share a shard
// serialise their turns, which only costs latency.
const lockShards = 64

// NewConversationManager wires a flow, its slot patterns and collaborators.
// A nil def selects DefaultFlow with DefaultSlotPatterns.
func NewConversationManager(def *FlowDefinition, sessions SessionManager, classifier *tone.Classifier, scorer *recommend.Scorer) *ConversationManager {
	if def == nil {
		def = DefaultFlow()
	}
	if classifier == nil {
		classifier = tone.NewClassifier(nil)
	}
	return &ConversationManager{
		flow:       def,
		extractor:  NewSlotExtractor(DefaultSlotPatterns(), def.States()),
		sessions:   sessions,
		classifier: classifier,
		scorer:     scorer,
	}
}

// WithPatterns replaces the slot pattern table.
func (cm *ConversationManager) WithPatterns(table SlotPatternTable) *ConversationManager {
	cm.extractor = NewSlotExtractor(table, cm.flow.States())
	return cm
}

// Flow returns the flow definition in use.
func (cm *ConversationManager) Flow() *FlowDefinition { return cm.flow }

// Classifier returns the sentiment classifier in use.
func (cm *ConversationManager) Classifier() *tone.Classifier { return cm.classifier }

func (cm *ConversationManager) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &cm.locks[h.Sum32()%lockShards]
}

func (cm *ConversationManager) lock(userID string) func() {
	mu := cm.userLock(userID)
	mu.Lock()
	return mu.Unlock
}

// StartConversation resets the user's session and returns the first question.
func (cm *ConversationManager) StartConversation(ctx context.Context, userID, displayName string) (StartResult, error) {
	defer cm.lock(userID)()

	session, err := cm.sessions.ResetSession(ctx, userID, displayName)
	if err != nil {
		slog.Error("ConversationManager.StartConversation: reset failed", "error", err, "userID", userID)
		return StartResult{}, fmt.Errorf("start conversation: %w", err)
	}
	first := cm.flow.Step(0)
	slog.Info("ConversationManager.StartConversation: conversation started", "userID", userID)
	return StartResult{
		State:    first.State,
		Question: RenderQuestion(first.Question, QuestionContext{Sentiment: session.Sentiment, DisplayName: displayName}),
	}, nil
}

// ProcessTurn records one utterance and decides the next question, a repeat
// of the current one, or the final recommendation.
func (cm *ConversationManager) ProcessTurn(ctx context.Context, userID, text string) (TurnResult, error) {
	defer cm.lock(userID)()

	session, err := cm.sessions.LoadSession(ctx, userID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("process turn: %w", err)
	}
	n := cm.flow.Len()
	if session.CurrentStep >= n {
		session.CurrentStep = n - 1
	}

	current := cm.flow.Step(session.CurrentStep)
	session.Utterances[current.State] = text

	if current.ID == 0 && !session.SentimentSet {
		session.Sentiment, session.Urgent = cm.classifier.Analyze(ctx, text)
		session.SentimentSet = true
		slog.Info("ConversationManager.ProcessTurn: sentiment set", "userID", userID, "sentiment", session.Sentiment, "urgent", session.Urgent)
	}

	cm.extractor.Extract(session)

	next := cm.nextStep(session, session.CurrentStep+1)

	var result TurnResult
	switch {
	case current.Essential && !session.HasSlot(current.State):
		result = cm.repeat(session, current)
	case next < n:
		result = cm.advance(session, current, next, text)
	default:
		result, err = cm.finish(ctx, session)
		if err != nil {
			return TurnResult{}, err
		}
	}

	if err := cm.sessions.SaveSession(ctx, session); err != nil {
		return TurnResult{}, fmt.Errorf("process turn: %w", err)
	}
	result.Sentiment = session.Sentiment
	result.Urgent = session.Urgent
	result.CurrentConversation = copyUtterances(session.Utterances)
	result.UserInfo = copySlots(session.Slots)
	result.CurrentStep = session.CurrentStep
	return result, nil
}

// nextStep skips steps whose slot is already known, then non-essential steps
// while the session is urgent.
func (cm *ConversationManager) nextStep(session *models.DialogueSession, from int) int {
	next := from
	for next < cm.flow.Len() {
		st := cm.flow.Step(next)
		if session.HasSlot(st.State) {
			next++
			continue
		}
		if session.Urgent && !st.Essential {
			next++
			continue
		}
		break
	}
	return next
}

func (cm *ConversationManager) render(session *models.DialogueSession, st Step) string {
	q := RenderQuestion(st.Question, QuestionContext{Sentiment: session.Sentiment, DisplayName: session.DisplayName})
	if session.Urgent {
		q = tone.UrgentRewrite(q)
	}
	return q
}

func (cm *ConversationManager) repeat(session *models.DialogueSession, current Step) TurnResult {
	q := cm.render(session, current)
	if current.Clarification != "" {
		q += "\n" + current.Clarification
	}
	slog.Debug("ConversationManager.ProcessTurn: repeating essential step", "userID", session.UserID, "state", current.State)
	return TurnResult{
		Response:     RepeatReply,
		NextQuestion: q,
		NextState:    current.State,
		Repeat:       true,
	}
}

func (cm *ConversationManager) advance(session *models.DialogueSession, current Step, next int, text string) TurnResult {
	st := cm.flow.Step(next)
	q := cm.render(session, st)

	reply := GreetingReply
	if current.ID != 0 {
		if f := tone.FollowUp(session.Sentiment, session.Utterances); f != "" {
			q += "\n" + f
		}
		reply = tone.EmpatheticReply(session.Sentiment, text)
	}

	slog.Debug("ConversationManager.ProcessTurn: advancing", "userID", session.UserID, "from", current.State, "to", st.State)
	session.CurrentStep = next
	return TurnResult{
		Response:     reply,
		NextQuestion: q,
		NextState:    st.State,
	}
}

func (cm *ConversationManager) finish(ctx context.Context, session *models.DialogueSession) (TurnResult, error) {
	session.CurrentStep = cm.flow.Len() - 1
	if cm.scorer == nil {
		return TurnResult{Response: NoMatchReply, Complete: true}, nil
	}
	rec, err := cm.scorer.Recommend(ctx, session.UserID, session.DisplayName, session.Slots)
	if err != nil {
		slog.Error("ConversationManager.ProcessTurn: recommendation failed", "error", err, "userID", session.UserID)
		return TurnResult{}, fmt.Errorf("process turn: %w", err)
	}
	if rec == nil {
		return TurnResult{Response: NoMatchReply, Complete: true}, nil
	}
	return TurnResult{
		Response:       describe(rec),
		Recommendation: rec,
		Complete:       true,
	}, nil
}

func describe(rec *models.RecommendationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I recommend %s", rec.RestaurantName)
	if rec.Address != "" {
		fmt.Fprintf(&b, " at %s", rec.Address)
	}
	if rec.Rating > 0 {
		fmt.Fprintf(&b, " (rated %.1f from %d reviews)", rec.Rating, rec.ReviewCount)
	}
	b.WriteString(".")
	if rec.BookingTime != nil {
		fmt.Fprintf(&b, " Table for %d, %s.", rec.Guests, rec.BookingTime.Format("Mon 15:04"))
	}
	return b.String()
}

// GetRecommendations returns the user's stored recommendations, most recent first.
func (cm *ConversationManager) GetRecommendations(ctx context.Context, userID string) ([]models.RecommendationRecord, error) {
	if cm.scorer == nil {
		return nil, nil
	}
	return cm.scorer.History(ctx, userID)
}

func copyUtterances(m map[models.SlotName]string) map[models.SlotName]string {
	out := make(map[models.SlotName]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySlots(m map[models.SlotName][]string) map[models.SlotName][]string {
	out := make(map[models.SlotName][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
