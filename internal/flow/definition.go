// Package flow implements the Recommendy dialogue state machine: the ordered
// conversational steps, slot extraction over the utterance history, and the
// per-turn skip and repeat logic.
package flow

import (
	"fmt"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// Question is a step's prompt. It is one of StaticQuestion, SentimentQuestion
// or NameQuestion.
type Question interface {
	isQuestion()
}

// StaticQuestion is a fixed prompt.
type StaticQuestion string

// SentimentQuestion picks its phrasing from the session sentiment.
type SentimentQuestion func(models.Sentiment) string

// NameQuestion is rendered with the user's display name, which may be empty.
type NameQuestion func(name string) string

func (StaticQuestion) isQuestion()    {}
func (SentimentQuestion) isQuestion() {}
func (NameQuestion) isQuestion()      {}

// QuestionContext carries what a context-dependent question may be rendered with.
type QuestionContext struct {
	Sentiment   models.Sentiment
	DisplayName string
}

// RenderQuestion resolves q to text.
func RenderQuestion(q Question, qc QuestionContext) string {
	switch v := q.(type) {
	case StaticQuestion:
		return string(v)
	case SentimentQuestion:
		return v(qc.Sentiment)
	case NameQuestion:
		return v(qc.DisplayName)
	default:
		return ""
	}
}

// Step is one position in the conversational flow.
type Step struct {
	ID            int
	State         models.SlotName
	Essential     bool
	Question      Question
	Clarification string
}

// FlowDefinition is an immutable, validated sequence of steps.
type FlowDefinition struct {
	steps []Step
	index map[models.SlotName]int
}

// NewFlowDefinition validates steps: at least one, IDs equal to their
// position, unique states, a question on every step.
func NewFlowDefinition(steps []Step) (*FlowDefinition, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", models.ErrInvalidFlow)
	}
	index := make(map[models.SlotName]int, len(steps))
	for i, st := range steps {
		if st.ID != i {
			return nil, fmt.Errorf("%w: step %q has id %d at position %d", models.ErrInvalidFlow, st.State, st.ID, i)
		}
		if st.State == "" {
			return nil, fmt.Errorf("%w: step %d has no state", models.ErrInvalidFlow, i)
		}
		if _, dup := index[st.State]; dup {
			return nil, fmt.Errorf("%w: duplicate state %q", models.ErrInvalidFlow, st.State)
		}
		if st.Question == nil {
			return nil, fmt.Errorf("%w: step %q has no question", models.ErrInvalidFlow, st.State)
		}
		index[st.State] = i
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return &FlowDefinition{steps: cp, index: index}, nil
}

// Len returns the number of steps.
func (f *FlowDefinition) Len() int { return len(f.steps) }

// Step returns the step at position i.
func (f *FlowDefinition) Step(i int) Step { return f.steps[i] }

// IndexOf returns the position of the step for state.
func (f *FlowDefinition) IndexOf(state models.SlotName) (int, bool) {
	i, ok := f.index[state]
	return i, ok
}

// States returns the step states in flow order.
func (f *FlowDefinition) States() []models.SlotName {
	out := make([]models.SlotName, len(f.steps))
	for i, st := range f.steps {
		out[i] = st.State
	}
	return out
}

// Greeting is the opening line of the default flow.
const Greeting = "Hello%s! I'm Recommendy your restaurant recommendation assistant. How can I help you today? (For example: 'I'm looking for a restaurant for dinner' or 'I need a quick lunch spot')"

var sentimentPhrasings = map[models.SlotName]map[models.Sentiment]string{
	models.SlotOccasion: {
		models.SentimentHappy:   "Are you celebrating something special today?",
		models.SentimentNeutral: "Is this a casual dining experience or something specific you're looking for?",
		models.SentimentSad:     "Would you prefer a quiet, cozy place where you can relax?",
		models.SentimentUrgent:  "Any special requirements I should know about?",
	},
	models.SlotAtmosphere: {
		models.SentimentHappy:   "Would you prefer a lively, upbeat atmosphere to match your mood?",
		models.SentimentNeutral: "What kind of atmosphere would you prefer - something relaxed or more energetic?",
		models.SentimentSad:     "How about a restaurant with a warm, comfortable atmosphere?",
		models.SentimentUrgent:  "For quick service, would you prefer casual dining or fast-casual?",
	},
	models.SlotTimeDay: {
		models.SentimentUrgent: "When do you need the table? I'll prioritize restaurants with immediate availability.",
	},
	models.SlotSuggestSpecial: {
		models.SentimentHappy:   "Would you like me to look for a place with a special dessert or a toast for the occasion?",
		models.SentimentNeutral: "Is there anything else you'd like me to consider before I pick a restaurant?",
		models.SentimentSad:     "Would a place with comforting dishes and friendly staff be good for you today?",
		models.SentimentUrgent:  "Anything else before I find your table?",
	},
}

// sentimentKeyed returns a SentimentQuestion for slot, with fallback used when
// the sentiment has no dedicated phrasing.
func sentimentKeyed(slot models.SlotName, fallback string) SentimentQuestion {
	return func(s models.Sentiment) string {
		if q, ok := sentimentPhrasings[slot][s]; ok {
			return q
		}
		if q, ok := sentimentPhrasings[slot][models.SentimentNeutral]; ok {
			return q
		}
		return fallback
	}
}

// DefaultFlow returns the restaurant recommendation flow.
func DefaultFlow() *FlowDefinition {
	steps := []Step{
		{ID: 0, State: models.SlotGreet, Question: NameQuestion(func(name string) string {
			if name == "" {
				return fmt.Sprintf(Greeting, "")
			}
			return fmt.Sprintf(Greeting, " "+name)
		})},
		{ID: 1, State: models.SlotOccasion, Question: sentimentKeyed(models.SlotOccasion, "")},
		{ID: 2, State: models.SlotAtmosphere, Question: sentimentKeyed(models.SlotAtmosphere, "")},
		{
			ID: 3, State: models.SlotBookingHistory, Essential: true,
			Question:      StaticQuestion("Have you dined with any of our recommended restaurants before?"),
			Clarification: "You can answer with something like 'yes', 'first time' or 'I've been before'.",
		},
		{
			ID: 4, State: models.SlotDietary, Essential: true,
			Question:      StaticQuestion("Do you have any dietary restrictions or preferences I should know about?"),
			Clarification: "For example: vegetarian, vegan, gluten-free, halal, kosher, or 'no restrictions'.",
		},
		{
			ID: 5, State: models.SlotCuisine, Essential: true,
			Question:      StaticQuestion("What type of cuisine interests you today?"),
			Clarification: "For example: Italian, Chinese, Indian, Mexican, Japanese, Thai or French.",
		},
		{
			ID: 6, State: models.SlotTimeDay, Essential: true,
			Question:      sentimentKeyed(models.SlotTimeDay, "When would you like to dine? Please provide day and time."),
			Clarification: "For example: 'tonight', 'tomorrow at 7pm' or '12:30'.",
		},
		{
			ID: 7, State: models.SlotGuests, Essential: true,
			Question:      StaticQuestion("How many people will be joining you?"),
			Clarification: "For example: '4', 'table for 2', 'party of 6' or 'just me'.",
		},
		{
			ID: 8, State: models.SlotLocation, Essential: true,
			Question:      StaticQuestion("Which area would you prefer to dine in?"),
			Clarification: "Please name a neighbourhood or city, for example 'Soho' or 'near Covent Garden'.",
		},
		{ID: 9, State: models.SlotBudget, Question: StaticQuestion("What's your comfortable budget range for this meal? Options are 'cheap', 'moderate' and 'expensive'.")},
		{ID: 10, State: models.SlotSuggestSpecial, Question: sentimentKeyed(models.SlotSuggestSpecial, "")},
	}
	def, err := NewFlowDefinition(steps)
	if err != nil {
		panic(err)
	}
	return def
}
