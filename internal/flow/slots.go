package flow

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// SlotPattern recognises values for one slot.
type SlotPattern struct {
	Slot    models.SlotName
	Pattern *regexp.Regexp
	// Reject drops captures that are filler rather than values.
	Reject *regexp.Regexp
	// OwnStep patterns only read the utterance given at the slot's own step
	// and are consulted only when the slot's other patterns found nothing.
	OwnStep bool
}

// SlotPatternTable is an ordered list of slot patterns. A slot may have
// several patterns; their matches are collected in table order.
type SlotPatternTable []SlotPattern

var cuisineWords = []string{
	"italian", "chinese", "indian", "mexican", "japanese", "thai", "french",
	"greek", "spanish", "korean", "vietnamese", "turkish", "lebanese", "american", "mediterranean",
}

var (
	// captures after "in"/"near" that are not places
	locationFiller = regexp.MustCompile(`(?i)^(?:a|an|my|our|your|this|that|mind|mood|hurry|rush|time|minutes|hours?|general|total|case|advance|person|fact|which|what|there|here|me|us|it|love|interested|morning|evening|afternoon|tonight|today|tomorrow|town|any|some|monday|tuesday|wednesday|thursday|friday|saturday|sunday|january|february|march|april|may|june|july|august|september|october|november|december|` + strings.Join(cuisineWords, "|") + `)$`)
	// answers to the location question that name no place
	locationNonAnswer = regexp.MustCompile(`(?i)\b(?:know|sure|idea|matter|mind|care|anywhere|wherever|any|anything|dunno|idk|yes|no|whatever)\b`)
)

// DefaultSlotPatterns returns the pattern table used by the default flow.
func DefaultSlotPatterns() SlotPatternTable {
	return SlotPatternTable{
		{Slot: models.SlotBookingHistory, Pattern: regexp.MustCompile(`(?i)\b(never been|been before|been there|first time|regular|visited|new here)\b`)},
		{Slot: models.SlotBookingHistory, Pattern: regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|no|nope|never)\b[\s.!]*$`), OwnStep: true},

		{Slot: models.SlotDietary, Pattern: regexp.MustCompile(`(?i)\b(vegetarian|vegan|gluten[- ]free|gluten|allerg\w*|dairy[- ]free|dairy|lactose|kosher|halal|pescatarian|nut[- ]free)\b`)},
		{Slot: models.SlotDietary, Pattern: regexp.MustCompile(`(?i)\b(no (?:dietary )?(?:restrictions?|preferences?|requirements?)|none|nothing special|eat anything)\b`), OwnStep: true},

		{Slot: models.SlotCuisine, Pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(cuisineWords, "|") + `)\b`)},

		{Slot: models.SlotTimeDay, Pattern: regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?\s*(?:am|pm))\b|\b(\d{1,2}:\d{2})\b|\b(now|today|tonight|tomorrow|morning|noon|lunch|evening|dinner)\b`)},

		{Slot: models.SlotGuests, Pattern: regexp.MustCompile(`(?i)\b(?:table for|party of)\s+(\d{1,2})\b|\b(\d{1,2})\s*(?:people|persons|guests|pax|of us)\b|\b(alone|solo|couple|just me)\b`)},
		{Slot: models.SlotGuests, Pattern: regexp.MustCompile(`(?i)^\s*(?:just |only |we are |we're )?(\d{1,2})\s*[.!]*\s*$`), OwnStep: true},

		{
			Slot:    models.SlotLocation,
			// Only a capitalised name counts as a place here; lower-case answers are
			// left to the own-step pattern below.
			Pattern: regexp.MustCompile(`(?i:\b(?:in|near|around|close to))\s+(?:(?i:the)\s+)?([A-Z][\w'-]*(?:\s+(?:[A-Z][\w'-]*|(?i:garden|park|street|square|town|city|village|hill|bridge|market)\b))*)`),
			Reject:  locationFiller,
		},
		{
			Slot:    models.SlotLocation,
			Pattern: regexp.MustCompile(`(?i)^\s*(?:in |near |around |close to )?(?:the )?([a-z][a-z' -]{1,40}?)\s*[.!]*\s*$`),
			Reject:  locationNonAnswer,
			OwnStep: true,
		},

		{Slot: models.SlotBudget, Pattern: regexp.MustCompile(`(?i)\b(cheap|inexpensive|affordable|moderate|mid-range|expensive|upscale|fancy|pricey)\b`)},

		{Slot: models.SlotAtmosphere, Pattern: regexp.MustCompile(`(?i)\b(quiet|cozy|cosy|romantic|lively|relaxed|casual|upbeat|energetic|intimate|peaceful|family[- ]friendly|fast-casual|formal|outdoor)\b`)},

		{Slot: models.SlotOccasion, Pattern: regexp.MustCompile(`(?i)\b(birthday|anniversary|date|celebrat\w*|business|meeting|graduation|promotion|wedding|engagement|reunion)\b`)},
	}
}

// matches returns every capture of p in text, dropping rejected values.
func (p SlotPattern) matches(text string) []string {
	var out []string
	for _, m := range p.Pattern.FindAllStringSubmatch(text, -1) {
		v := firstCapture(m)
		if v == "" || (p.Reject != nil && p.Reject.MatchString(v)) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// firstCapture is the first non-empty capture group, or the whole match when
// the pattern has no non-empty group.
func firstCapture(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return strings.TrimSpace(m[0])
}

// SlotExtractor fills a session's slot map from its utterance history.
type SlotExtractor struct {
	table SlotPatternTable
	order []models.SlotName
}

// NewSlotExtractor creates an extractor. order fixes the sequence in which
// utterances are scanned; it is normally the flow's state order.
func NewSlotExtractor(table SlotPatternTable, order []models.SlotName) *SlotExtractor {
	return &SlotExtractor{table: table, order: order}
}

// Extract scans every recorded utterance for each slot that is still empty
// and writes the collected matches once. Filled slots are never touched.
func (e *SlotExtractor) Extract(session *models.DialogueSession) {
	found := make(map[models.SlotName][]string)
	fallback := make(map[models.SlotName][]string)
	for _, p := range e.table {
		if session.HasSlot(p.Slot) {
			continue
		}
		for _, state := range e.order {
			text, ok := session.Utterances[state]
			if !ok {
				continue
			}
			if !p.OwnStep {
				found[p.Slot] = append(found[p.Slot], p.matches(text)...)
			} else if state == p.Slot {
				fallback[p.Slot] = append(fallback[p.Slot], p.matches(text)...)
			}
		}
	}
	for slot, values := range found {
		if len(values) > 0 {
			session.Slots[slot] = values
		}
	}
	for slot, values := range fallback {
		if len(values) > 0 && !session.HasSlot(slot) {
			session.Slots[slot] = values
		}
	}
}
