package chat

import (
	"regexp"
	"strings"
)

// DialogueState is the explicit position in the guided conversation. The
// assistant is prompted to terminate every reply with a hidden
// [[STATE: <name>]] tag; the state, not the prose, decides which affordance
// accompanies the message.
type DialogueState string

const (
	StateGreeting      DialogueState = "greeting"
	StateWeddingDate   DialogueState = "weddingDate"
	StateLocation      DialogueState = "location"
	StateGuestCount    DialogueState = "guestCount"
	StateLeadCapture   DialogueState = "leadCapture"
	StateBudget        DialogueState = "budget"
	StateSetting       DialogueState = "setting"
	StateStyle         DialogueState = "style"
	StateScenery       DialogueState = "scenery"
	StateCelebration   DialogueState = "celebration"
	StateSpaces        DialogueState = "spaces"
	StatePets          DialogueState = "pets"
	StateAccessibility DialogueState = "accessibility"
	StateVendors       DialogueState = "vendors"
	StateCoordination  DialogueState = "coordination"
	StateRecap         DialogueState = "recap"
	StateSlotSelection DialogueState = "slotSelection"
	StateBooked        DialogueState = "booked"
	StateDeferred      DialogueState = "deferred"
)

// stateOrder fixes the canonical progression through the quiz. Used both to
// validate tags and to answer ordering questions such as "has the budget
// question been reached yet".
var stateOrder = []DialogueState{
	StateGreeting,
	StateWeddingDate,
	StateLocation,
	StateGuestCount,
	StateLeadCapture,
	StateBudget,
	StateSetting,
	StateStyle,
	StateScenery,
	StateCelebration,
	StateSpaces,
	StatePets,
	StateAccessibility,
	StateVendors,
	StateCoordination,
	StateRecap,
	StateSlotSelection,
	StateBooked,
	StateDeferred,
}

var stateIndex = func() map[DialogueState]int {
	m := make(map[DialogueState]int, len(stateOrder))
	for i, s := range stateOrder {
		m[s] = i
	}
	return m
}()

// Valid reports whether s is a known dialogue state.
func (s DialogueState) Valid() bool {
	_, ok := stateIndex[s]
	return ok
}

// Before reports whether s precedes other in the canonical progression.
// Unknown states compare as earliest.
func (s DialogueState) Before(other DialogueState) bool {
	return stateIndex[s] < stateIndex[other]
}

// Terminal reports whether the conversation is finished.
func (s DialogueState) Terminal() bool {
	return s == StateBooked || s == StateDeferred
}

var stateTagRe = regexp.MustCompile(`\[\[STATE:\s*([A-Za-z]+)\s*\]\]`)

// ExtractStateTag pulls a hidden [[STATE: x]] tag out of assistant text,
// returning the state and the text with the tag removed. ok is false when no
// valid tag is present, in which case the caller falls back to text
// classification.
func ExtractStateTag(content string) (state DialogueState, clean string, ok bool) {
	m := stateTagRe.FindStringSubmatch(content)
	if m == nil {
		return "", content, false
	}
	clean = strings.TrimSpace(stateTagRe.ReplaceAllString(content, ""))
	state = DialogueState(m[1])
	if !state.Valid() {
		return "", clean, false
	}
	return state, clean, true
}

// ApplyAffordance attaches the affordance the given state expects to msg.
// Exactly one affordance class (or none) is attached. Slot attachment for
// StateSlotSelection is the orchestrator's job because it requires a live
// calendar fetch.
func ApplyAffordance(msg *Message, state DialogueState) {
	msg.QuickReplies = nil
	msg.Selection = nil
	msg.ShowContactForm = false

	switch state {
	case StateGreeting:
		msg.QuickReplies = append([]string(nil), "I'm ready", "Tell me more first")
	case StateWeddingDate:
		msg.QuickReplies = []string{"Not sure yet"}
	case StateLeadCapture:
		msg.ShowContactForm = true
	case StateBudget:
		msg.QuickReplies = append([]string(nil), BudgetOptions...)
	case StateSetting:
		msg.Selection = &SelectionConfig{Type: SelectionSetting, Options: append([]string(nil), SettingOptions...), MaxSelections: 3}
	case StateStyle:
		msg.Selection = &SelectionConfig{Type: SelectionStyle, Options: append([]string(nil), StyleOptions...), MaxSelections: 3}
	case StateScenery:
		msg.Selection = &SelectionConfig{Type: SelectionScenery, Options: append([]string(nil), SceneryOptions...), MaxSelections: 3}
	case StateCelebration:
		msg.QuickReplies = append([]string(nil), CelebrationOptions...)
	case StateSpaces:
		msg.Selection = &SelectionConfig{Type: SelectionExtras, Options: append([]string(nil), SpacesOptions...), MaxSelections: len(SpacesOptions), SelectAll: true}
	case StatePets:
		msg.QuickReplies = append([]string(nil), PetOptions...)
	case StateAccessibility:
		msg.QuickReplies = append([]string(nil), AccessibilityOptions...)
	case StateVendors:
		msg.QuickReplies = append([]string(nil), VendorOptions...)
	case StateCoordination:
		msg.QuickReplies = append([]string(nil), CoordinationOptions...)
	case StateRecap:
		msg.QuickReplies = append([]string(nil), RecapOptions...)
	}
}

// ClassifyText is the legacy substring classifier, retained as a fallback for
// replies that arrive without a state tag. It reproduces the shipped widget's
// matching rules, so an unexpectedly phrased reply may classify to nothing.
func ClassifyText(content string) (DialogueState, bool) {
	text := strings.ToLower(content)

	isRecap := strings.Contains(text, "sound right") ||
		strings.Contains(text, "anything i should tweak") ||
		(strings.Contains(text, "wedding snapshot") && strings.Contains(text, "recap"))

	switch {
	case strings.Contains(text, "venue match call"),
		strings.Contains(text, "pull up some times"),
		strings.Contains(text, "walk through your shortlist"):
		return StateSlotSelection, true
	case isRecap:
		return StateRecap, true
	case strings.Contains(text, "planning the wedding"),
		strings.Contains(text, "month and year"):
		return StateWeddingDate, true
	case strings.Contains(text, "ready to start"),
		strings.Contains(text, "want me to start"),
		strings.Contains(text, "start your match"),
		strings.Contains(text, "start your short-list"),
		strings.Contains(text, "start your shortlist"):
		return StateGreeting, true
	case strings.Contains(text, "budget") &&
		(strings.Contains(text, "wedding") || strings.Contains(text, "total") || strings.Contains(text, "overall")):
		return StateBudget, true
	case strings.Contains(text, "kind of setting"),
		strings.Contains(text, "type of setting"),
		strings.Contains(text, "setting") &&
			(strings.Contains(text, "feels right") || strings.Contains(text, "top 3") || strings.Contains(text, "pick")):
		return StateSetting, true
	case strings.Contains(text, "style") &&
		(strings.Contains(text, "describe") || strings.Contains(text, "pick") || strings.Contains(text, "top 3")),
		strings.Contains(text, "vibe") &&
			(strings.Contains(text, "describe") || strings.Contains(text, "want")):
		return StateStyle, true
	case strings.Contains(text, "scenery"),
		strings.Contains(text, "what") && strings.Contains(text, "around you") && !strings.Contains(text, "spaces"):
		return StateScenery, true
	case strings.Contains(text, "celebration") && strings.Contains(text, "look like"):
		return StateCelebration, true
	case strings.Contains(text, "specific spaces"),
		strings.Contains(text, "spaces") && (strings.Contains(text, "need") || strings.Contains(text, "select all")):
		return StateSpaces, true
	case strings.Contains(text, "pets"),
		strings.Contains(text, "pet-friendly"),
		strings.Contains(text, "pet friendly"):
		return StatePets, true
	case strings.Contains(text, "wheelchair"),
		strings.Contains(text, "accessibility"):
		return StateAccessibility, true
	case strings.Contains(text, "handle vendors"),
		strings.Contains(text, "vendor") &&
			(strings.Contains(text, "how") || strings.Contains(text, "setup") || strings.Contains(text, "handling")):
		return StateVendors, true
	case strings.Contains(text, "coordination"):
		return StateCoordination, true
	case strings.Contains(text, "name") && strings.Contains(text, "email"),
		strings.Contains(text, "get your info") && strings.Contains(text, "planner"),
		strings.Contains(text, "drop your") &&
			(strings.Contains(text, "name") || strings.Contains(text, "email")):
		return StateLeadCapture, true
	}
	return "", false
}
