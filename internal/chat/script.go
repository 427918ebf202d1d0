package chat

// ScriptedMessage is one step of a scripted branch: canned assistant copy plus
// optional quick replies. Pacing comes from the typing simulator, keyed on the
// copy's length, same as a streamed turn.
type ScriptedMessage struct {
	Content      string
	QuickReplies []string
	// Next is the dialogue state the conversation sits in after this message.
	Next DialogueState
}

// ScriptedSequence is an ordered scripted branch played back with simulated
// typing delays between messages.
type ScriptedSequence []ScriptedMessage

const openingQuestion = "When are you planning the wedding? Month and year is fine."

var startSequence = ScriptedSequence{
	{
		Content: "Great. I'll guide you through a few quick questions so our planners can build your short-list and walk you through the best matches live.",
		Next:    StateGreeting,
	},
	{
		Content:      openingQuestion,
		QuickReplies: []string{"Not sure yet"},
		Next:         StateWeddingDate,
	},
}

// scriptedFlows maps exact quick-reply labels to their canned branches. The
// lookup is deliberately exact-string: these turns bypass the completion
// service entirely.
var scriptedFlows = map[string]ScriptedSequence{
	"Tell me more first": {
		{
			Content: "I match your wedding vision to the venues that actually fit—your date, budget, guest count, style, etc.",
			Next:    StateGreeting,
		},
		{
			Content: "You'll get a clear shortlist of real venues, and you can walk through the options live with a planner—all for free.",
			Next:    StateGreeting,
		},
		{
			Content:      "Ready to start your match?",
			QuickReplies: []string{"Let's do it", "Why is it free?"},
			Next:         StateGreeting,
		},
	},
	"Why is it free?": {
		{
			Content: "We offer the shortlist free because it's the fastest way to show you the level of clarity we deliver.",
			Next:    StateGreeting,
		},
		{
			Content: "If you ever want deeper planning support, our programs start at $99/month—but there's zero pressure. If all you need is venue clarity and a solid shortlist, we're glad we made your planning easier.",
			Next:    StateGreeting,
		},
		{
			Content:      "Want me to start your short-list now?",
			QuickReplies: []string{"Yes please!"},
			Next:         StateGreeting,
		},
	},
	"I'm ready":   startSequence,
	"Let's do it": startSequence,
	"Yes please!": startSequence,
}

// LookupScript returns the scripted branch for an exact user input, if any.
func LookupScript(input string) (ScriptedSequence, bool) {
	seq, ok := scriptedFlows[input]
	return seq, ok
}

// IntroSequence is the pair of assistant messages staged when a chat opens.
var IntroSequence = ScriptedSequence{
	{
		Content: "Hey, I'm Pura. You made the right click. I'm here to turn all those open tabs into the venues that actually fit your vibe.",
		Next:    StateGreeting,
	},
	{
		Content:      "I'm ready when you are. Want to get this started?",
		QuickReplies: []string{"I'm ready", "Tell me more first"},
		Next:         StateGreeting,
	},
}

// BudgetQuestion is the canned continuation after an early contact capture.
const BudgetQuestion = "Great. Now let's get into the details.\n\nWhat's your overall budget for the wedding—not just venue."
