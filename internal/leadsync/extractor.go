package leadsync

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/completion"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

const extractionPrompt = `You are a data extraction assistant. Analyze the following conversation between a wedding planning assistant (Pura) and a user. Extract the structured data AND create a brief summary.

Extract and return a JSON object with this EXACT structure:
{
  "contact": {
    "firstName": "string or null",
    "lastName": "string or null",
    "email": "string or null",
    "phone": "string or null"
  },
  "quizData": {
    "location": {
      "place_name": "string or null (e.g., 'Austin, TX, USA')"
    },
    "guestCount": "number or null",
    "budget": "string or null (e.g., '$30,000 - $40,000')",
    "season": "string or null (Spring/Summer/Fall/Winter)",
    "venueTypes": ["array of venue types/settings or empty array"],
    "venueStyle": ["array of style preferences or empty array"],
    "scenery": ["array of scenery preferences or empty array"],
    "celebrationType": "string or null",
    "requiredSpaces": ["array of required spaces or empty array"],
    "petsAllowed": "boolean or null",
    "wheelchairAccessible": "boolean or null",
    "vendorHandling": "string or null (All-Inclusive/Flexible/DIY)",
    "coordinationRequired": "boolean or null"
  },
  "conversationSummary": {
    "overview": "2-3 sentence summary of the conversation",
    "keyTakeaways": ["array of 2-4 key points or special requests"],
    "leadTemperature": "hot | warm | cold",
    "nextSteps": "string describing recommended follow-up action"
  }
}

Rules for extraction:
- For names, try to split into firstName and lastName if possible
- For location, extract the place name as discussed (city, state, country format like "Austin, TX, USA")
- For guestCount, extract as a NUMBER (not string). If a range like "150-175", use the higher number (175)
- For budget, keep as string with dollar signs (e.g., "$30,000 - $40,000")
- For season, derive from wedding date: Dec-Feb = Winter, Mar-May = Spring, Jun-Aug = Summer, Sep-Nov = Fall. If only a month is mentioned, derive season from that.
- For petsAllowed, true if the user needs a pet-friendly venue, false if not, null if not answered
- For wheelchairAccessible, true if accessibility is needed, false if not, null if not answered
- For vendorHandling, one of "All-Inclusive", "Flexible", "DIY", or null if not answered
- For coordinationRequired, true if the user wants coordination included, false if they have their own planner, null if not answered
- For celebrationType, use one of: "Full Wedding (Ceremony + Reception)", "Ceremony Only", "Reception Only", "Multi-Day Celebration", "Cocktail-Style Reception"

Summary rules:
- Overview should be conversational and capture the essence of what was discussed
- Key takeaways should highlight unique requirements or concerns
- Lead temperature: "hot" if ready to book, "warm" if interested but has questions, "cold" if just browsing
- Next steps should be actionable for the sales team

Return ONLY the JSON object, no other text. If a field wasn't discussed or is unknown, use null for strings/numbers, empty array for arrays.`

// Profile is the structured lead extracted from a conversation transcript.
type Profile struct {
	Contact struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"contact"`
	QuizData struct {
		Location struct {
			PlaceName string `json:"place_name"`
		} `json:"location"`
		GuestCount           *int     `json:"guestCount"`
		Budget               string   `json:"budget"`
		Season               string   `json:"season"`
		VenueTypes           []string `json:"venueTypes"`
		VenueStyle           []string `json:"venueStyle"`
		Scenery              []string `json:"scenery"`
		CelebrationType      string   `json:"celebrationType"`
		RequiredSpaces       []string `json:"requiredSpaces"`
		PetsAllowed          *bool    `json:"petsAllowed"`
		WheelchairAccessible *bool    `json:"wheelchairAccessible"`
		VendorHandling       string   `json:"vendorHandling"`
		CoordinationRequired *bool    `json:"coordinationRequired"`
	} `json:"quizData"`
	Summary struct {
		Overview        string   `json:"overview"`
		KeyTakeaways    []string `json:"keyTakeaways"`
		LeadTemperature string   `json:"leadTemperature"`
		NextSteps       string   `json:"nextSteps"`
	} `json:"conversationSummary"`
}

// jsonObjectRe pulls the JSON object out of a response that may carry
// surrounding prose or code fences.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Extractor turns a transcript into a Profile via a completion call.
type Extractor struct {
	completer completion.Completer
	logger    *logging.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(completer completion.Completer, logger *logging.Logger) *Extractor {
	if completer == nil {
		panic("leadsync: completer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{completer: completer, logger: logger}
}

// Extract runs the extraction pass over the transcript.
func (e *Extractor) Extract(ctx context.Context, transcript []chat.Message) (Profile, error) {
	var b strings.Builder
	for i, msg := range transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(msg.Role)))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}

	raw, err := e.completer.Complete(ctx, []completion.Message{
		{Role: completion.RoleSystem, Content: extractionPrompt},
		{Role: completion.RoleUser, Content: b.String()},
	})
	if err != nil {
		return Profile{}, fmt.Errorf("leadsync: extraction call failed: %w", err)
	}

	match := jsonObjectRe.FindString(raw)
	if match == "" {
		return Profile{}, fmt.Errorf("leadsync: no JSON object in extraction response")
	}

	var profile Profile
	if err := json.Unmarshal([]byte(match), &profile); err != nil {
		return Profile{}, fmt.Errorf("leadsync: failed to parse extraction response: %w", err)
	}
	if profile.Summary.LeadTemperature == "" {
		profile.Summary.LeadTemperature = "warm"
	}
	return profile, nil
}

// BuildWebhookPayload assembles the CRM webhook body. Extracted values win;
// the contact form values fill any gaps. Fields the conversation never
// touched are left out rather than sent as empty strings.
func BuildWebhookPayload(profile Profile, contact chat.ContactInfo, conversationID string) map[string]any {
	quiz := map[string]any{}
	q := profile.QuizData
	if q.Location.PlaceName != "" {
		quiz["location"] = map[string]any{"place_name": q.Location.PlaceName}
	}
	if q.GuestCount != nil {
		quiz["guestCount"] = *q.GuestCount
	}
	if q.Budget != "" {
		quiz["budget"] = q.Budget
	}
	if q.Season != "" {
		quiz["season"] = q.Season
	}
	if len(q.VenueTypes) > 0 {
		quiz["venueTypes"] = q.VenueTypes
	}
	if len(q.VenueStyle) > 0 {
		quiz["venueStyle"] = q.VenueStyle
	}
	if len(q.Scenery) > 0 {
		quiz["scenery"] = q.Scenery
	}
	if q.CelebrationType != "" {
		quiz["celebrationType"] = q.CelebrationType
	}
	if len(q.RequiredSpaces) > 0 {
		quiz["requiredSpaces"] = q.RequiredSpaces
	}
	quiz["petsAllowed"] = q.PetsAllowed != nil && *q.PetsAllowed
	quiz["wheelchairAccessible"] = q.WheelchairAccessible != nil && *q.WheelchairAccessible
	quiz["coordinationRequired"] = q.CoordinationRequired != nil && *q.CoordinationRequired
	if q.VendorHandling != "" {
		quiz["vendorHandling"] = q.VendorHandling
	}

	email := profile.Contact.Email
	if email == "" {
		email = contact.Email
	}
	phone := profile.Contact.Phone
	if phone == "" {
		phone = contact.Phone
	}
	first, last := profile.Contact.FirstName, profile.Contact.LastName
	if first == "" && last == "" && contact.Name != "" {
		parts := strings.SplitN(strings.TrimSpace(contact.Name), " ", 2)
		first = parts[0]
		if len(parts) > 1 {
			last = parts[1]
		}
	}

	payload := map[string]any{
		"email":          email,
		"quizData":       quiz,
		"source":         "pura_ai_chat",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"conversationId": conversationID,
	}
	if first != "" || last != "" || phone != "" {
		payload["contact"] = map[string]any{
			"firstName": first,
			"lastName":  last,
			"phone":     phone,
		}
	}
	if s := profile.Summary; s.Overview != "" || len(s.KeyTakeaways) > 0 || s.NextSteps != "" {
		payload["conversationSummary"] = map[string]any{
			"overview":        s.Overview,
			"keyTakeaways":    s.KeyTakeaways,
			"leadTemperature": s.LeadTemperature,
			"nextSteps":       s.NextSteps,
		}
	}
	return payload
}
