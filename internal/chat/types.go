package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SelectionType names a multi-select question vocabulary.
type SelectionType string

const (
	SelectionSetting SelectionType = "setting"
	SelectionStyle   SelectionType = "style"
	SelectionScenery SelectionType = "scenery"
	SelectionExtras  SelectionType = "extras"
)

// SelectionConfig describes a multi-select affordance: a closed option
// vocabulary with a selection cap, optionally "select all that apply".
type SelectionConfig struct {
	Type          SelectionType `json:"type"`
	Options       []string      `json:"options"`
	MaxSelections int           `json:"maxSelections"`
	SelectAll     bool          `json:"selectAll,omitempty"`
}

// AvailableSlot is an appointment slot supplied by the calendar service.
type AvailableSlot struct {
	Date     string `json:"date"`     // "2025-01-13"
	Time     string `json:"time"`     // "10:00"
	DateTime string `json:"datetime"` // absolute instant, RFC 3339
	Display  string `json:"display"`  // "Mon, Jan 13 @ 10:00 AM"
}

// ContactInfo is the captured lead contact record. Captured at most once per
// session; reused for any subsequent booking action.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Message is a single transcript entry plus its optional UI affordance
// attachments. The transcript is append-only; once appended only IsRead and,
// for the currently-streaming assistant message, Content may change.
type Message struct {
	ID               string           `json:"id"`
	Role             Role             `json:"role"`
	Content          string           `json:"content"`
	QuickReplies     []string         `json:"quickReplies,omitempty"`
	Selection        *SelectionConfig `json:"selectionOptions,omitempty"`
	ShowContactForm  bool             `json:"showContactForm,omitempty"`
	ShowSlotSelector bool             `json:"showSlotSelector,omitempty"`
	AvailableSlots   []AvailableSlot  `json:"availableSlots,omitempty"`
	IsRead           bool             `json:"isRead,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// NewMessage builds a message with a fresh id and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        "msg-" + uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Budget ranges offered as quick-reply buttons at the budget question.
var BudgetOptions = []string{
	"< $15,000",
	"$15,000 - $20,000",
	"$20,000 - $30,000",
	"$30,000 - $40,000",
	"$40,000 - $50,000",
	"$50,000 - $75,000",
	"$75,000 - $100,000",
	"$100,000+",
}

// Setting vocabulary (pick top 3).
var SettingOptions = []string{
	"Ballroom", "Barn", "Beach House", "Castle", "Chalet", "Courthouse",
	"Country Club", "Estate", "Greenhouse", "Historic Building", "Hotel",
	"Industrial Space", "Lodge", "Mansion", "Museum", "Open Space",
	"Pavilion", "Restaurant", "Rooftop", "Ship/Boat", "Tent", "Terrace", "Vineyard",
}

// Style vocabulary (pick top 3).
var StyleOptions = []string{
	"Artistic", "Boho", "Casual", "Chic", "Classic", "Cozy", "Eclectic",
	"Elegant", "Glamorous", "Grand", "Industrial", "Luxury", "Minimalist",
	"Modern", "Playful", "Romantic", "Rustic", "Traditional", "Vintage", "Whimsical",
}

// Scenery vocabulary (pick top 3).
var SceneryOptions = []string{
	"Beach", "Cityscape", "Cliffside", "Countryside", "Desert", "Fields",
	"Forest", "Garden", "Lakeside", "Marsh", "Meadow", "Mountain", "Park",
	"Rolling Hills", "Tropics", "Urban", "Valley", "Vineyard", "Waterfall", "Waterfront",
}

// Celebration types offered as quick-reply buttons.
var CelebrationOptions = []string{
	"Full Wedding (Ceremony + Reception)",
	"Full Wedding Weekend / Multi-Day",
	"Ceremony Only",
	"Reception Only",
	"Elopement",
	"Micro-Wedding",
	"Rehearsal Dinner",
	"Vow Renewal",
	"Engagement Party",
}

// Required spaces, "select all that apply".
var SpacesOptions = []string{
	"Bridal Suite",
	"Groom Suite",
	"Indoor Ceremony Space",
	"Outdoor Ceremony Space",
	"Indoor Reception Space",
	"Outdoor Reception Space",
	"On-site Accommodations",
}

var PetOptions = []string{
	"Yes, we need pet-friendly",
	"No pets",
}

var AccessibilityOptions = []string{
	"Yes, wheelchair accessibility needed",
	"No, not needed",
}

var VendorOptions = []string{
	"All-Inclusive: venue provides food & drinks",
	"Flexible: I want to pick my own caterer",
	"DIY: blank canvas, bring everything myself",
}

var CoordinationOptions = []string{
	"Yes, coordination included",
	"No, I have my own planner",
}

var RecapOptions = []string{
	"Sounds right!",
	"I want to tweak something",
}
