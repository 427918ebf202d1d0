// Package leads archives synced conversation leads so the sales team has a
// queryable record independent of the CRM.
package leads

import (
	"strings"
	"time"
)

// Lead is one archived conversation lead.
type Lead struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Location       string    `json:"location"`
	GuestCount     int       `json:"guest_count"`
	Budget         string    `json:"budget"`
	Season         string    `json:"season"`
	Temperature    string    `json:"temperature"`
	Summary        string    `json:"summary"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateLeadRequest is the insert payload for a new lead.
type CreateLeadRequest struct {
	ConversationID string `json:"conversation_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Location       string `json:"location"`
	GuestCount     int    `json:"guest_count"`
	Budget         string `json:"budget"`
	Season         string `json:"season"`
	Temperature    string `json:"temperature"`
	Summary        string `json:"summary"`
	Source         string `json:"source"`
}

// Validate checks the minimum fields for an archivable lead.
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.ConversationID) == "" {
		return ErrMissingConversation
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	return nil
}
