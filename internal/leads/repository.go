package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage.
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByConversationID(ctx context.Context, conversationID string) (*Lead, error)
}

// InMemoryRepository is a Repository backed by a map. Used in development
// when no database is configured, and in tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Create stores a new lead in memory.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := &Lead{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Location:       req.Location,
		GuestCount:     req.GuestCount,
		Budget:         req.Budget,
		Season:         req.Season,
		Temperature:    req.Temperature,
		Summary:        req.Summary,
		Source:         req.Source,
		CreatedAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.mu.Unlock()

	return lead, nil
}

// GetByConversationID returns the lead archived for a conversation.
func (r *InMemoryRepository) GetByConversationID(ctx context.Context, conversationID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, lead := range r.leads {
		if lead.ConversationID == conversationID {
			return lead, nil
		}
	}
	return nil, ErrLeadNotFound
}
