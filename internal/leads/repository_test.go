package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepositoryCreateAndGet(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	lead, err := repo.Create(ctx, &CreateLeadRequest{
		ConversationID: "conv-1",
		Name:           "Jane Doe",
		Email:          "jane@example.com",
		Location:       "Austin, TX, USA",
		GuestCount:     175,
		Budget:         "$30,000 - $40,000",
		Season:         "Fall",
		Temperature:    "hot",
		Source:         "pura_ai_chat",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.False(t, lead.CreatedAt.IsZero())

	got, err := repo.GetByConversationID(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, got.ID)
	assert.Equal(t, "Jane Doe", got.Name)
}

func TestInMemoryRepositoryNotFound(t *testing.T) {
	repo := NewInMemoryRepository()

	_, err := repo.GetByConversationID(context.Background(), "conv-missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestCreateLeadRequestValidate(t *testing.T) {
	req := &CreateLeadRequest{Email: "jane@example.com"}
	assert.ErrorIs(t, req.Validate(), ErrMissingConversation)

	req = &CreateLeadRequest{ConversationID: "conv-1"}
	assert.ErrorIs(t, req.Validate(), ErrMissingContact)

	req = &CreateLeadRequest{ConversationID: "conv-1", Phone: "+15551234567"}
	assert.NoError(t, req.Validate())
}
