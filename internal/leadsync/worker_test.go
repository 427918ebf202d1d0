package leadsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/leads"
)

type capturingWebhook struct {
	payloads chan map[string]any
	err      error
}

func (w *capturingWebhook) PostWebhook(_ context.Context, payload any) error {
	if m, ok := payload.(map[string]any); ok {
		w.payloads <- m
	}
	return w.err
}

func TestWorkerProcessesJobEndToEnd(t *testing.T) {
	queue := NewMemoryQueue(4)
	extractor := NewExtractor(&fakeCompleter{response: extractionResponse}, nil)
	webhook := &capturingWebhook{payloads: make(chan map[string]any, 1)}
	repo := leads.NewInMemoryRepository()
	worker := NewWorker(queue, extractor, webhook, repo, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, body, err := encodeJob(Job{
		ConversationID: "conv-1",
		Contact:        chat.ContactInfo{Name: "Jane Doe", Email: "jane@example.com", Phone: "+15551234567"},
		Transcript: []chat.Message{
			{Role: chat.RoleUser, Content: "Fall wedding near Austin, around 175 guests"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, queue.Send(ctx, body))

	worker.Start(ctx)

	select {
	case payload := <-webhook.payloads:
		assert.Equal(t, "conv-1", payload["conversationId"])
		assert.Equal(t, "pura_ai_chat", payload["source"])
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never received the payload")
	}

	cancel()
	worker.Wait()

	lead, err := repo.GetByConversationID(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", lead.Name)
	assert.Equal(t, "jane@example.com", lead.Email)
	assert.Equal(t, "Austin, TX, USA", lead.Location)
	assert.Equal(t, 175, lead.GuestCount)
	assert.Equal(t, "hot", lead.Temperature)
	assert.Equal(t, "pura_ai_chat", lead.Source)
}

func TestWorkerDropsMalformedJob(t *testing.T) {
	queue := NewMemoryQueue(1)
	extractor := NewExtractor(&fakeCompleter{response: extractionResponse}, nil)
	repo := leads.NewInMemoryRepository()
	worker := NewWorker(queue, extractor, nil, repo, 1, nil)

	worker.handle(context.Background(), QueueMessage{ID: "m1", Body: "not json"})

	_, err := repo.GetByConversationID(context.Background(), "conv-1")
	assert.ErrorIs(t, err, leads.ErrLeadNotFound)
}

func TestWorkerArchivesEvenWhenWebhookFails(t *testing.T) {
	queue := NewMemoryQueue(1)
	extractor := NewExtractor(&fakeCompleter{response: extractionResponse}, nil)
	webhook := &capturingWebhook{payloads: make(chan map[string]any, 1), err: assert.AnError}
	repo := leads.NewInMemoryRepository()
	worker := NewWorker(queue, extractor, webhook, repo, 1, nil)

	_, body, err := encodeJob(Job{
		ConversationID: "conv-2",
		Contact:        chat.ContactInfo{Email: "jane@example.com"},
	})
	require.NoError(t, err)

	worker.handle(context.Background(), QueueMessage{ID: "m1", Body: body})

	lead, err := repo.GetByConversationID(context.Background(), "conv-2")
	require.NoError(t, err)
	// The form left the name blank, so the extracted contact fills it.
	assert.Equal(t, "Jane Doe", lead.Name)
}

func TestWorkerSkipsArchiveOnExtractionFailure(t *testing.T) {
	queue := NewMemoryQueue(1)
	extractor := NewExtractor(&fakeCompleter{response: "no json here"}, nil)
	webhook := &capturingWebhook{payloads: make(chan map[string]any, 1)}
	repo := leads.NewInMemoryRepository()
	worker := NewWorker(queue, extractor, webhook, repo, 1, nil)

	_, body, err := encodeJob(Job{ConversationID: "conv-3"})
	require.NoError(t, err)

	worker.handle(context.Background(), QueueMessage{ID: "m1", Body: body})

	assert.Empty(t, webhook.payloads)
	_, err = repo.GetByConversationID(context.Background(), "conv-3")
	assert.ErrorIs(t, err, leads.ErrLeadNotFound)
}
