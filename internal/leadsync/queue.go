// Package leadsync captures a finished conversation as a structured lead and
// delivers it downstream: a profile extraction pass, a CRM webhook, and a
// Postgres archive. Sync runs at most once per conversation; the guard lives
// in the session store so concurrent requests cannot double-fire.
package leadsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/myralabs/pura-chat-platform/internal/chat"
)

// Queue is the transport lead-sync jobs travel over. Backed by SQS in
// production and an in-memory channel in development and tests.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received queue entry.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Job is the payload enqueued when a conversation reaches the sync point.
type Job struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Contact        chat.ContactInfo `json:"contact"`
	Transcript     []chat.Message   `json:"transcript"`
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("leadsync: failed to encode job: %w", err)
	}
	return job, string(body), nil
}
