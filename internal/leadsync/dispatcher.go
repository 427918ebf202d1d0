package leadsync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/session"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

// FlagStore is the slice of the session store used for the once-per-
// conversation guard.
type FlagStore interface {
	AcquireFlag(ctx context.Context, conversationID, flag string) (bool, error)
	ReleaseFlag(ctx context.Context, conversationID, flag string) error
}

// Dispatcher enqueues sync jobs, at most one per conversation.
type Dispatcher struct {
	queue  Queue
	flags  FlagStore
	logger *logging.Logger
	tracer trace.Tracer
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(queue Queue, flags FlagStore, logger *logging.Logger) *Dispatcher {
	if queue == nil {
		panic("leadsync: queue required")
	}
	if flags == nil {
		panic("leadsync: flag store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		queue:  queue,
		flags:  flags,
		logger: logger,
		tracer: otel.Tracer("pura.internal.leadsync"),
	}
}

// SyncOnce enqueues a sync job for the conversation unless one was already
// dispatched. The compare-and-set on the synced flag makes this safe across
// concurrent requests and server instances. Returns whether a job was
// enqueued by this call.
func (d *Dispatcher) SyncOnce(ctx context.Context, conversationID string, contact chat.ContactInfo, transcript []chat.Message) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "leadsync.sync_once")
	defer span.End()
	span.SetAttributes(attribute.String("pura.conversation_id", conversationID))

	acquired, err := d.flags.AcquireFlag(ctx, conversationID, session.FlagSynced)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("leadsync: flag acquire failed: %w", err)
	}
	if !acquired {
		d.logger.Debug("lead sync already dispatched", "conversation_id", conversationID)
		return false, nil
	}

	_, body, err := encodeJob(Job{
		ConversationID: conversationID,
		Contact:        contact,
		Transcript:     transcript,
	})
	if err != nil {
		span.RecordError(err)
		d.releaseFlag(ctx, conversationID)
		return false, err
	}

	if err := d.queue.Send(ctx, body); err != nil {
		span.RecordError(err)
		d.releaseFlag(ctx, conversationID)
		return false, fmt.Errorf("leadsync: enqueue failed: %w", err)
	}

	d.logger.Info("lead sync dispatched", "conversation_id", conversationID)
	return true, nil
}

// releaseFlag undoes the guard so a later turn can retry after a failure.
func (d *Dispatcher) releaseFlag(ctx context.Context, conversationID string) {
	if err := d.flags.ReleaseFlag(ctx, conversationID, session.FlagSynced); err != nil {
		d.logger.Error("leadsync: flag release failed", "error", err, "conversation_id", conversationID)
	}
}
