package leadsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/myralabs/pura-chat-platform/internal/leads"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

const (
	receiveBatchSize   = 5
	receiveWaitSeconds = 10
	receiveBackoff     = 2 * time.Second
)

// WebhookPoster forwards the final lead payload to the CRM.
type WebhookPoster interface {
	PostWebhook(ctx context.Context, payload any) error
}

// Worker drains the sync queue: extract a profile, forward it to the CRM
// webhook, and archive the lead. Extraction failure drops the job after
// logging; webhook and archive failures are logged but never re-queued, the
// CRM side dedupes on conversation id anyway.
type Worker struct {
	queue     Queue
	extractor *Extractor
	webhook   WebhookPoster
	repo      leads.Repository
	logger    *logging.Logger
	tracer    trace.Tracer
	count     int

	wg sync.WaitGroup
}

// NewWorker builds a Worker with count consumer goroutines.
func NewWorker(queue Queue, extractor *Extractor, webhook WebhookPoster, repo leads.Repository, count int, logger *logging.Logger) *Worker {
	if queue == nil {
		panic("leadsync: queue required")
	}
	if extractor == nil {
		panic("leadsync: extractor required")
	}
	if count <= 0 {
		count = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		queue:     queue,
		extractor: extractor,
		webhook:   webhook,
		repo:      repo,
		logger:    logger,
		tracer:    otel.Tracer("pura.internal.leadsync"),
		count:     count,
	}
}

// Start launches the consumer goroutines. They run until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}
}

// Wait blocks until all consumers have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := w.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("leadsync: receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, msg)
			if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
				w.logger.Error("leadsync: delete failed", "error", err, "message_id", msg.ID)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg QueueMessage) {
	ctx, span := w.tracer.Start(ctx, "leadsync.handle")
	defer span.End()

	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		span.RecordError(err)
		w.logger.Error("leadsync: malformed job", "error", err, "message_id", msg.ID)
		return
	}
	span.SetAttributes(attribute.String("pura.conversation_id", job.ConversationID))

	profile, err := w.extractor.Extract(ctx, job.Transcript)
	if err != nil {
		span.RecordError(err)
		w.logger.Error("leadsync: extraction failed", "error", err, "conversation_id", job.ConversationID)
		return
	}

	payload := BuildWebhookPayload(profile, job.Contact, job.ConversationID)

	if w.webhook != nil {
		if err := w.webhook.PostWebhook(ctx, payload); err != nil {
			span.RecordError(err)
			w.logger.Error("leadsync: webhook post failed", "error", err, "conversation_id", job.ConversationID)
		} else {
			w.logger.Info("lead synced to crm", "conversation_id", job.ConversationID,
				"temperature", profile.Summary.LeadTemperature)
		}
	}

	w.archive(ctx, job, profile)
}

func (w *Worker) archive(ctx context.Context, job Job, profile Profile) {
	if w.repo == nil {
		return
	}

	name := job.Contact.Name
	if name == "" {
		name = joinName(profile.Contact.FirstName, profile.Contact.LastName)
	}
	email := job.Contact.Email
	if email == "" {
		email = profile.Contact.Email
	}
	phone := job.Contact.Phone
	if phone == "" {
		phone = profile.Contact.Phone
	}
	guestCount := 0
	if profile.QuizData.GuestCount != nil {
		guestCount = *profile.QuizData.GuestCount
	}

	req := &leads.CreateLeadRequest{
		ConversationID: job.ConversationID,
		Name:           name,
		Email:          email,
		Phone:          phone,
		Location:       profile.QuizData.Location.PlaceName,
		GuestCount:     guestCount,
		Budget:         profile.QuizData.Budget,
		Season:         profile.QuizData.Season,
		Temperature:    profile.Summary.LeadTemperature,
		Summary:        profile.Summary.Overview,
		Source:         "pura_ai_chat",
	}
	if _, err := w.repo.Create(ctx, req); err != nil {
		w.logger.Error("leadsync: archive failed", "error", err, "conversation_id", job.ConversationID)
	}
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
