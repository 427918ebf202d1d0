// Package conversation orchestrates chat turns: scripted branches, streamed
// completion turns, the humanized pacing between them, and the handoffs into
// booking and lead sync. Transports stay thin; everything stateful runs here.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/myralabs/pura-chat-platform/internal/booking"
	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/completion"
	"github.com/myralabs/pura-chat-platform/internal/observability/metrics"
	"github.com/myralabs/pura-chat-platform/internal/session"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

var (
	// ErrBusy is returned when a turn is already in flight for the
	// conversation. Clients should drop the duplicate submission.
	ErrBusy = errors.New("conversation: turn already in flight")

	// ErrReset is returned when the conversation was reset while a
	// completion was streaming. The streamed result is discarded.
	ErrReset = errors.New("conversation: reset during turn")

	// ErrContactRequired is returned when a booking action arrives before
	// contact details were collected.
	ErrContactRequired = errors.New("conversation: contact info required")
)

const closingLine = "You made a smart move starting here. Excited to help you find the places that actually fit your wedding."

// contactContinueDelay matches the pause before the canned budget question
// after an early contact capture.
const contactContinueDelay = 1500 * time.Millisecond

// Streamer is the streaming completion surface the engine consumes.
type Streamer interface {
	Stream(ctx context.Context, messages []completion.Message, cb completion.StreamCallbacks) (string, error)
}

// Syncer dispatches the once-per-conversation lead sync.
type Syncer interface {
	SyncOnce(ctx context.Context, conversationID string, contact chat.ContactInfo, transcript []chat.Message) (bool, error)
}

// Booker is the slice of the booking coordinator the engine needs.
type Booker interface {
	FetchAvailableSlots(ctx context.Context, windowDays int) ([]chat.AvailableSlot, int, error)
	BookAppointment(ctx context.Context, contact chat.ContactInfo, slot chat.AvailableSlot) booking.Result
	FallbackURL() string
}

// Engine drives the dialogue for all conversations.
type Engine struct {
	sessions       *session.Store
	streamer       Streamer
	booker         Booker
	syncer         Syncer
	timing         *chat.Timing
	metrics        *metrics.ChatMetrics
	logger         *logging.Logger
	tracer         trace.Tracer
	slotWindowDays int

	// inflight guards against concurrent turns on the same conversation
	// within this process. Cross-process idempotency uses the session flags.
	inflight sync.Map
}

// NewEngine wires the orchestrator. metrics may be nil.
func NewEngine(
	sessions *session.Store,
	streamer Streamer,
	booker Booker,
	syncer Syncer,
	timing *chat.Timing,
	slotWindowDays int,
	m *metrics.ChatMetrics,
	logger *logging.Logger,
) *Engine {
	if sessions == nil {
		panic("conversation: session store required")
	}
	if streamer == nil {
		panic("conversation: streamer required")
	}
	if booker == nil {
		panic("conversation: booker required")
	}
	if syncer == nil {
		panic("conversation: syncer required")
	}
	if timing == nil {
		timing = chat.NewTiming()
	}
	if slotWindowDays <= 0 {
		slotWindowDays = 14
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		sessions:       sessions,
		streamer:       streamer,
		booker:         booker,
		syncer:         syncer,
		timing:         timing,
		metrics:        m,
		logger:         logger,
		tracer:         otel.Tracer("pura.internal.conversation"),
		slotWindowDays: slotWindowDays,
	}
}

// Open loads the conversation, seeding the intro sequence for a fresh one.
func (e *Engine) Open(ctx context.Context, conversationID string, sink Sink) (*session.Session, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.open")
	defer span.End()
	span.SetAttributes(attribute.String("pura.conversation_id", conversationID))

	sess, created, err := e.sessions.LoadOrCreate(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if created {
		e.playSequence(sess, chat.IntroSequence, sink)
		if err := e.sessions.Save(ctx, sess); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	return sess, nil
}

// SendMessage runs one user turn. Scripted branches bypass the completion
// service entirely; everything else streams a completion, resolves the
// dialogue state, and attaches the matching input affordance.
func (e *Engine) SendMessage(ctx context.Context, conversationID, content string, sink Sink) (*session.Session, error) {
	if _, loaded := e.inflight.LoadOrStore(conversationID, struct{}{}); loaded {
		return nil, ErrBusy
	}
	defer e.inflight.Delete(conversationID)

	ctx, span := e.tracer.Start(ctx, "conversation.send_message")
	defer span.End()
	span.SetAttributes(attribute.String("pura.conversation_id", conversationID))

	sess, _, err := e.sessions.LoadOrCreate(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	sess.Append(chat.NewMessage(chat.RoleUser, content))
	sess.MarkLastUserRead()
	// Persist the user turn before the slow parts so a reset mid-stream
	// can be detected against a stored transcript.
	if err := e.sessions.Save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sink.emit(Event{
		Type:  EventReadReceipt,
		Delay: e.timing.ReadingDelay() + e.timing.ReadReceiptDelay(),
	})

	if seq, ok := chat.LookupScript(content); ok {
		span.SetAttributes(attribute.Bool("pura.scripted", true))
		e.playSequence(sess, seq, sink)
		if err := e.sessions.Save(ctx, sess); err != nil {
			span.RecordError(err)
			e.metrics.ObserveTurn("scripted", "error")
			return nil, err
		}
		e.metrics.ObserveTurn("scripted", "ok")
		return sess, nil
	}

	return e.completionTurn(ctx, sess, sink)
}

// playSequence appends a scripted sequence, pacing each message with a typing
// delay sized to its length, same as a streamed turn.
func (e *Engine) playSequence(sess *session.Session, seq chat.ScriptedSequence, sink Sink) {
	for _, sm := range seq {
		sink.emit(Event{Type: EventTyping, Delay: e.timing.TypingDelay(len(sm.Content))})

		msg := chat.NewMessage(chat.RoleAssistant, sm.Content)
		msg.QuickReplies = sm.QuickReplies
		sess.Append(msg)
		sess.State = sm.Next

		sink.emit(Event{Type: EventMessage, Message: &sess.Messages[len(sess.Messages)-1]})
	}
}

func (e *Engine) completionTurn(ctx context.Context, sess *session.Session, sink Sink) (*session.Session, error) {
	apiMessages := make([]completion.Message, 0, len(sess.Messages)+1)
	apiMessages = append(apiMessages, completion.Message{Role: completion.RoleSystem, Content: systemPrompt})
	for _, m := range sess.Messages {
		apiMessages = append(apiMessages, completion.Message{Role: string(m.Role), Content: m.Content})
	}

	sink.emit(Event{Type: EventTyping, Delay: e.timing.TypingDelay(0)})

	start := time.Now()
	raw, err := e.streamer.Stream(ctx, apiMessages, completion.StreamCallbacks{
		OnDelta: func(delta string) {
			sink.emit(Event{Type: EventDelta, Delta: delta})
		},
		OnReset: func() {
			sink.emit(Event{Type: EventReset})
		},
	})
	e.metrics.ObserveCompletionLatency(time.Since(start).Seconds())
	if err != nil {
		e.metrics.ObserveTurn("completion", "error")
		e.logger.Error("completion turn failed", "error", err, "conversation_id", sess.ConversationID)
		return nil, fmt.Errorf("conversation: completion failed: %w", err)
	}
	// An empty reply is a transient failure, not a turn. Persisting it would
	// leave a blank assistant bubble with no affordance to recover from.
	if strings.TrimSpace(raw) == "" {
		e.metrics.ObserveTurn("completion", "error")
		e.logger.Error("completion returned empty reply", "conversation_id", sess.ConversationID)
		return nil, errors.New("conversation: completion returned empty reply")
	}

	state, content, tagged := chat.ExtractStateTag(raw)
	if !tagged {
		content = raw
		state, _ = chat.ClassifyText(raw)
	}

	msg := chat.NewMessage(chat.RoleAssistant, content)
	if state.Valid() {
		chat.ApplyAffordance(&msg, state)
	}

	// The stream may have outlived a reset. Reload and compare creation
	// instants; a rotated session means this result belongs to a dead
	// conversation and is dropped.
	cur, err := e.sessions.Get(ctx, sess.ConversationID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metrics.ObserveTurn("completion", "error")
			return nil, ErrReset
		}
		return nil, err
	}
	if !cur.CreatedAt.Equal(sess.CreatedAt) {
		e.metrics.ObserveTurn("completion", "error")
		return nil, ErrReset
	}

	if state.Valid() {
		cur.State = state
	}

	if state == chat.StateSlotSelection {
		e.reachSlotSelection(ctx, cur, &msg)
	}

	cur.Append(msg)
	if err := e.sessions.Save(ctx, cur); err != nil {
		e.metrics.ObserveTurn("completion", "error")
		return nil, err
	}

	sink.emit(Event{Type: EventMessage, Message: &cur.Messages[len(cur.Messages)-1]})
	e.metrics.ObserveTurn("completion", "ok")
	return cur, nil
}

// reachSlotSelection fires the one-time lead sync and attaches the curated
// slot selector to the assistant message. Slot failures degrade silently;
// the contact-submit path offers the external calendar anyway.
func (e *Engine) reachSlotSelection(ctx context.Context, sess *session.Session, msg *chat.Message) {
	var contact chat.ContactInfo
	if sess.ContactInfo != nil {
		contact = *sess.ContactInfo
	}

	transcript := make([]chat.Message, 0, len(sess.Messages)+1)
	transcript = append(transcript, sess.Messages...)
	transcript = append(transcript, *msg)

	dispatched, err := e.syncer.SyncOnce(ctx, sess.ConversationID, contact, transcript)
	if err != nil {
		e.logger.Error("lead sync dispatch failed", "error", err, "conversation_id", sess.ConversationID)
	} else if dispatched {
		e.metrics.ObserveSyncDispatched()
	}

	slots, total, err := e.booker.FetchAvailableSlots(ctx, e.slotWindowDays)
	if err != nil {
		e.logger.Error("slot fetch failed", "error", err, "conversation_id", sess.ConversationID)
		return
	}
	if len(slots) == 0 {
		e.logger.Warn("no slots available", "conversation_id", sess.ConversationID)
		return
	}
	e.logger.Info("offering slots", "conversation_id", sess.ConversationID, "curated", len(slots), "total", total)
	msg.ShowSlotSelector = true
	msg.AvailableSlots = slots
}

// SubmitContact records the contact form. Early in the interview the flow
// continues to the budget question; after the recap it goes straight to the
// slot selector.
func (e *Engine) SubmitContact(ctx context.Context, conversationID string, contact chat.ContactInfo, sink Sink) (*session.Session, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.submit_contact")
	defer span.End()
	span.SetAttributes(attribute.String("pura.conversation_id", conversationID))

	sess, _, err := e.sessions.LoadOrCreate(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	sess.ContactInfo = &contact
	sess.Append(chat.NewMessage(chat.RoleUser,
		fmt.Sprintf("My name is %s, email is %s, and phone is %s", contact.Name, contact.Email, contact.Phone)))

	if sess.State.Before(chat.StateBudget) {
		sink.emit(Event{Type: EventTyping, Delay: contactContinueDelay})

		msg := chat.NewMessage(chat.RoleAssistant, chat.BudgetQuestion)
		msg.QuickReplies = chat.BudgetOptions
		sess.Append(msg)
		sess.State = chat.StateBudget
	} else {
		msg := chat.NewMessage(chat.RoleAssistant, "Great. Let's get your Venue Match Call on the calendar.")
		slots, _, err := e.booker.FetchAvailableSlots(ctx, e.slotWindowDays)
		if err != nil {
			e.logger.Error("slot fetch failed", "error", err, "conversation_id", conversationID)
		}
		if len(slots) > 0 {
			msg.Content = "Great. Let me pull up some available times for your Venue Match Call."
			msg.ShowSlotSelector = true
			msg.AvailableSlots = slots
		}
		sess.Append(msg)
		sess.State = chat.StateSlotSelection
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	sink.emit(Event{Type: EventMessage, Message: &sess.Messages[len(sess.Messages)-1]})
	return sess, nil
}

// SelectSlot books the chosen slot. The booked flag is a compare-and-set in
// the session store, so a second click or a concurrent request books nothing.
func (e *Engine) SelectSlot(ctx context.Context, conversationID string, slot chat.AvailableSlot, sink Sink) (*session.Session, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.select_slot")
	defer span.End()
	span.SetAttributes(attribute.String("pura.conversation_id", conversationID))

	sess, err := e.sessions.Get(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sess.ContactInfo == nil {
		return nil, ErrContactRequired
	}

	acquired, err := e.sessions.AcquireFlag(ctx, conversationID, session.FlagBooked)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !acquired {
		e.logger.Debug("duplicate slot selection ignored", "conversation_id", conversationID)
		return sess, nil
	}

	sess.Append(chat.NewMessage(chat.RoleUser, fmt.Sprintf("I'll take %s", slot.Display)))

	result := e.booker.BookAppointment(ctx, *sess.ContactInfo, slot)

	var msg chat.Message
	if result.Success {
		e.metrics.ObserveBooking("booked")
		msg = chat.NewMessage(chat.RoleAssistant, result.Message+"\n\n"+closingLine)
		sess.State = chat.StateBooked
	} else {
		e.metrics.ObserveBooking("degraded")
		// Release so a later attempt can book after a transient failure.
		if err := e.sessions.ReleaseFlag(ctx, conversationID, session.FlagBooked); err != nil {
			e.logger.Error("booked flag release failed", "error", err, "conversation_id", conversationID)
		}
		link := result.BookingLink
		if link == "" {
			link = e.booker.FallbackURL()
		}
		msg = chat.NewMessage(chat.RoleAssistant,
			fmt.Sprintf("I couldn't complete the booking automatically. No worries - book here: %s\n\n%s", link, closingLine))
		sess.State = chat.StateDeferred
	}
	sess.Append(msg)

	if err := e.sessions.Save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	sink.emit(Event{Type: EventMessage, Message: &sess.Messages[len(sess.Messages)-1]})
	return sess, nil
}

// SeeAllSlots hands the user the full external calendar.
func (e *Engine) SeeAllSlots(ctx context.Context, conversationID string, sink Sink) (*session.Session, error) {
	content := fmt.Sprintf("Here's the full calendar with all available times: %s\n\n%s", e.booker.FallbackURL(), closingLine)
	return e.deferTurn(ctx, conversationID, "Show me all available times", content, sink)
}

// BookLater closes out the booking step without a slot.
func (e *Engine) BookLater(ctx context.Context, conversationID string, sink Sink) (*session.Session, error) {
	content := "No problem! We'll be in touch soon.\n\n" + closingLine
	return e.deferTurn(ctx, conversationID, "I'll book later", content, sink)
}

func (e *Engine) deferTurn(ctx context.Context, conversationID, userContent, assistantContent string, sink Sink) (*session.Session, error) {
	sess, err := e.sessions.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	sess.Append(
		chat.NewMessage(chat.RoleUser, userContent),
		chat.NewMessage(chat.RoleAssistant, assistantContent),
	)
	sess.State = chat.StateDeferred

	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	sink.emit(Event{Type: EventMessage, Message: &sess.Messages[len(sess.Messages)-1]})
	return sess, nil
}

// Reset rotates the conversation to a fresh session with the intro replayed.
func (e *Engine) Reset(ctx context.Context, conversationID string, sink Sink) (*session.Session, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.reset")
	defer span.End()
	span.SetAttributes(attribute.String("pura.conversation_id", conversationID))

	sess, err := e.sessions.Reset(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.playSequence(sess, chat.IntroSequence, sink)
	if err := e.sessions.Save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

// History returns the stored transcript.
func (e *Engine) History(ctx context.Context, conversationID string) (*session.Session, error) {
	return e.sessions.Get(ctx, conversationID)
}
