// Package webchat is the transport for the marketing-site chat widget. The
// WebSocket path replays turn events in real time, honoring the humanized
// delays server-side; the HTTP fallback returns the same events with their
// delays attached so the widget can replay them client-side.
package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/conversation"
	"github.com/myralabs/pura-chat-platform/internal/session"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

// Conversations is the engine surface the transport drives.
type Conversations interface {
	Open(ctx context.Context, conversationID string, sink conversation.Sink) (*session.Session, error)
	SendMessage(ctx context.Context, conversationID, content string, sink conversation.Sink) (*session.Session, error)
	SubmitContact(ctx context.Context, conversationID string, contact chat.ContactInfo, sink conversation.Sink) (*session.Session, error)
	SelectSlot(ctx context.Context, conversationID string, slot chat.AvailableSlot, sink conversation.Sink) (*session.Session, error)
	SeeAllSlots(ctx context.Context, conversationID string, sink conversation.Sink) (*session.Session, error)
	BookLater(ctx context.Context, conversationID string, sink conversation.Sink) (*session.Session, error)
	Reset(ctx context.Context, conversationID string, sink conversation.Sink) (*session.Session, error)
	History(ctx context.Context, conversationID string) (*session.Session, error)
}

// SlotSource exposes curated availability for the standalone slots endpoint.
type SlotSource interface {
	FetchAvailableSlots(ctx context.Context, windowDays int) ([]chat.AvailableSlot, int, error)
}

// WireEvent is one turn event on the wire. DelayMS is how long the client
// should wait before acting on it; the WebSocket path has already slept.
type WireEvent struct {
	Type    string        `json:"type"`
	DelayMS int64         `json:"delayMs,omitempty"`
	Delta   string        `json:"delta,omitempty"`
	Message *chat.Message `json:"message,omitempty"`
}

// InboundMessage is what the widget sends over the socket.
type InboundMessage struct {
	Type           string            `json:"type"` // message, contact, slot_select, see_all_slots, book_later, reset, ping
	ConversationID string            `json:"conversationId"`
	Text           string            `json:"text,omitempty"`
	Contact        *chat.ContactInfo `json:"contact,omitempty"`
	Slot           *chat.AvailableSlot `json:"slot,omitempty"`
}

// OutboundMessage is what goes back over the socket.
type OutboundMessage struct {
	Type           string        `json:"type"` // session, event, error, pong
	ConversationID string        `json:"conversationId,omitempty"`
	Event          *WireEvent    `json:"event,omitempty"`
	Text           string        `json:"text,omitempty"`
}

// Handler serves the widget endpoints.
type Handler struct {
	engine         Conversations
	slots          SlotSource
	slotWindowDays int
	logger         *logging.Logger
}

// NewHandler creates a web chat handler.
func NewHandler(engine Conversations, slots SlotSource, slotWindowDays int, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("webchat: engine required")
	}
	if slotWindowDays <= 0 {
		slotWindowDays = 14
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:         engine,
		slots:          slots,
		slotWindowDays: slotWindowDays,
		logger:         logger,
	}
}

func toWire(ev conversation.Event) WireEvent {
	return WireEvent{
		Type:    string(ev.Type),
		DelayMS: ev.Delay.Milliseconds(),
		Delta:   ev.Delta,
		Message: ev.Message,
	}
}

// HandleWebSocket upgrades to WebSocket and drives turns in real time.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()

	convID := r.URL.Query().Get("conversation")
	if convID == "" {
		convID = session.NewConversationID()
	}

	// The socket sink sleeps through each delay so the widget sees the
	// reading pause, read receipt, and typing run in real time.
	sink := conversation.Sink(func(ev conversation.Event) {
		if ev.Delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(ev.Delay):
			}
		}
		wire := toWire(ev)
		wire.DelayMS = 0
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "event", Event: &wire})
	})

	sess, err := h.engine.Open(ctx, convID, sink)
	if err != nil {
		h.logger.Error("webchat: open failed", "error", err, "conversation_id", convID)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "Failed to start conversation."})
		return
	}
	convID = sess.ConversationID
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", ConversationID: convID})

	h.logger.Info("webchat: connection opened", "conversation_id", convID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "conversation_id", convID, "error", err)
			return
		}
		if msg.ConversationID != "" {
			convID = msg.ConversationID
		}
		convID = h.dispatch(ctx, conn, convID, msg, sink)
	}
}

// dispatch runs one inbound frame and returns the conversation id the socket
// should use from now on. A reset rotates the id; the client learns the new
// one through a session frame.
func (h *Handler) dispatch(ctx context.Context, conn *websocket.Conn, convID string, msg InboundMessage, sink conversation.Sink) string {
	var sess *session.Session
	var err error
	switch msg.Type {
	case "ping":
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		return convID
	case "message":
		if strings.TrimSpace(msg.Text) == "" {
			return convID
		}
		sess, err = h.engine.SendMessage(ctx, convID, msg.Text, sink)
	case "contact":
		if msg.Contact == nil {
			err = errors.New("webchat: contact payload required")
		} else {
			sess, err = h.engine.SubmitContact(ctx, convID, *msg.Contact, sink)
		}
	case "slot_select":
		if msg.Slot == nil {
			err = errors.New("webchat: slot payload required")
		} else {
			sess, err = h.engine.SelectSlot(ctx, convID, *msg.Slot, sink)
		}
	case "see_all_slots":
		sess, err = h.engine.SeeAllSlots(ctx, convID, sink)
	case "book_later":
		sess, err = h.engine.BookLater(ctx, convID, sink)
	case "reset":
		sess, err = h.engine.Reset(ctx, convID, sink)
	default:
		return convID
	}

	if err != nil {
		h.logger.Error("webchat: turn failed", "error", err, "type", msg.Type, "conversation_id", convID)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: turnErrorText(err)})
		return convID
	}
	if sess != nil && sess.ConversationID != convID {
		convID = sess.ConversationID
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", ConversationID: convID})
	}
	return convID
}

func turnErrorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return "Hold on, I'm still replying."
	case errors.Is(err, conversation.ErrReset):
		return "The conversation was reset."
	case errors.Is(err, conversation.ErrContactRequired):
		return "I need your contact details first."
	default:
		return "Sorry, something went wrong. Please try again."
	}
}

// collector gathers events for the HTTP fallback; the widget replays the
// delays itself.
type collector struct {
	events []WireEvent
}

func (c *collector) sink(ev conversation.Event) {
	c.events = append(c.events, toWire(ev))
}

type turnResponse struct {
	ConversationID string         `json:"conversationId"`
	Events         []WireEvent    `json:"events"`
	Messages       []chat.Message `json:"messages"`
}

func (h *Handler) writeTurn(w http.ResponseWriter, convID string, sess *session.Session, events []WireEvent) {
	if events == nil {
		events = []WireEvent{}
	}
	resp := turnResponse{ConversationID: convID, Events: events}
	if sess != nil {
		resp.ConversationID = sess.ConversationID
		resp.Messages = sess.Messages
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeTurnError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conversation.ErrBusy):
		status = http.StatusTooManyRequests
	case errors.Is(err, conversation.ErrReset):
		status = http.StatusConflict
	case errors.Is(err, conversation.ErrContactRequired):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": turnErrorText(err)})
}

// HandleOpen starts or resumes a conversation.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ConversationID == "" {
		req.ConversationID = session.NewConversationID()
	}

	var c collector
	sess, err := h.engine.Open(r.Context(), req.ConversationID, c.sink)
	if err != nil {
		h.logger.Error("webchat: open failed", "error", err)
		h.writeTurnError(w, err)
		return
	}
	h.writeTurn(w, req.ConversationID, sess, c.events)
}

// HandleMessage runs one user turn over HTTP.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		Text           string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "conversationId and text are required", http.StatusBadRequest)
		return
	}

	var c collector
	sess, err := h.engine.SendMessage(r.Context(), req.ConversationID, req.Text, c.sink)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	h.writeTurn(w, req.ConversationID, sess, c.events)
}

// HandleContact records the contact form submission.
func (h *Handler) HandleContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string           `json:"conversationId"`
		Contact        chat.ContactInfo `json:"contact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || req.Contact.Email == "" {
		http.Error(w, "conversationId and contact email are required", http.StatusBadRequest)
		return
	}

	var c collector
	sess, err := h.engine.SubmitContact(r.Context(), req.ConversationID, req.Contact, c.sink)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	h.writeTurn(w, req.ConversationID, sess, c.events)
}

// HandleSlotSelect books the chosen slot.
func (h *Handler) HandleSlotSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string             `json:"conversationId"`
		Slot           chat.AvailableSlot `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || req.Slot.DateTime == "" {
		http.Error(w, "conversationId and slot are required", http.StatusBadRequest)
		return
	}

	var c collector
	sess, err := h.engine.SelectSlot(r.Context(), req.ConversationID, req.Slot, c.sink)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	h.writeTurn(w, req.ConversationID, sess, c.events)
}

// HandleSeeAllSlots defers the user to the external calendar.
func (h *Handler) HandleSeeAllSlots(w http.ResponseWriter, r *http.Request) {
	h.handleSimpleTurn(w, r, h.engine.SeeAllSlots)
}

// HandleBookLater closes the booking step without a slot.
func (h *Handler) HandleBookLater(w http.ResponseWriter, r *http.Request) {
	h.handleSimpleTurn(w, r, h.engine.BookLater)
}

// HandleReset rotates the conversation.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.handleSimpleTurn(w, r, h.engine.Reset)
}

func (h *Handler) handleSimpleTurn(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, conversationID string, sink conversation.Sink) (*session.Session, error),
) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "conversationId is required", http.StatusBadRequest)
		return
	}

	var c collector
	sess, err := fn(r.Context(), req.ConversationID, c.sink)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	h.writeTurn(w, req.ConversationID, sess, c.events)
}

// HandleSlots returns curated availability for the booking widget.
func (h *Handler) HandleSlots(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Days <= 0 {
		req.Days = h.slotWindowDays
	}

	if h.slots == nil {
		http.Error(w, "slots unavailable", http.StatusServiceUnavailable)
		return
	}

	slots, total, err := h.slots.FetchAvailableSlots(r.Context(), req.Days)
	if err != nil {
		h.logger.Error("webchat: slot fetch failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "failed to fetch availability"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":        true,
		"slots":          slots,
		"totalAvailable": total,
	})
}

// HandleHistory returns the stored transcript.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversation")
	if convID == "" {
		http.Error(w, "conversation parameter required", http.StatusBadRequest)
		return
	}

	sess, err := h.engine.History(r.Context(), convID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []chat.Message{}})
			return
		}
		h.logger.Error("webchat: failed to load history", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"conversationId": sess.ConversationID,
		"messages":       sess.Messages,
		"state":          sess.State,
	})
}
