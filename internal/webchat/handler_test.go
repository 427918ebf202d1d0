package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/conversation"
	"github.com/myralabs/pura-chat-platform/internal/session"
)

type fakeEngine struct {
	sess      *session.Session
	resetSess *session.Session
	err       error

	openedID    string
	sentText    string
	contact     *chat.ContactInfo
	slot        *chat.AvailableSlot
	resetCalled bool
}

func (f *fakeEngine) emitTurn(sink conversation.Sink) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if sink != nil && f.sess != nil && len(f.sess.Messages) > 0 {
		sink(conversation.Event{Type: conversation.EventTyping, Delay: 1200 * time.Millisecond})
		sink(conversation.Event{Type: conversation.EventMessage, Message: &f.sess.Messages[len(f.sess.Messages)-1]})
	}
	return f.sess, f.err
}

func (f *fakeEngine) Open(_ context.Context, conversationID string, sink conversation.Sink) (*session.Session, error) {
	f.openedID = conversationID
	return f.emitTurn(sink)
}

func (f *fakeEngine) SendMessage(_ context.Context, _, content string, sink conversation.Sink) (*session.Session, error) {
	f.sentText = content
	return f.emitTurn(sink)
}

func (f *fakeEngine) SubmitContact(_ context.Context, _ string, contact chat.ContactInfo, sink conversation.Sink) (*session.Session, error) {
	f.contact = &contact
	return f.emitTurn(sink)
}

func (f *fakeEngine) SelectSlot(_ context.Context, _ string, slot chat.AvailableSlot, sink conversation.Sink) (*session.Session, error) {
	f.slot = &slot
	return f.emitTurn(sink)
}

func (f *fakeEngine) SeeAllSlots(_ context.Context, _ string, sink conversation.Sink) (*session.Session, error) {
	return f.emitTurn(sink)
}

func (f *fakeEngine) BookLater(_ context.Context, _ string, sink conversation.Sink) (*session.Session, error) {
	return f.emitTurn(sink)
}

func (f *fakeEngine) Reset(_ context.Context, _ string, sink conversation.Sink) (*session.Session, error) {
	f.resetCalled = true
	if f.resetSess != nil {
		return f.resetSess, nil
	}
	return f.emitTurn(sink)
}

func (f *fakeEngine) History(_ context.Context, _ string) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

type fakeSlotSource struct {
	slots []chat.AvailableSlot
	total int
	err   error
	days  int
}

func (f *fakeSlotSource) FetchAvailableSlots(_ context.Context, windowDays int) ([]chat.AvailableSlot, int, error) {
	f.days = windowDays
	return f.slots, f.total, f.err
}

func testSession() *session.Session {
	sess := session.NewSession()
	msg := chat.NewMessage(chat.RoleAssistant, "Got it. Where are you planning?")
	sess.Append(chat.NewMessage(chat.RoleUser, "October 2026"), msg)
	sess.State = chat.StateLocation
	return sess
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleMessageReturnsEventsWithDelays(t *testing.T) {
	engine := &fakeEngine{sess: testSession()}
	h := NewHandler(engine, nil, 14, nil)

	rec := postJSON(t, h.HandleMessage, map[string]string{
		"conversationId": engine.sess.ConversationID,
		"text":           "October 2026",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "October 2026", engine.sentText)

	var resp turnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, engine.sess.ConversationID, resp.ConversationID)
	require.Len(t, resp.Events, 2)
	// The HTTP fallback keeps delays on the wire for client-side replay.
	assert.Equal(t, "typing", resp.Events[0].Type)
	assert.Equal(t, int64(1200), resp.Events[0].DelayMS)
	assert.Equal(t, "message", resp.Events[1].Type)
	require.NotNil(t, resp.Events[1].Message)
	assert.Len(t, resp.Messages, 2)
}

func TestHandleMessageValidation(t *testing.T) {
	h := NewHandler(&fakeEngine{sess: testSession()}, nil, 14, nil)

	rec := postJSON(t, h.HandleMessage, map[string]string{"conversationId": "conv-1", "text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.HandleMessage, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{conversation.ErrBusy, http.StatusTooManyRequests},
		{conversation.ErrReset, http.StatusConflict},
		{conversation.ErrContactRequired, http.StatusBadRequest},
		{session.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewHandler(&fakeEngine{err: tc.err}, nil, 14, nil)
		rec := postJSON(t, h.HandleMessage, map[string]string{"conversationId": "conv-1", "text": "hello"})
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestHandleContactRequiresEmail(t *testing.T) {
	engine := &fakeEngine{sess: testSession()}
	h := NewHandler(engine, nil, 14, nil)

	rec := postJSON(t, h.HandleContact, map[string]any{
		"conversationId": "conv-1",
		"contact":        map[string]string{"name": "Jane"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.HandleContact, map[string]any{
		"conversationId": "conv-1",
		"contact":        map[string]string{"name": "Jane", "email": "jane@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, engine.contact)
	assert.Equal(t, "jane@example.com", engine.contact.Email)
}

func TestHandleSlotSelect(t *testing.T) {
	engine := &fakeEngine{sess: testSession()}
	h := NewHandler(engine, nil, 14, nil)

	rec := postJSON(t, h.HandleSlotSelect, map[string]any{
		"conversationId": "conv-1",
		"slot":           map[string]string{"display": "Tue, Jun 10 @ 10:00 AM"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "slot without datetime is rejected")

	rec = postJSON(t, h.HandleSlotSelect, map[string]any{
		"conversationId": "conv-1",
		"slot": map[string]string{
			"datetime": "2025-06-10T10:00:00Z",
			"display":  "Tue, Jun 10 @ 10:00 AM",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, engine.slot)
	assert.Equal(t, "2025-06-10T10:00:00Z", engine.slot.DateTime)
}

func TestHandleReset(t *testing.T) {
	engine := &fakeEngine{sess: testSession()}
	h := NewHandler(engine, nil, 14, nil)

	rec := postJSON(t, h.HandleReset, map[string]string{"conversationId": "conv-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.resetCalled)
}

func TestHandleSlots(t *testing.T) {
	slots := &fakeSlotSource{
		slots: []chat.AvailableSlot{{DateTime: "2025-06-10T10:00:00Z", Display: "Tue, Jun 10 @ 10:00 AM"}},
		total: 9,
	}
	h := NewHandler(&fakeEngine{sess: testSession()}, slots, 14, nil)

	rec := postJSON(t, h.HandleSlots, map[string]int{"days": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, slots.days, "zero days falls back to the configured window")

	var resp struct {
		Success        bool                 `json:"success"`
		Slots          []chat.AvailableSlot `json:"slots"`
		TotalAvailable int                  `json:"totalAvailable"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Slots, 1)
	assert.Equal(t, 9, resp.TotalAvailable)
}

func TestHandleSlotsUpstreamFailure(t *testing.T) {
	slots := &fakeSlotSource{err: errors.New("calendar down")}
	h := NewHandler(&fakeEngine{sess: testSession()}, slots, 14, nil)

	rec := postJSON(t, h.HandleSlots, map[string]int{"days": 7})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
}

func TestHandleHistory(t *testing.T) {
	engine := &fakeEngine{sess: testSession()}
	h := NewHandler(engine, nil, 14, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/history?conversation="+engine.sess.ConversationID, nil)
	rec := httptest.NewRecorder()
	h.HandleHistory(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ConversationID string         `json:"conversationId"`
		Messages       []chat.Message `json:"messages"`
		State          string         `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, engine.sess.ConversationID, resp.ConversationID)
	assert.Len(t, resp.Messages, 2)
	assert.Equal(t, "location", resp.State)
}

func TestHandleHistoryUnknownConversation(t *testing.T) {
	h := NewHandler(&fakeEngine{err: session.ErrNotFound}, nil, 14, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/history?conversation=conv-missing", nil)
	rec := httptest.NewRecorder()
	h.HandleHistory(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
}

func dialWS(t *testing.T, h *Handler, conversationID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?conversation=" + conversationID
	conn, err := websocket.Dial(wsURL, "", "http://localhost/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeWSKeepsAnnouncedConversationID(t *testing.T) {
	// Sessions without messages, so the only frames are session frames.
	opened := session.NewSession()
	engine := &fakeEngine{sess: opened}
	h := NewHandler(engine, nil, 14, nil)

	conn := dialWS(t, h, opened.ConversationID)

	var frame OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	assert.Equal(t, "session", frame.Type)
	// The id the widget reconnects with is the one the engine actually
	// stored the transcript under.
	assert.Equal(t, opened.ConversationID, frame.ConversationID)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "message", Text: "October 2026"}))
	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	assert.Equal(t, "pong", frame.Type)
	assert.Equal(t, "October 2026", engine.sentText)
	assert.Equal(t, opened.ConversationID, engine.openedID)
}

func TestServeWSPushesRotatedSessionID(t *testing.T) {
	opened := session.NewSession()
	rotated := session.NewSession()
	engine := &fakeEngine{sess: opened, resetSess: rotated}
	h := NewHandler(engine, nil, 14, nil)

	conn := dialWS(t, h, opened.ConversationID)

	var frame OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	require.Equal(t, "session", frame.Type)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "reset"}))
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	assert.Equal(t, "session", frame.Type)
	// A reset mints a new conversation; the widget must learn the new id
	// or every later turn would land on the dead one.
	assert.Equal(t, rotated.ConversationID, frame.ConversationID)
	assert.True(t, engine.resetCalled)
}
