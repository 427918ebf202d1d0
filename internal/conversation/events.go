package conversation

import (
	"time"

	"github.com/myralabs/pura-chat-platform/internal/chat"
)

// EventType discriminates the events a turn emits.
type EventType string

const (
	// EventReadReceipt marks the user's last message as read after the
	// simulated reading pause.
	EventReadReceipt EventType = "read_receipt"
	// EventTyping shows the typing indicator for Delay before the next
	// message lands.
	EventTyping EventType = "typing"
	// EventDelta carries one streamed content fragment.
	EventDelta EventType = "delta"
	// EventReset tells the client to discard streamed fragments; the
	// completion attempt is starting over.
	EventReset EventType = "reset"
	// EventMessage carries a complete assistant message.
	EventMessage EventType = "message"
)

// Event is one step of a turn's playback. Delay is how long the client should
// hold before acting on the event; transports either sleep server-side or
// forward the delay for the client to honor.
type Event struct {
	Type    EventType
	Delay   time.Duration
	Delta   string
	Message *chat.Message
}

// Sink receives turn events in order. A nil Sink is valid and discards
// everything, which suits transports that only want the final transcript.
type Sink func(Event)

func (s Sink) emit(ev Event) {
	if s != nil {
		s(ev)
	}
}
