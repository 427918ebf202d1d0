package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/myralabs/pura-chat-platform/internal/chat"
)

// DefaultTTL is how long an untouched session survives before it is silently
// discarded and replaced with a fresh one.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by Get when no live session exists for the id.
var ErrNotFound = errors.New("session: not found")

// Session is the single persisted conversation record for a device: the full
// transcript, the captured contact (if any), and the explicit dialogue state.
type Session struct {
	ConversationID string            `json:"conversationId"`
	Messages       []chat.Message    `json:"messages"`
	ContactInfo    *chat.ContactInfo `json:"contactInfo,omitempty"`
	State          chat.DialogueState `json:"state"`
	CreatedAt      time.Time         `json:"createdAt"`
	// Timestamp is the last save instant; sessions older than the TTL are
	// discarded on load even if the backing key survived.
	Timestamp time.Time `json:"timestamp"`
}

// Append adds a message to the transcript.
func (s *Session) Append(msgs ...chat.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// MarkLastUserRead flips the read flag on the most recent user message.
// IsRead is one of the two fields allowed to mutate after append.
func (s *Session) MarkLastUserRead() {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == chat.RoleUser {
			s.Messages[i].IsRead = true
			return
		}
	}
}

// Store persists sessions in Redis with a rolling TTL.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStore builds a Store. ttl <= 0 selects DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("pura.internal.session"),
	}
}

// NewConversationID mints a fresh conversation identifier.
func NewConversationID() string {
	return fmt.Sprintf("conv-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// NewSession returns an empty session with a fresh conversation id.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ConversationID: NewConversationID(),
		State:          chat.StateGreeting,
		CreatedAt:      now,
		Timestamp:      now,
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("webchat_session:%s", id)
}

func flagKey(id, name string) string {
	return fmt.Sprintf("webchat_flag:%s:%s", id, name)
}

// Get loads the session for a conversation id. Expired or absent sessions
// yield ErrNotFound; a stale record that outlived its timestamp is deleted.
func (s *Store) Get(ctx context.Context, conversationID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode: %w", err)
	}
	if time.Since(sess.Timestamp) > s.ttl {
		_ = s.redis.Del(ctx, sessionKey(conversationID)).Err()
		return nil, ErrNotFound
	}
	return &sess, nil
}

// LoadOrCreate returns the live session for id, creating a fresh one under
// the SAME id when it is expired or unknown. The id is the client's handle on
// the conversation, so it must survive creation; only an empty id mints a new
// one. created reports whether a fresh session was stored.
func (s *Store) LoadOrCreate(ctx context.Context, conversationID string) (sess *Session, created bool, err error) {
	if conversationID != "" {
		sess, err = s.Get(ctx, conversationID)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	sess = NewSession()
	if conversationID != "" {
		sess.ConversationID = conversationID
		// Guard flags from an expired incarnation of this id must not leak
		// into the fresh session.
		keys := []string{
			flagKey(conversationID, FlagSynced),
			flagKey(conversationID, FlagBooked),
		}
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			return nil, false, fmt.Errorf("session: failed to clear stale flags: %w", err)
		}
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Save overwrites the single persisted session slot for the conversation and
// refreshes the TTL.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	sess.Timestamp = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.ConversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist: %w", err)
	}
	return nil
}

// Reset discards the session and its guard flags and returns a fresh session
// under a rotated conversation id.
func (s *Store) Reset(ctx context.Context, conversationID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.reset")
	defer span.End()

	if conversationID != "" {
		keys := []string{
			sessionKey(conversationID),
			flagKey(conversationID, FlagSynced),
			flagKey(conversationID, FlagBooked),
		}
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("session: failed to reset: %w", err)
		}
	}
	sess := NewSession()
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Guard flag names.
const (
	FlagSynced = "synced"
	FlagBooked = "booked"
)

// AcquireFlag atomically sets a per-conversation guard flag, returning true
// only for the first caller. Backs the once-per-session lead sync and booking
// idempotency guards.
func (s *Store) AcquireFlag(ctx context.Context, conversationID, name string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, flagKey(conversationID, name), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("session: failed to acquire %s flag: %w", name, err)
	}
	return ok, nil
}

// FlagSet reports whether a guard flag has been acquired.
func (s *Store) FlagSet(ctx context.Context, conversationID, name string) (bool, error) {
	n, err := s.redis.Exists(ctx, flagKey(conversationID, name)).Result()
	if err != nil {
		return false, fmt.Errorf("session: failed to read %s flag: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseFlag clears a guard flag. Used when a guarded attempt fails and the
// user should be allowed to retry.
func (s *Store) ReleaseFlag(ctx context.Context, conversationID, name string) error {
	if err := s.redis.Del(ctx, flagKey(conversationID, name)).Err(); err != nil {
		return fmt.Errorf("session: failed to release %s flag: %w", name, err)
	}
	return nil
}
