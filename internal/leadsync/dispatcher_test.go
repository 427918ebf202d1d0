package leadsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/session"
)

type failingQueue struct {
	err error
}

func (q *failingQueue) Send(_ context.Context, _ string) error { return q.err }
func (q *failingQueue) Receive(_ context.Context, _, _ int) ([]QueueMessage, error) {
	return nil, nil
}
func (q *failingQueue) Delete(_ context.Context, _ string) error { return nil }

func newFlagStore(t *testing.T) *session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return session.NewStore(client, time.Hour)
}

func TestSyncOnceDispatchesSingleJob(t *testing.T) {
	queue := NewMemoryQueue(4)
	d := NewDispatcher(queue, newFlagStore(t), nil)
	ctx := context.Background()

	contact := chat.ContactInfo{Name: "Jane Doe", Email: "jane@example.com"}
	transcript := []chat.Message{{Role: chat.RoleUser, Content: "October, outdoors"}}

	dispatched, err := d.SyncOnce(ctx, "conv-1", contact, transcript)
	require.NoError(t, err)
	assert.True(t, dispatched)

	// A second call for the same conversation is a silent no-op.
	dispatched, err = d.SyncOnce(ctx, "conv-1", contact, transcript)
	require.NoError(t, err)
	assert.False(t, dispatched)

	msgs, err := queue.Receive(ctx, 5, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Body), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "conv-1", job.ConversationID)
	assert.Equal(t, "jane@example.com", job.Contact.Email)
	require.Len(t, job.Transcript, 1)
	assert.Equal(t, "October, outdoors", job.Transcript[0].Content)
}

func TestSyncOnceIsPerConversation(t *testing.T) {
	queue := NewMemoryQueue(4)
	d := NewDispatcher(queue, newFlagStore(t), nil)
	ctx := context.Background()

	first, err := d.SyncOnce(ctx, "conv-a", chat.ContactInfo{}, nil)
	require.NoError(t, err)
	second, err := d.SyncOnce(ctx, "conv-b", chat.ContactInfo{}, nil)
	require.NoError(t, err)

	assert.True(t, first)
	assert.True(t, second)
}

func TestSyncOnceReleasesFlagOnSendFailure(t *testing.T) {
	flags := newFlagStore(t)
	d := NewDispatcher(&failingQueue{err: errors.New("queue unavailable")}, flags, nil)
	ctx := context.Background()

	_, err := d.SyncOnce(ctx, "conv-1", chat.ContactInfo{}, nil)
	require.Error(t, err)

	// The guard was released, so a retry on a healthy queue goes through.
	healthy := NewDispatcher(NewMemoryQueue(1), flags, nil)
	dispatched, err := healthy.SyncOnce(ctx, "conv-1", chat.ContactInfo{}, nil)
	require.NoError(t, err)
	assert.True(t, dispatched)
}
