package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/testutil"
)

func TestNATSQueueAckRemovesMessage(t *testing.T) {
	ctx := context.Background()
	js := testutil.StartJetStream(t)
	q, err := NewNATSQueue(js, NATSOptions{Durable: "reporting-test", Visibility: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, testutil.WaitForStream(js, DefaultNATSStream, 5*time.Second))

	require.NoError(t, q.Publish(ctx, []byte(`{"event_type":"contract.signing.failed"}`)))

	batch, err := q.Receive(ctx, 10, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "1", batch[0].ID)
	assert.JSONEq(t, `{"event_type":"contract.signing.failed"}`, string(batch[0].Body))

	require.NoError(t, q.Delete(ctx, batch[0].Handle))
	assert.ErrorIs(t, q.Delete(ctx, batch[0].Handle), ErrUnknownHandle)

	empty, err := q.Receive(ctx, 10, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNATSQueueRedeliversUnacked(t *testing.T) {
	ctx := context.Background()
	q, err := NewNATSQueue(testutil.StartJetStream(t), NATSOptions{Durable: "reporting-test", Visibility: time.Second})
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, []byte("x")))

	first, err := q.Receive(ctx, 1, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := q.Receive(ctx, 1, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	require.NoError(t, q.Delete(ctx, second[0].Handle))
}

func TestNATSQueueEmptyFetchIsNotAnError(t *testing.T) {
	q, err := NewNATSQueue(testutil.StartJetStream(t), NATSOptions{Durable: "reporting-test", Visibility: time.Second})
	require.NoError(t, err)

	batch, err := q.Receive(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
