package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	id             string
	body           []byte
	handle         string
	invisibleUntil time.Time
}

// MemoryQueue is an in-process queue with visibility-timeout redelivery,
// used for local runs and tests.
type MemoryQueue struct {
	mu         sync.Mutex
	entries    []*memoryEntry
	visibility time.Duration
	now        func() time.Time
	notify     chan struct{}
}

func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	return &MemoryQueue{
		visibility: visibility,
		now:        time.Now,
		notify:     make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Publish(_ context.Context, body []byte) error {
	q.mu.Lock()
	q.entries = append(q.entries, &memoryEntry{id: uuid.NewString(), body: append([]byte(nil), body...)})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		if batch := q.take(max); len(batch) > 0 || wait <= 0 {
			return batch, nil
		}
		// Wake up for publishes, or soon enough to see expired deliveries.
		poll := time.NewTimer(10 * time.Millisecond)
		select {
		case <-ctx.Done():
			poll.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			poll.Stop()
			return q.take(max), nil
		case <-q.notify:
		case <-poll.C:
		}
		poll.Stop()
	}
}

func (q *MemoryQueue) take(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var batch []Message
	for _, e := range q.entries {
		if len(batch) == max {
			break
		}
		if now.Before(e.invisibleUntil) {
			continue
		}
		e.handle = uuid.NewString()
		e.invisibleUntil = now.Add(q.visibility)
		batch = append(batch, Message{ID: e.id, Body: e.body, Handle: e.handle})
	}
	return batch
}

func (q *MemoryQueue) Delete(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.handle == handle && handle != "" {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return ErrUnknownHandle
}

// Len returns the number of messages not yet deleted.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *MemoryQueue) Close() error { return nil }
