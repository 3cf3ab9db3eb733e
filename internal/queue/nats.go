package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	DefaultNATSStream  = "CONTRACT_EVENTS"
	DefaultNATSSubject = "contract.signing.>"
	DefaultNATSPublish = "contract.signing.events"
	minNATSFetchWait   = 100 * time.Millisecond
)

// NATSOptions configures the stream and consumer. Subject may be a wildcard;
// PublishSubject is the concrete subject Publish writes to and must match it.
type NATSOptions struct {
	Stream         string
	Subject        string
	PublishSubject string
	Durable        string
	Visibility     time.Duration
}

type natsDelivery struct {
	msg        *nats.Msg
	receivedAt time.Time
}

// NATSQueue pulls from a durable JetStream consumer. AckWait plays the
// role of the visibility timeout.
type NATSQueue struct {
	js         nats.JetStreamContext
	sub        *nats.Subscription
	subject    string
	publishTo  string
	visibility time.Duration
	inflight   sync.Map
}

func NewNATSQueue(js nats.JetStreamContext, opts NATSOptions) (*NATSQueue, error) {
	if opts.Stream == "" {
		opts.Stream = DefaultNATSStream
	}
	if opts.Subject == "" {
		opts.Subject = DefaultNATSSubject
	}
	if opts.PublishSubject == "" {
		opts.PublishSubject = DefaultNATSPublish
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{opts.Subject},
		Storage:  nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("failed to create stream %s: %w", opts.Stream, err)
	}

	sub, err := js.PullSubscribe(opts.Subject, opts.Durable,
		nats.BindStream(opts.Stream),
		nats.AckExplicit(),
		nats.AckWait(opts.Visibility),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", opts.Subject, err)
	}

	log.Info().Str("stream", opts.Stream).Str("durable", opts.Durable).Msg("JetStream consumer ready")
	return &NATSQueue{
		js:         js,
		sub:        sub,
		subject:    opts.Subject,
		publishTo:  opts.PublishSubject,
		visibility: opts.Visibility,
	}, nil
}

func (q *NATSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	if wait < minNATSFetchWait {
		wait = minNATSFetchWait
	}
	q.forgetExpired()

	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	msgs, err := q.sub.Fetch(max, nats.Context(fetchCtx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch from %s: %w", q.subject, err)
	}

	now := time.Now()
	batch := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		handle := uuid.NewString()
		q.inflight.Store(handle, natsDelivery{msg: m, receivedAt: now})
		batch = append(batch, Message{ID: messageID(m), Body: m.Data, Handle: handle})
	}
	return batch, nil
}

// forgetExpired drops handles whose ack window has passed; the server has
// already scheduled those messages for redelivery.
func (q *NATSQueue) forgetExpired() {
	cutoff := time.Now().Add(-q.visibility)
	q.inflight.Range(func(key, value any) bool {
		if value.(natsDelivery).receivedAt.Before(cutoff) {
			q.inflight.Delete(key)
		}
		return true
	})
}

func messageID(m *nats.Msg) string {
	meta, err := m.Metadata()
	if err != nil {
		return ""
	}
	return strconv.FormatUint(meta.Sequence.Stream, 10)
}

func (q *NATSQueue) Delete(_ context.Context, handle string) error {
	value, ok := q.inflight.LoadAndDelete(handle)
	if !ok {
		return ErrUnknownHandle
	}
	if err := value.(natsDelivery).msg.AckSync(); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

func (q *NATSQueue) Publish(ctx context.Context, body []byte) error {
	return q.PublishSubject(ctx, q.publishTo, body)
}

func (q *NATSQueue) PublishSubject(ctx context.Context, subject string, body []byte) error {
	if _, err := q.js.Publish(subject, body, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close leaves the durable consumer in place so a restart resumes where the
// previous process stopped.
func (q *NATSQueue) Close() error { return nil }
