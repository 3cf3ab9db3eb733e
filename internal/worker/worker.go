// Package worker runs the event ingestion loop: it long-polls a message
// source and acknowledges a message only after it was processed.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/queue"
)

const (
	DefaultMaxMessages  = 10
	DefaultWait         = 20 * time.Second
	DefaultErrorBackoff = 5 * time.Second

	// MinIdleWait bounds how often Run polls an empty source when Wait is
	// shorter than this.
	MinIdleWait = time.Second
)

// Processor handles one message body. A nil error acknowledges it.
type Processor interface {
	Process(ctx context.Context, body []byte) error
}

type Config struct {
	MaxMessages  int
	Wait         time.Duration
	ErrorBackoff time.Duration
}

// BatchResult summarises one poll.
type BatchResult struct {
	Received int
	Acked    int
	Failed   int
}

type Loop struct {
	source    queue.Source
	processor Processor
	cfg       Config
	logger    zerolog.Logger
}

func NewLoop(source queue.Source, processor Processor, cfg Config, logger zerolog.Logger) *Loop {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.Wait < 0 {
		cfg.Wait = DefaultWait
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	return &Loop{
		source:    source,
		processor: processor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "ingestion_loop").Logger(),
	}
}

// Run polls until ctx is cancelled. Fetch errors never stop the loop.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info().Int("max_messages", l.cfg.MaxMessages).Dur("wait", l.cfg.Wait).Msg("Ingestion loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Ingestion loop stopped by cancellation")
			return
		default:
		}

		result, fetched := l.poll(ctx)
		if fetched && result.Received == 0 && l.cfg.Wait < MinIdleWait {
			l.sleep(ctx, MinIdleWait-l.cfg.Wait)
		}
	}
}

// PollOnce receives one batch and processes each message independently.
func (l *Loop) PollOnce(ctx context.Context) BatchResult {
	result, _ := l.poll(ctx)
	return result
}

// poll reports whether the receive itself succeeded. A failed receive has
// already backed off.
func (l *Loop) poll(ctx context.Context) (BatchResult, bool) {
	var result BatchResult

	msgs, err := l.source.Receive(ctx, l.cfg.MaxMessages, l.cfg.Wait)
	if err != nil {
		if ctx.Err() != nil {
			return result, false
		}
		l.logger.Error().Err(err).Dur("backoff", l.cfg.ErrorBackoff).Msg("Failed to receive messages")
		l.sleep(ctx, l.cfg.ErrorBackoff)
		return result, false
	}
	result.Received = len(msgs)

	for _, msg := range msgs {
		if l.handle(ctx, msg) {
			result.Acked++
		} else {
			result.Failed++
		}
	}

	if result.Received > 0 {
		l.logger.Debug().Int("received", result.Received).Int("acked", result.Acked).
			Int("failed", result.Failed).Msg("Batch processed")
	}
	return result, true
}

func (l *Loop) handle(ctx context.Context, msg queue.Message) bool {
	logger := l.logger.With().Str("message_id", msg.ID).Logger()

	if err := l.processor.Process(ctx, msg.Body); err != nil {
		var malformed *apperr.MalformedMessageError
		if errors.As(err, &malformed) {
			logger.Error().Err(err).Bytes("body", msg.Body).Msg("Malformed message left for redelivery")
		} else {
			logger.Error().Err(err).Msg("Failed to process message, leaving for redelivery")
		}
		return false
	}

	if err := l.source.Delete(ctx, msg.Handle); err != nil {
		logger.Error().Err(err).Msg("Failed to acknowledge message")
		return false
	}
	return true
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
