// Package events turns contract-signing events into reporting metrics.
package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/metrics"
	"github.com/cankoe/reporting-scheduler/internal/models"
)

// DefaultAnchorTemplate names the template that contract metrics are
// recorded against.
const DefaultAnchorTemplate = "Contract Signing Report"

const (
	TypeSigningRequested       = "contract.signing.requested"
	TypeSigningPartiallySigned = "contract.signing.partially_signed"
	TypeSigningCompleted       = "contract.signing.completed"
	TypeSigningCanceled        = "contract.signing.canceled"
	TypeSigningFailed          = "contract.signing.failed"
)

const (
	categoryContracts = "contracts"
	unitCount         = "count"
	unitPercent       = "percent"
)

type Kind int

const (
	KindUnrecognized Kind = iota
	KindSigningRequested
	KindSigningPartiallySigned
	KindSigningCompleted
	KindSigningCanceled
	KindSigningFailed
)

var kindsByType = map[string]Kind{
	TypeSigningRequested:       KindSigningRequested,
	TypeSigningPartiallySigned: KindSigningPartiallySigned,
	TypeSigningCompleted:       KindSigningCompleted,
	TypeSigningCanceled:        KindSigningCanceled,
	TypeSigningFailed:          KindSigningFailed,
}

// ParseKind maps an event type string onto its Kind.
func ParseKind(eventType string) Kind {
	if k, ok := kindsByType[eventType]; ok {
		return k
	}
	return KindUnrecognized
}

func (k Kind) String() string {
	for t, kind := range kindsByType {
		if kind == k {
			return t
		}
	}
	return "unrecognized"
}

// TemplateFinder resolves the anchor template.
type TemplateFinder interface {
	FindByName(ctx context.Context, name string) (*models.Template, error)
}

// MetricWriter appends a handler's observations as one unit.
type MetricWriter interface {
	RecordAll(ctx context.Context, obs ...metrics.Observation) ([]*models.Metric, error)
}

// HandlerFunc handles one decoded envelope.
type HandlerFunc func(ctx context.Context, env Envelope) error

type Option func(*Router)

// WithAnchorTemplate overrides the anchor template name.
func WithAnchorTemplate(name string) Option {
	return func(r *Router) {
		if name != "" {
			r.anchor = name
		}
	}
}

// Router classifies envelopes and dispatches them through a lookup table.
type Router struct {
	templates TemplateFinder
	metrics   MetricWriter
	anchor    string
	handlers  map[Kind]HandlerFunc
	logger    zerolog.Logger
}

func NewRouter(templates TemplateFinder, recorder MetricWriter, logger zerolog.Logger, opts ...Option) *Router {
	r := &Router{
		templates: templates,
		metrics:   recorder,
		anchor:    DefaultAnchorTemplate,
		logger:    logger.With().Str("component", "event_router").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[Kind]HandlerFunc{
		KindSigningRequested:       r.handleSigningRequested,
		KindSigningPartiallySigned: r.handleSigningPartiallySigned,
		KindSigningCompleted:       r.handleSigningCompleted,
		KindSigningCanceled:        r.counterHandler("contract_signing_canceled"),
		KindSigningFailed:          r.counterHandler("contract_signing_failed"),
	}
	return r
}

// Process decodes one message body and runs the matching handler. A nil
// return means the message may be acknowledged; unrecognised event types
// count as handled.
func (r *Router) Process(ctx context.Context, body []byte) error {
	env, err := Decode(body)
	if err != nil {
		return err
	}

	kind := ParseKind(env.EventType)
	handler, ok := r.handlers[kind]
	if !ok {
		r.logger.Debug().Str("event_type", env.EventType).Msg("Ignoring event type")
		return nil
	}

	r.logger.Info().Str("event_type", env.EventType).Msg("Processing event")
	if err := handler(ctx, env); err != nil {
		return &apperr.HandlerError{EventType: env.EventType, Err: err}
	}
	return nil
}

func (r *Router) handleSigningRequested(ctx context.Context, env Envelope) error {
	payload, err := env.Payload()
	if err != nil {
		return err
	}
	participants, err := listLen(payload, "participants")
	if err != nil {
		return err
	}
	return r.record(ctx, env, payload,
		observation("contract_signing_initiated", 1, unitCount),
		observation("signing_participants", float64(participants), unitCount),
	)
}

func (r *Router) handleSigningPartiallySigned(ctx context.Context, env Envelope) error {
	payload, err := env.Payload()
	if err != nil {
		return err
	}
	signed, err := listLen(payload, "signed_participants")
	if err != nil {
		return err
	}
	pending, err := listLen(payload, "pending_participants")
	if err != nil {
		return err
	}

	progress := 0.0
	if total := signed + pending; total > 0 {
		progress = float64(signed) / float64(total) * 100
	}
	return r.record(ctx, env, payload, observation("signing_progress_percent", progress, unitPercent))
}

func (r *Router) handleSigningCompleted(ctx context.Context, env Envelope) error {
	payload, err := env.Payload()
	if err != nil {
		return err
	}
	signed, err := listLen(payload, "signed_participants")
	if err != nil {
		return err
	}
	return r.record(ctx, env, payload,
		observation("contract_signing_completed", 1, unitCount),
		observation("completed_signing_participants", float64(signed), unitCount),
	)
}

// counterHandler records a single count of 1 under name.
func (r *Router) counterHandler(name string) HandlerFunc {
	return func(ctx context.Context, env Envelope) error {
		payload, err := env.Payload()
		if err != nil {
			return err
		}
		return r.record(ctx, env, payload, observation(name, 1, unitCount))
	}
}

// record resolves the anchor template and appends obs against it. Without
// an anchor there is nothing to record against and the event is dropped.
func (r *Router) record(ctx context.Context, env Envelope, payload map[string]any, obs ...metrics.Observation) error {
	packageID, _ := payload["signing_package_id"].(string)
	logger := r.logger.With().Str("event_type", env.EventType).Str("signing_package_id", packageID).Logger()

	anchor, err := r.templates.FindByName(ctx, r.anchor)
	if apperr.IsNotFound(err) {
		logger.Info().Str("template", r.anchor).Msg("Anchor template missing, skipping metrics")
		return nil
	}
	if err != nil {
		return err
	}

	for i := range obs {
		obs[i].AggregateID = anchor.ID
	}
	if _, err := r.metrics.RecordAll(ctx, obs...); err != nil {
		return err
	}
	logger.Info().Int("metrics", len(obs)).Msg("Recorded contract metrics")
	return nil
}

func observation(name string, value float64, unit string) metrics.Observation {
	return metrics.Observation{Name: name, Value: value, Unit: unit, Category: categoryContracts}
}
