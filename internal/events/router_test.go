package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/database"
	"github.com/cankoe/reporting-scheduler/internal/events"
	"github.com/cankoe/reporting-scheduler/internal/metrics"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
	"github.com/cankoe/reporting-scheduler/internal/store/sqlstore"
)

type fixture struct {
	router *events.Router
	store  store.Store
	anchor *models.Template
}

func newFixture(t *testing.T, withAnchor bool) *fixture {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "reporting.db"))
	require.NoError(t, err)
	s, err := sqlstore.New(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	f := &fixture{store: s}
	if withAnchor {
		f.anchor = &models.Template{Name: events.DefaultAnchorTemplate, Type: "contracts", IsActive: true}
		require.NoError(t, s.Templates().Create(context.Background(), f.anchor))
	}
	recorder := metrics.NewRecorder(s.Metrics(), zerolog.Nop())
	f.router = events.NewRouter(s.Templates(), recorder, zerolog.Nop())
	return f
}

func (f *fixture) metrics(t *testing.T) map[string]float64 {
	t.Helper()
	out := map[string]float64{}
	list, _, err := f.store.Metrics().ListByCategory(context.Background(), "contracts", store.Page{})
	require.NoError(t, err)
	for _, m := range list {
		out[m.Name] += m.Value
		if f.anchor != nil {
			assert.Equal(t, f.anchor.ID, m.ReportID)
		}
		assert.Equal(t, "contracts", m.Category)
	}
	return out
}

func envelope(t *testing.T, eventType string, payload map[string]any) []byte {
	t.Helper()
	env := map[string]any{"event_type": eventType}
	if payload != nil {
		env["payload"] = payload
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

func TestPartiallySignedRecordsProgress(t *testing.T) {
	f := newFixture(t, true)
	body := envelope(t, events.TypeSigningPartiallySigned, map[string]any{
		"signing_package_id":   "x",
		"signed_participants":  []string{"a", "b"},
		"pending_participants": []string{"c"},
	})

	require.NoError(t, f.router.Process(context.Background(), body))
	assert.Equal(t, map[string]float64{"signing_progress_percent": 66.67}, f.metrics(t))
}

func TestPartiallySignedWithNoParticipants(t *testing.T) {
	f := newFixture(t, true)
	body := envelope(t, events.TypeSigningPartiallySigned, map[string]any{"signing_package_id": "x"})

	require.NoError(t, f.router.Process(context.Background(), body))
	assert.Equal(t, map[string]float64{"signing_progress_percent": 0}, f.metrics(t))
}

func TestHandlersRecordExpectedMetrics(t *testing.T) {
	tests := []struct {
		eventType string
		payload   map[string]any
		want      map[string]float64
	}{
		{
			events.TypeSigningRequested,
			map[string]any{"signing_package_id": "p1", "participants": []string{"a", "b", "c"}},
			map[string]float64{"contract_signing_initiated": 1, "signing_participants": 3},
		},
		{
			events.TypeSigningCompleted,
			map[string]any{"signing_package_id": "p1", "signed_participants": []string{"a", "b"}},
			map[string]float64{"contract_signing_completed": 1, "completed_signing_participants": 2},
		},
		{
			events.TypeSigningCanceled,
			map[string]any{"signing_package_id": "p1"},
			map[string]float64{"contract_signing_canceled": 1},
		},
		{
			events.TypeSigningFailed,
			map[string]any{"signing_package_id": "p1"},
			map[string]float64{"contract_signing_failed": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			f := newFixture(t, true)
			require.NoError(t, f.router.Process(context.Background(), envelope(t, tt.eventType, tt.payload)))
			assert.Equal(t, tt.want, f.metrics(t))
		})
	}
}

func TestEnvelopeWithoutPayloadUsesItself(t *testing.T) {
	f := newFixture(t, true)
	body := []byte(`{"event_type":"contract.signing.requested","signing_package_id":"p","participants":["a"]}`)

	require.NoError(t, f.router.Process(context.Background(), body))
	assert.Equal(t, map[string]float64{"contract_signing_initiated": 1, "signing_participants": 1}, f.metrics(t))
}

func TestNotificationWrapperIsUnwrapped(t *testing.T) {
	f := newFixture(t, true)
	inner := envelope(t, events.TypeSigningCanceled, map[string]any{"signing_package_id": "p"})
	outer, err := json.Marshal(map[string]any{"Type": "Notification", "Message": string(inner)})
	require.NoError(t, err)

	require.NoError(t, f.router.Process(context.Background(), outer))
	assert.Equal(t, map[string]float64{"contract_signing_canceled": 1}, f.metrics(t))
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	body := envelope(t, "contract.archived", map[string]any{"signing_package_id": "p"})

	require.NoError(t, f.router.Process(context.Background(), body))
	assert.Empty(t, f.metrics(t))
}

func TestMissingAnchorIsANoOp(t *testing.T) {
	f := newFixture(t, false)
	body := envelope(t, events.TypeSigningFailed, map[string]any{"signing_package_id": "p"})

	require.NoError(t, f.router.Process(context.Background(), body))
	assert.Empty(t, f.metrics(t))
}

func TestMalformedBodies(t *testing.T) {
	f := newFixture(t, true)
	for name, body := range map[string]string{
		"not json":             `{"event_type":`,
		"array":                `[1,2,3]`,
		"string":               `"hello"`,
		"bad inner message":    `{"Message":"{not json"}`,
		"inner not an object":  `{"Message":"42"}`,
		"message is an object": `{"event_type":"contract.signing.failed","Message":{"event_type":"contract.signing.failed"}}`,
		"message is a number":  `{"event_type":"contract.signing.failed","Message":7}`,
		"message is null":      `{"event_type":"contract.signing.failed","Message":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := f.router.Process(context.Background(), []byte(body))
			var malformed *apperr.MalformedMessageError
			assert.True(t, errors.As(err, &malformed), "got %v", err)
		})
	}
	assert.Empty(t, f.metrics(t))
}

func TestBadPayloadIsAHandlerError(t *testing.T) {
	f := newFixture(t, true)
	body := []byte(`{"event_type":"contract.signing.requested","payload":{"participants":"everyone"}}`)

	err := f.router.Process(context.Background(), body)
	var handlerErr *apperr.HandlerError
	require.True(t, errors.As(err, &handlerErr), "got %v", err)
	assert.Equal(t, events.TypeSigningRequested, handlerErr.EventType)
	assert.Empty(t, f.metrics(t))
}

type brokenTemplates struct{}

func (brokenTemplates) FindByName(context.Context, string) (*models.Template, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailureIsAHandlerError(t *testing.T) {
	router := events.NewRouter(brokenTemplates{}, nil, zerolog.Nop())
	err := router.Process(context.Background(), envelope(t, events.TypeSigningFailed, nil))

	var handlerErr *apperr.HandlerError
	require.True(t, errors.As(err, &handlerErr))
	assert.ErrorContains(t, err, "connection reset")
}

func TestDuplicateDeliveryRecordsTwice(t *testing.T) {
	f := newFixture(t, true)
	body := envelope(t, events.TypeSigningCompleted, map[string]any{"signed_participants": []string{"a"}})

	require.NoError(t, f.router.Process(context.Background(), body))
	require.NoError(t, f.router.Process(context.Background(), body))

	list, total, err := f.store.Metrics().ListByReport(context.Background(), f.anchor.ID, store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, list, 4)
}

func TestCustomAnchorTemplate(t *testing.T) {
	f := newFixture(t, true)
	custom := &models.Template{Name: "Signing KPIs", Type: "contracts", IsActive: true}
	require.NoError(t, f.store.Templates().Create(context.Background(), custom))

	router := events.NewRouter(f.store.Templates(), metrics.NewRecorder(f.store.Metrics(), zerolog.Nop()),
		zerolog.Nop(), events.WithAnchorTemplate("Signing KPIs"))
	require.NoError(t, router.Process(context.Background(), envelope(t, events.TypeSigningFailed, nil)))

	list, _, err := f.store.Metrics().ListByReport(context.Background(), custom.ID, store.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, events.KindSigningCompleted, events.ParseKind("contract.signing.completed"))
	assert.Equal(t, events.KindUnrecognized, events.ParseKind("contract.signing.COMPLETED"))
	assert.Equal(t, events.KindUnrecognized, events.ParseKind(""))
	assert.Equal(t, "contract.signing.failed", events.KindSigningFailed.String())
}
