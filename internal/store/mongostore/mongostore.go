// Package mongostore implements store.Store on MongoDB. Document ids are
// ObjectIDs exposed to callers as hex strings.
package mongostore

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const (
	templatesCollection  = "report_templates"
	reportsCollection    = "reports"
	schedulesCollection  = "report_schedules"
	exportsCollection    = "report_exports"
	metricsCollection    = "report_metrics"
	accessLogsCollection = "report_access_logs"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database

	templates  *templateStore
	reports    *reportStore
	schedules  *scheduleStore
	exports    *exportStore
	metrics    *metricStore
	accessLogs *accessLogStore
}

var _ store.Store = (*Store)(nil)

// New wraps an already connected client and ensures the indexes the
// queries rely on.
func New(ctx context.Context, client *mongo.Client, database string) (*Store, error) {
	db := client.Database(database)
	s := &Store{
		client:     client,
		db:         db,
		templates:  &templateStore{col: db.Collection(templatesCollection)},
		reports:    &reportStore{col: db.Collection(reportsCollection)},
		schedules:  &scheduleStore{col: db.Collection(schedulesCollection)},
		exports:    &exportStore{col: db.Collection(exportsCollection)},
		metrics:    &metricStore{col: db.Collection(metricsCollection)},
		accessLogs: &accessLogStore{col: db.Collection(accessLogsCollection)},
	}
	if err := EnsureIndexes(ctx, db); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Templates() store.TemplateStore   { return s.templates }
func (s *Store) Reports() store.ReportStore       { return s.reports }
func (s *Store) Schedules() store.ScheduleStore   { return s.schedules }
func (s *Store) Exports() store.ExportStore       { return s.exports }
func (s *Store) Metrics() store.MetricStore       { return s.metrics }
func (s *Store) AccessLogs() store.AccessLogStore { return s.accessLogs }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// Database exposes the underlying database, mainly for tests.
func (s *Store) Database() *mongo.Database { return s.db }

// EnsureIndexes creates the indexes needed by the store queries.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		templatesCollection: {
			{Keys: bson.D{{Key: "template_name", Value: 1}}},
			{Keys: bson.D{{Key: "template_type", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		reportsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "report_type", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		schedulesCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_enabled", Value: 1}}},
			{Keys: bson.D{{Key: "next_run_at", Value: 1}, {Key: "is_enabled", Value: 1}}},
		},
		exportsCollection: {
			{Keys: bson.D{{Key: "report_id", Value: 1}, {Key: "export_format", Value: 1}}},
		},
		metricsCollection: {
			{Keys: bson.D{{Key: "report_id", Value: 1}, {Key: "metric_name", Value: 1}}},
			{Keys: bson.D{{Key: "metric_category", Value: 1}, {Key: "recorded_at", Value: -1}}},
		},
		accessLogsCollection: {
			{Keys: bson.D{{Key: "report_id", Value: 1}, {Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "access_type", Value: 1}, {Key: "accessed_at", Value: -1}}},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return store.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	log.Info().Str("database", db.Name()).Msg("Indexes ensured successfully")
	return nil
}

// live restricts a filter to documents that are not soft-deleted.
func live(filter bson.M) bson.M {
	filter["is_deleted"] = false
	return filter
}

func objectID(hex string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(hex)
	return oid, err == nil
}

func insertedHex(res *mongo.InsertOneResult) (string, error) {
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", errors.New("inserted ID is not an ObjectID")
	}
	return oid.Hex(), nil
}

// findOne decodes the live document with the given hex id into out.
func findOne(ctx context.Context, col *mongo.Collection, entity, id string, out any) error {
	oid, ok := objectID(id)
	if !ok {
		return apperr.NotFound(entity, id)
	}
	err := col.FindOne(ctx, live(bson.M{"_id": oid})).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(entity, id)
	}
	if err != nil {
		return store.Errorf("failed to retrieve %s: %w", entity, err)
	}
	return nil
}

// findPage runs a paged, sorted query and returns the total match count.
func findPage(ctx context.Context, col *mongo.Collection, filter bson.M, sort bson.D, page store.Page, out any) (int64, error) {
	page = page.Normalize()
	filter = live(filter)

	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, store.Errorf("failed to count %s: %w", col.Name(), err)
	}
	opts := options.Find().
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit)).
		SetSort(sort)
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return 0, store.Errorf("failed to query %s: %w", col.Name(), err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return 0, store.Errorf("failed to decode %s: %w", col.Name(), err)
	}
	return total, nil
}

// replaceIfRevision writes doc over the document with the given id only if
// its stored revision still equals revision. It reports whether a document
// was replaced.
func replaceIfRevision(ctx context.Context, col *mongo.Collection, id string, revision int64, doc any) (bool, error) {
	oid, ok := objectID(id)
	if !ok {
		return false, nil
	}
	res, err := col.ReplaceOne(ctx, live(bson.M{"_id": oid, "revision": revision}), doc)
	if err != nil {
		return false, store.Errorf("failed to replace %s document: %w", col.Name(), err)
	}
	return res.MatchedCount == 1, nil
}
