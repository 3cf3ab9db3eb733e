package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type scheduleStore struct {
	col *mongo.Collection
}

func (s *scheduleStore) Create(ctx context.Context, sc *models.Schedule) error {
	sc.ID = ""
	sc.Revision = 0
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = sc.CreatedAt
	}
	res, err := s.col.InsertOne(ctx, sc)
	if err != nil {
		return store.Errorf("failed to insert schedule: %w", err)
	}
	sc.ID, err = insertedHex(res)
	return err
}

func (s *scheduleStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	var sc models.Schedule
	if err := findOne(ctx, s.col, "schedule", id, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *scheduleStore) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	filter := live(bson.M{
		"is_enabled":  true,
		"next_run_at": bson.M{"$lte": now},
	})
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "next_run_at", Value: 1}}))
	if err != nil {
		return nil, store.Errorf("failed to query due schedules: %w", err)
	}
	defer cursor.Close(ctx)

	schedules := []*models.Schedule{}
	if err := cursor.All(ctx, &schedules); err != nil {
		return nil, store.Errorf("failed to decode due schedules: %w", err)
	}
	return schedules, nil
}

func (s *scheduleStore) ListByUser(ctx context.Context, userID int64, page store.Page) ([]*models.Schedule, int64, error) {
	var schedules []*models.Schedule
	total, err := findPage(ctx, s.col, bson.M{"user_id": userID},
		bson.D{{Key: "created_at", Value: -1}}, page, &schedules)
	return schedules, total, err
}

func (s *scheduleStore) Mutate(ctx context.Context, id string, fn func(*models.Schedule) error) (*models.Schedule, error) {
	for attempt := 0; attempt < store.MaxMutateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		revision := current.Revision
		if err := fn(current); err != nil {
			return nil, err
		}
		current.Revision = revision + 1

		doc := *current
		doc.ID = ""
		replaced, err := replaceIfRevision(ctx, s.col, id, revision, &doc)
		if err != nil {
			return nil, err
		}
		if replaced {
			current.ID = id
			return current, nil
		}
	}
	return nil, store.ErrConflict
}

func (s *scheduleStore) SetNextRun(ctx context.Context, id string, next time.Time) error {
	return s.set(ctx, id, bson.M{"next_run_at": next, "updated_at": time.Now().UTC()})
}

func (s *scheduleStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return s.set(ctx, id, bson.M{"is_deleted": true, "deleted_at": at, "updated_at": at})
}

func (s *scheduleStore) set(ctx context.Context, id string, fields bson.M) error {
	oid, ok := objectID(id)
	if !ok {
		return apperr.NotFound("schedule", id)
	}
	update := bson.M{"$set": fields, "$inc": bson.M{"revision": 1}}
	res, err := s.col.UpdateOne(ctx, live(bson.M{"_id": oid}), update, options.Update().SetUpsert(false))
	if err != nil {
		return store.Errorf("failed to update schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("schedule", id)
	}
	return nil
}
