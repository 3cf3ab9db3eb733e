package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type reportStore struct {
	col *mongo.Collection
}

func (s *reportStore) Create(ctx context.Context, r *models.Report) error {
	r.ID = ""
	r.Revision = 0
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	res, err := s.col.InsertOne(ctx, r)
	if err != nil {
		return store.Errorf("failed to insert report: %w", err)
	}
	r.ID, err = insertedHex(res)
	return err
}

func (s *reportStore) Get(ctx context.Context, id string) (*models.Report, error) {
	var r models.Report
	if err := findOne(ctx, s.col, "report", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *reportStore) ListByUser(ctx context.Context, userID int64, status string, page store.Page) ([]*models.Report, int64, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}
	var reports []*models.Report
	total, err := findPage(ctx, s.col, filter, bson.D{{Key: "created_at", Value: -1}}, page, &reports)
	return reports, total, err
}

func (s *reportStore) Update(ctx context.Context, id string, fn func(*models.Report) error) (*models.Report, error) {
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
