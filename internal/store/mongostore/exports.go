package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type exportStore struct {
	col *mongo.Collection
}

func (s *exportStore) Create(ctx context.Context, e *models.Export) error {
	e.ID = ""
	e.Revision = 0
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	res, err := s.col.InsertOne(ctx, e)
	if err != nil {
		return store.Errorf("failed to insert export: %w", err)
	}
	e.ID, err = insertedHex(res)
	return err
}

func (s *exportStore) Get(ctx context.Context, id string) (*models.Export, error) {
	var e models.Export
	if err := findOne(ctx, s.col, "export", id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *exportStore) ListByReport(ctx context.Context, reportID string, page store.Page) ([]*models.Export, int64, error) {
	var exports []*models.Export
	total, err := findPage(ctx, s.col, bson.M{"report_id": reportID},
		bson.D{{Key: "created_at", Value: -1}}, page, &exports)
	return exports, total, err
}

func (s *exportStore) Update(ctx context.Context, id string, fn func(*models.Export) error) (*models.Export, error) {
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
