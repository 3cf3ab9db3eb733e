package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type templateStore struct {
	col *mongo.Collection
}

func (s *templateStore) Create(ctx context.Context, t *models.Template) error {
	// Let MongoDB generate the id
	t.ID = ""
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	res, err := s.col.InsertOne(ctx, t)
	if err != nil {
		return store.Errorf("failed to insert template: %w", err)
	}
	t.ID, err = insertedHex(res)
	return err
}

func (s *templateStore) Get(ctx context.Context, id string) (*models.Template, error) {
	var t models.Template
	if err := findOne(ctx, s.col, "template", id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *templateStore) FindByName(ctx context.Context, name string) (*models.Template, error) {
	var t models.Template
	err := s.col.FindOne(ctx, live(bson.M{"template_name": name})).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("template", name)
	}
	if err != nil {
		return nil, store.Errorf("failed to retrieve template: %w", err)
	}
	return &t, nil
}

func (s *templateStore) ListByType(ctx context.Context, templateType string, page store.Page) ([]*models.Template, int64, error) {
	var templates []*models.Template
	total, err := findPage(ctx, s.col, bson.M{"template_type": templateType, "is_active": true},
		bson.D{{Key: "template_name", Value: 1}}, page, &templates)
	return templates, total, err
}

func (s *templateStore) ListActive(ctx context.Context, page store.Page) ([]*models.Template, int64, error) {
	var templates []*models.Template
	total, err := findPage(ctx, s.col, bson.M{"is_active": true},
		bson.D{{Key: "template_name", Value: 1}}, page, &templates)
	return templates, total, err
}
