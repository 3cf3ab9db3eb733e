package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type accessLogStore struct {
	col *mongo.Collection
}

func (s *accessLogStore) Create(ctx context.Context, l *models.AccessLog) error {
	l.ID = ""
	if l.AccessedAt.IsZero() {
		l.AccessedAt = time.Now().UTC()
	}
	res, err := s.col.InsertOne(ctx, l)
	if err != nil {
		return store.Errorf("failed to insert access log: %w", err)
	}
	l.ID, err = insertedHex(res)
	return err
}

func (s *accessLogStore) ListByReport(ctx context.Context, reportID string, page store.Page) ([]*models.AccessLog, int64, error) {
	var logs []*models.AccessLog
	total, err := findPage(ctx, s.col, bson.M{"report_id": reportID},
		bson.D{{Key: "accessed_at", Value: -1}}, page, &logs)
	return logs, total, err
}

func (s *accessLogStore) ListByUser(ctx context.Context, userID int64, page store.Page) ([]*models.AccessLog, int64, error) {
	var logs []*models.AccessLog
	total, err := findPage(ctx, s.col, bson.M{"user_id": userID},
		bson.D{{Key: "accessed_at", Value: -1}}, page, &logs)
	return logs, total, err
}

func (s *accessLogStore) Stats(ctx context.Context, reportID string) (models.AccessStats, error) {
	stats := models.AccessStats{ByType: map[string]int64{}}
	filter := live(bson.M{"report_id": reportID})

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return models.AccessStats{}, store.Errorf("failed to count access logs: %w", err)
	}
	successful, err := s.col.CountDocuments(ctx, live(bson.M{
		"report_id":     reportID,
		"access_status": models.AccessStatusSuccess,
	}))
	if err != nil {
		return models.AccessStats{}, store.Errorf("failed to count successful accesses: %w", err)
	}
	users, err := s.col.Distinct(ctx, "user_id", filter)
	if err != nil {
		return models.AccessStats{}, store.Errorf("failed to count unique users: %w", err)
	}

	cursor, err := s.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.M{"_id": "$access_type", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return models.AccessStats{}, store.Errorf("failed to group access logs: %w", err)
	}
	defer cursor.Close(ctx)
	var groups []struct {
		Type  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return models.AccessStats{}, store.Errorf("failed to decode access log groups: %w", err)
	}
	for _, g := range groups {
		stats.ByType[g.Type] = g.Count
	}

	stats.TotalAccesses = total
	stats.Successful = successful
	stats.Failed = total - successful
	stats.UniqueUsers = int64(len(users))
	return stats, nil
}
