package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type metricStore struct {
	col *mongo.Collection
}

// Append inserts the observations with a single ordered InsertMany.
func (s *metricStore) Append(ctx context.Context, metrics ...*models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	docs := make([]any, 0, len(metrics))
	oids := make([]primitive.ObjectID, 0, len(metrics))
	for _, m := range metrics {
		if m.RecordedAt.IsZero() {
			m.RecordedAt = time.Now().UTC()
		}
		oid := primitive.NewObjectID()
		docs = append(docs, bson.M{
			"_id":             oid,
			"report_id":       m.ReportID,
			"metric_name":     m.Name,
			"metric_value":    m.Value,
			"metric_unit":     m.Unit,
			"metric_category": m.Category,
			"recorded_at":     m.RecordedAt,
			"is_deleted":      false,
		})
		oids = append(oids, oid)
	}
	if _, err := s.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return store.Errorf("failed to insert metrics: %w", err)
	}
	for i, m := range metrics {
		m.ID = oids[i].Hex()
	}
	return nil
}

func (s *metricStore) ListByReport(ctx context.Context, reportID string, page store.Page) ([]*models.Metric, int64, error) {
	var metrics []*models.Metric
	total, err := findPage(ctx, s.col, bson.M{"report_id": reportID},
		bson.D{{Key: "recorded_at", Value: -1}}, page, &metrics)
	return metrics, total, err
}

func (s *metricStore) ListByCategory(ctx context.Context, category string, page store.Page) ([]*models.Metric, int64, error) {
	var metrics []*models.Metric
	total, err := findPage(ctx, s.col, bson.M{"metric_category": category},
		bson.D{{Key: "recorded_at", Value: -1}}, page, &metrics)
	return metrics, total, err
}

func (s *metricStore) Summarize(ctx context.Context, name string, since time.Time) (models.MetricSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: live(bson.M{
			"metric_name": name,
			"recorded_at": bson.M{"$gte": since},
		})}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"average": bson.M{"$avg": "$metric_value"},
			"count":   bson.M{"$sum": 1},
			"min":     bson.M{"$min": "$metric_value"},
			"max":     bson.M{"$max": "$metric_value"},
		}}},
	}
	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return models.MetricSummary{}, store.Errorf("failed to summarize metric: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []models.MetricSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return models.MetricSummary{}, store.Errorf("failed to decode metric summary: %w", err)
	}
	if len(summaries) == 0 {
		return models.MetricSummary{}, nil
	}
	return summaries[0], nil
}
