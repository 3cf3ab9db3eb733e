package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const metricColumns = `id, report_id, metric_name, metric_value, metric_unit, metric_category, recorded_at`

type metricStore struct {
	db *sql.DB
}

func (s *metricStore) Append(ctx context.Context, metrics ...*models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO report_metrics (`+metricColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return store.Errorf("failed to prepare metric insert: %w", err)
		}
		defer stmt.Close()

		for _, m := range metrics {
			if m.ID == "" {
				m.ID = newID()
			}
			if m.RecordedAt.IsZero() {
				m.RecordedAt = time.Now().UTC()
			}
			_, err := stmt.ExecContext(ctx, m.ID, m.ReportID, m.Name, m.Value,
				nullString(m.Unit), nullString(m.Category), toNanos(m.RecordedAt))
			if err != nil {
				return store.Errorf("failed to insert metric %s: %w", m.Name, err)
			}
		}
		return nil
	})
}

func (s *metricStore) ListByReport(ctx context.Context, reportID string, page store.Page) ([]*models.Metric, int64, error) {
	return s.list(ctx, `report_id = ? AND is_deleted = 0`, page, reportID)
}

func (s *metricStore) ListByCategory(ctx context.Context, category string, page store.Page) ([]*models.Metric, int64, error) {
	return s.list(ctx, `metric_category = ? AND is_deleted = 0`, page, category)
}

func (s *metricStore) Summarize(ctx context.Context, name string, since time.Time) (models.MetricSummary, error) {
	var (
		summary     models.MetricSummary
		avg, lo, hi sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `SELECT AVG(metric_value), COUNT(*), MIN(metric_value), MAX(metric_value)
		FROM report_metrics WHERE metric_name = ? AND recorded_at >= ? AND is_deleted = 0`,
		name, toNanos(since)).Scan(&avg, &summary.Count, &lo, &hi)
	if err != nil {
		return models.MetricSummary{}, store.Errorf("failed to summarize metric: %w", err)
	}
	summary.Average = avg.Float64
	summary.Min = lo.Float64
	summary.Max = hi.Float64
	return summary, nil
}

func (s *metricStore) list(ctx context.Context, where string, page store.Page, args ...any) ([]*models.Metric, int64, error) {
	page = page.Normalize()
	total, err := countRows(ctx, s.db, `SELECT COUNT(*) FROM report_metrics WHERE `+where, args...)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+metricColumns+` FROM report_metrics
		WHERE `+where+` ORDER BY recorded_at DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, store.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	metrics := []*models.Metric{}
	for rows.Next() {
		var (
			m              models.Metric
			unit, category sql.NullString
			recordedAt     int64
		)
		if err := rows.Scan(&m.ID, &m.ReportID, &m.Name, &m.Value, &unit, &category, &recordedAt); err != nil {
			return nil, 0, store.Errorf("failed to scan metric: %w", err)
		}
		m.Unit = unit.String
		m.Category = category.String
		m.RecordedAt = fromNanos(recordedAt)
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.Errorf("failed to iterate metrics: %w", err)
	}
	return metrics, total, nil
}
