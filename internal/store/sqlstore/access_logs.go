package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const accessLogColumns = `id, report_id, user_id, access_type, ip_address, user_agent, access_status,
	error_message, access_duration_seconds, accessed_at`

type accessLogStore struct {
	db *sql.DB
}

func (s *accessLogStore) Create(ctx context.Context, l *models.AccessLog) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.AccessedAt.IsZero() {
		l.AccessedAt = time.Now().UTC()
	}
	var duration sql.NullInt64
	if l.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: *l.DurationSeconds, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO report_access_logs (`+accessLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ReportID, l.UserID, l.AccessType, nullString(l.IPAddress), nullString(l.UserAgent),
		nullString(l.AccessStatus), nullString(l.ErrorMessage), duration, toNanos(l.AccessedAt))
	if err != nil {
		return store.Errorf("failed to insert access log: %w", err)
	}
	return nil
}

func (s *accessLogStore) ListByReport(ctx context.Context, reportID string, page store.Page) ([]*models.AccessLog, int64, error) {
	return s.list(ctx, `report_id = ? AND is_deleted = 0`, page, reportID)
}

func (s *accessLogStore) ListByUser(ctx context.Context, userID int64, page store.Page) ([]*models.AccessLog, int64, error) {
	return s.list(ctx, `user_id = ? AND is_deleted = 0`, page, userID)
}

func (s *accessLogStore) Stats(ctx context.Context, reportID string) (models.AccessStats, error) {
	stats := models.AccessStats{ByType: map[string]int64{}}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN access_status = ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT user_id)
		FROM report_access_logs WHERE report_id = ? AND is_deleted = 0`,
		models.AccessStatusSuccess, reportID).Scan(&stats.TotalAccesses, &stats.Successful, &stats.UniqueUsers)
	if err != nil {
		return models.AccessStats{}, store.Errorf("failed to compute access stats: %w", err)
	}
	stats.Failed = stats.TotalAccesses - stats.Successful

	rows, err := s.db.QueryContext(ctx, `SELECT access_type, COUNT(*) FROM report_access_logs
		WHERE report_id = ? AND is_deleted = 0 GROUP BY access_type`, reportID)
	if err != nil {
		return models.AccessStats{}, store.Errorf("failed to group access logs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			accessType string
			count      int64
		)
		if err := rows.Scan(&accessType, &count); err != nil {
			return models.AccessStats{}, store.Errorf("failed to scan access stats: %w", err)
		}
		stats.ByType[accessType] = count
	}
	if err := rows.Err(); err != nil {
		return models.AccessStats{}, store.Errorf("failed to iterate access logs: %w", err)
	}
	return stats, nil
}

func (s *accessLogStore) list(ctx context.Context, where string, page store.Page, args ...any) ([]*models.AccessLog, int64, error) {
	page = page.Normalize()
	total, err := countRows(ctx, s.db, `SELECT COUNT(*) FROM report_access_logs WHERE `+where, args...)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+accessLogColumns+` FROM report_access_logs
		WHERE `+where+` ORDER BY accessed_at DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, store.Errorf("failed to query access logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.AccessLog{}
	for rows.Next() {
		var (
			l              models.AccessLog
			ip, agent      sql.NullString
			status, errMsg sql.NullString
			duration       sql.NullInt64
			accessedAt     int64
		)
		err := rows.Scan(&l.ID, &l.ReportID, &l.UserID, &l.AccessType, &ip, &agent, &status,
			&errMsg, &duration, &accessedAt)
		if err != nil {
			return nil, 0, store.Errorf("failed to scan access log: %w", err)
		}
		l.IPAddress = ip.String
		l.UserAgent = agent.String
		l.AccessStatus = status.String
		l.ErrorMessage = errMsg.String
		if duration.Valid {
			d := duration.Int64
			l.DurationSeconds = &d
		}
		l.AccessedAt = fromNanos(accessedAt)
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.Errorf("failed to iterate access logs: %w", err)
	}
	return logs, total, nil
}
