package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const scheduleColumns = `id, user_id, template_id, schedule_name, frequency, time_of_day, timezone,
	is_enabled, next_run_at, last_run_at, run_count, success_count, failure_count, recipients,
	delivery_method, webhook_url, include_file, revision, created_at, updated_at`

type scheduleStore struct {
	db *sql.DB
}

func (s *scheduleStore) Create(ctx context.Context, sc *models.Schedule) error {
	if sc.ID == "" {
		sc.ID = newID()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = sc.CreatedAt
	}
	sc.Revision = 0
	args, err := scheduleArgs(sc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO report_schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return store.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *scheduleStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	return getSchedule(ctx, s.db, id)
}

func (s *scheduleStore) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM report_schedules
		WHERE is_enabled = 1 AND is_deleted = 0 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, toNanos(now))
	if err != nil {
		return nil, store.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*models.Schedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, nil
}

func (s *scheduleStore) ListByUser(ctx context.Context, userID int64, page store.Page) ([]*models.Schedule, int64, error) {
	page = page.Normalize()
	total, err := countRows(ctx, s.db, `SELECT COUNT(*) FROM report_schedules
		WHERE user_id = ? AND is_deleted = 0`, userID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM report_schedules
		WHERE user_id = ? AND is_deleted = 0 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, store.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*models.Schedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, total, nil
}

// Mutate reads the row, applies fn and writes it back only if no other
// writer bumped the revision in between.
func (s *scheduleStore) Mutate(ctx context.Context, id string, fn func(*models.Schedule) error) (*models.Schedule, error) {
	for attempt := 0; attempt < store.MaxMutateAttempts; attempt++ {
		var (
			result  *models.Schedule
			applied bool
		)
		err := inTx(ctx, s.db, func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM report_schedules
				WHERE id = ? AND is_deleted = 0`, id)
			current, err := scanSchedule(row)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("schedule", id)
			}
			if err != nil {
				return err
			}
			revision := current.Revision
			if err := fn(current); err != nil {
				return err
			}
			current.ID = id
			current.Revision = revision + 1

			args, err := scheduleArgs(current)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `UPDATE report_schedules SET
				user_id = ?, template_id = ?, schedule_name = ?, frequency = ?, time_of_day = ?,
				timezone = ?, is_enabled = ?, next_run_at = ?, last_run_at = ?, run_count = ?,
				success_count = ?, failure_count = ?, recipients = ?, delivery_method = ?,
				webhook_url = ?, include_file = ?, revision = ?, created_at = ?, updated_at = ?
				WHERE id = ? AND revision = ? AND is_deleted = 0`,
				append(args[1:], id, revision)...)
			if err != nil {
				return store.Errorf("failed to update schedule: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				applied = true
				result = current
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if applied {
			return result, nil
		}
	}
	return nil, store.ErrConflict
}

func (s *scheduleStore) SetNextRun(ctx context.Context, id string, next time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE report_schedules
		SET next_run_at = ?, updated_at = ?, revision = revision + 1
		WHERE id = ? AND is_deleted = 0`, toNanos(next), toNanos(time.Now()), id)
	if err != nil {
		return store.Errorf("failed to set next run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("schedule", id)
	}
	return nil
}

func (s *scheduleStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE report_schedules
		SET is_deleted = 1, deleted_at = ?, updated_at = ?, revision = revision + 1
		WHERE id = ? AND is_deleted = 0`, toNanos(at), toNanos(at), id)
	if err != nil {
		return store.Errorf("failed to delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("schedule", id)
	}
	return nil
}

func getSchedule(ctx context.Context, db *sql.DB, id string) (*models.Schedule, error) {
	row := db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM report_schedules
		WHERE id = ? AND is_deleted = 0`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("schedule", id)
	}
	return sc, err
}

func scheduleArgs(sc *models.Schedule) ([]any, error) {
	recipients, err := encodeJSON(sc.Recipients)
	if err != nil {
		return nil, store.Errorf("failed to encode recipients: %w", err)
	}
	return []any{
		sc.ID, sc.UserID, sc.TemplateID, sc.Name, sc.Frequency, sc.TimeOfDay, sc.Timezone,
		boolInt(sc.Enabled), nullNanos(sc.NextRunAt), nullNanos(sc.LastRunAt), sc.RunCount,
		sc.SuccessCount, sc.FailureCount, recipients, nullString(sc.DeliveryMethod),
		nullString(sc.WebhookURL), boolInt(sc.IncludeFile), sc.Revision,
		toNanos(sc.CreatedAt), toNanos(sc.UpdatedAt),
	}, nil
}

func scanSchedule(row scanner) (*models.Schedule, error) {
	var (
		sc                   models.Schedule
		enabled, include     int
		nextRun, lastRun     sql.NullInt64
		recipients           sql.NullString
		delivery, webhook    sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&sc.ID, &sc.UserID, &sc.TemplateID, &sc.Name, &sc.Frequency, &sc.TimeOfDay,
		&sc.Timezone, &enabled, &nextRun, &lastRun, &sc.RunCount, &sc.SuccessCount, &sc.FailureCount,
		&recipients, &delivery, &webhook, &include, &sc.Revision, &createdAt, &updatedAt)
	if err != nil {
		return nil, store.Errorf("failed to scan schedule: %w", err)
	}
	sc.Enabled = enabled == 1
	sc.IncludeFile = include == 1
	sc.NextRunAt = timePtr(nextRun)
	sc.LastRunAt = timePtr(lastRun)
	if err := decodeJSON(recipients, &sc.Recipients); err != nil {
		return nil, store.Errorf("failed to decode recipients: %w", err)
	}
	sc.DeliveryMethod = delivery.String
	sc.WebhookURL = webhook.String
	sc.CreatedAt = fromNanos(createdAt)
	sc.UpdatedAt = fromNanos(updatedAt)
	return &sc, nil
}
