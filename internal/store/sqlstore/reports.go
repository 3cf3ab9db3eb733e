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

const reportColumns = `id, user_id, template_id, report_name, report_type, date_range_start, date_range_end,
	status, progress_percent, total_records, rows_generated, generated_at, generated_by, file_path,
	file_size, export_formats, filters, error_message, generation_time_seconds, revision,
	created_at, updated_at`

type reportStore struct {
	db *sql.DB
}

func (s *reportStore) Create(ctx context.Context, r *models.Report) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	r.Revision = 0
	args, err := reportArgs(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return store.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *reportStore) Get(ctx context.Context, id string) (*models.Report, error) {
	return getReport(ctx, s.db, id)
}

func (s *reportStore) ListByUser(ctx context.Context, userID int64, status string, page store.Page) ([]*models.Report, int64, error) {
	page = page.Normalize()
	where := `user_id = ? AND is_deleted = 0`
	args := []any{userID}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}

	total, err := countRows(ctx, s.db, `SELECT COUNT(*) FROM reports WHERE `+where, args...)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports
		WHERE `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, store.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.Errorf("failed to iterate reports: %w", err)
	}
	return reports, total, nil
}

func (s *reportStore) Update(ctx context.Context, id string, fn func(*models.Report) error) (*models.Report, error) {
	for attempt := 0; attempt < store.MaxMutateAttempts; attempt++ {
		current, err := getReport(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		revision := current.Revision
		if err := fn(current); err != nil {
			return nil, err
		}
		current.ID = id
		current.Revision = revision + 1

		args, err := reportArgs(current)
		if err != nil {
			return nil, err
		}
		res, err := s.db.ExecContext(ctx, `UPDATE reports SET
			user_id = ?, template_id = ?, report_name = ?, report_type = ?, date_range_start = ?,
			date_range_end = ?, status = ?, progress_percent = ?, total_records = ?, rows_generated = ?,
			generated_at = ?, generated_by = ?, file_path = ?, file_size = ?, export_formats = ?,
			filters = ?, error_message = ?, generation_time_seconds = ?, revision = ?,
			created_at = ?, updated_at = ?
			WHERE id = ? AND revision = ? AND is_deleted = 0`,
			append(args[1:], id, revision)...)
		if err != nil {
			return nil, store.Errorf("failed to update report: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return current, nil
		}
	}
	return nil, store.ErrConflict
}

func getReport(ctx context.Context, db *sql.DB, id string) (*models.Report, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports
		WHERE id = ? AND is_deleted = 0`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("report", id)
	}
	return r, err
}

// reportArgs returns column values in reportColumns order.
func reportArgs(r *models.Report) ([]any, error) {
	formats, err := encodeJSON(r.ExportFormats)
	if err != nil {
		return nil, store.Errorf("failed to encode export formats: %w", err)
	}
	filters, err := encodeJSON(r.Filters)
	if err != nil {
		return nil, store.Errorf("failed to encode filters: %w", err)
	}
	return []any{
		r.ID, r.UserID, r.TemplateID, r.Name, r.Type, toNanos(r.DateRangeStart), toNanos(r.DateRangeEnd),
		r.Status, r.ProgressPercent, r.TotalRecords, r.RowsGenerated, nullNanos(r.GeneratedAt),
		nullString(r.GeneratedBy), nullString(r.FilePath), r.FileSize, formats, filters,
		nullString(r.ErrorMessage), r.GenerationTimeSeconds, r.Revision,
		toNanos(r.CreatedAt), toNanos(r.UpdatedAt),
	}, nil
}

func scanReport(row scanner) (*models.Report, error) {
	var (
		r                             models.Report
		rangeStart, rangeEnd          int64
		generatedAt                   sql.NullInt64
		generatedBy, filePath, errMsg sql.NullString
		fileSize                      sql.NullInt64
		formats, filters              sql.NullString
		genSeconds                    sql.NullFloat64
		createdAt, updatedAt          int64
	)
	err := row.Scan(&r.ID, &r.UserID, &r.TemplateID, &r.Name, &r.Type, &rangeStart, &rangeEnd,
		&r.Status, &r.ProgressPercent, &r.TotalRecords, &r.RowsGenerated, &generatedAt, &generatedBy,
		&filePath, &fileSize, &formats, &filters, &errMsg, &genSeconds, &r.Revision,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, store.Errorf("failed to scan report: %w", err)
	}
	r.DateRangeStart = fromNanos(rangeStart)
	r.DateRangeEnd = fromNanos(rangeEnd)
	r.GeneratedAt = timePtr(generatedAt)
	r.GeneratedBy = generatedBy.String
	r.FilePath = filePath.String
	r.FileSize = fileSize.Int64
	if err := decodeJSON(formats, &r.ExportFormats); err != nil {
		return nil, store.Errorf("failed to decode export formats: %w", err)
	}
	if err := decodeJSON(filters, &r.Filters); err != nil {
		return nil, store.Errorf("failed to decode filters: %w", err)
	}
	r.ErrorMessage = errMsg.String
	r.GenerationTimeSeconds = genSeconds.Float64
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return &r, nil
}
