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

const exportColumns = `id, report_id, export_format, file_path, file_size, file_hash, export_status,
	exported_at, download_count, last_downloaded_at, compression_type, error_message, revision,
	created_at, updated_at`

type exportStore struct {
	db *sql.DB
}

func (s *exportStore) Create(ctx context.Context, e *models.Export) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	e.Revision = 0
	_, err := s.db.ExecContext(ctx, `INSERT INTO report_exports (`+exportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, exportArgs(e)...)
	if err != nil {
		return store.Errorf("failed to insert export: %w", err)
	}
	return nil
}

func (s *exportStore) Get(ctx context.Context, id string) (*models.Export, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM report_exports
		WHERE id = ? AND is_deleted = 0`, id)
	e, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("export", id)
	}
	return e, err
}

func (s *exportStore) ListByReport(ctx context.Context, reportID string, page store.Page) ([]*models.Export, int64, error) {
	page = page.Normalize()
	total, err := countRows(ctx, s.db, `SELECT COUNT(*) FROM report_exports
		WHERE report_id = ? AND is_deleted = 0`, reportID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+exportColumns+` FROM report_exports
		WHERE report_id = ? AND is_deleted = 0 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		reportID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, store.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	exports := []*models.Export{}
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, 0, err
		}
		exports = append(exports, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.Errorf("failed to iterate exports: %w", err)
	}
	return exports, total, nil
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
		current.ID = id
		current.Revision = revision + 1

		args := exportArgs(current)
		res, err := s.db.ExecContext(ctx, `UPDATE report_exports SET
			report_id = ?, export_format = ?, file_path = ?, file_size = ?, file_hash = ?,
			export_status = ?, exported_at = ?, download_count = ?, last_downloaded_at = ?,
			compression_type = ?, error_message = ?, revision = ?, created_at = ?, updated_at = ?
			WHERE id = ? AND revision = ? AND is_deleted = 0`,
			append(args[1:], id, revision)...)
		if err != nil {
			return nil, store.Errorf("failed to update export: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return current, nil
		}
	}
	return nil, store.ErrConflict
}

func exportArgs(e *models.Export) []any {
	return []any{
		e.ID, e.ReportID, e.Format, e.FilePath, e.FileSize, nullString(e.FileHash), e.Status,
		nullNanos(e.ExportedAt), e.DownloadCount, nullNanos(e.LastDownloadedAt),
		nullString(e.CompressionType), nullString(e.ErrorMessage), e.Revision,
		toNanos(e.CreatedAt), toNanos(e.UpdatedAt),
	}
}

func scanExport(row scanner) (*models.Export, error) {
	var (
		e                          models.Export
		fileSize                   sql.NullInt64
		fileHash, compress, errMsg sql.NullString
		exportedAt, lastDownload   sql.NullInt64
		createdAt, updatedAt       int64
	)
	err := row.Scan(&e.ID, &e.ReportID, &e.Format, &e.FilePath, &fileSize, &fileHash, &e.Status,
		&exportedAt, &e.DownloadCount, &lastDownload, &compress, &errMsg, &e.Revision,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, store.Errorf("failed to scan export: %w", err)
	}
	e.FileSize = fileSize.Int64
	e.FileHash = fileHash.String
	e.ExportedAt = timePtr(exportedAt)
	e.LastDownloadedAt = timePtr(lastDownload)
	e.CompressionType = compress.String
	e.ErrorMessage = errMsg.String
	e.CreatedAt = fromNanos(createdAt)
	e.UpdatedAt = fromNanos(updatedAt)
	return &e, nil
}
