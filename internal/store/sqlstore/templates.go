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

const templateColumns = `id, template_name, template_type, description, sections, export_formats,
	is_default, is_active, created_at, updated_at`

type templateStore struct {
	db *sql.DB
}

func (s *templateStore) Create(ctx context.Context, t *models.Template) error {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	sections, err := encodeJSON(t.Sections)
	if err != nil {
		return store.Errorf("failed to encode sections: %w", err)
	}
	formats, err := encodeJSON(t.ExportFormats)
	if err != nil {
		return store.Errorf("failed to encode export formats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO report_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Type, nullString(t.Description), sections, formats,
		boolInt(t.IsDefault), boolInt(t.IsActive), toNanos(t.CreatedAt), toNanos(t.UpdatedAt))
	if err != nil {
		return store.Errorf("failed to insert template: %w", err)
	}
	return nil
}

func (s *templateStore) Get(ctx context.Context, id string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM report_templates
		WHERE id = ? AND is_deleted = 0`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("template", id)
	}
	return t, err
}

func (s *templateStore) FindByName(ctx context.Context, name string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM report_templates
		WHERE template_name = ? AND is_deleted = 0`, name)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("template", name)
	}
	return t, err
}

func (s *templateStore) ListByType(ctx context.Context, templateType string, page store.Page) ([]*models.Template, int64, error) {
	return s.list(ctx, `template_type = ? AND is_active = 1 AND is_deleted = 0`, page, templateType)
}

func (s *templateStore) ListActive(ctx context.Context, page store.Page) ([]*models.Template, int64, error) {
	return s.list(ctx, `is_active = 1 AND is_deleted = 0`, page)
}

func (s *templateStore) list(ctx context.Context, where string, page store.Page, args ...any) ([]*models.Template, int64, error) {
	page = page.Normalize()
	total, err := countRows(ctx, s.db, `SELECT COUNT(*) FROM report_templates WHERE `+where, args...)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM report_templates
		WHERE `+where+` ORDER BY template_name LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, store.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := []*models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.Errorf("failed to iterate templates: %w", err)
	}
	return templates, total, nil
}

func scanTemplate(row scanner) (*models.Template, error) {
	var (
		t                    models.Template
		description          sql.NullString
		sections, formats    sql.NullString
		isDefault, isActive  int
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Type, &description, &sections, &formats,
		&isDefault, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, store.Errorf("failed to scan template: %w", err)
	}
	t.Description = description.String
	if err := decodeJSON(sections, &t.Sections); err != nil {
		return nil, store.Errorf("failed to decode sections: %w", err)
	}
	if err := decodeJSON(formats, &t.ExportFormats); err != nil {
		return nil, store.Errorf("failed to decode export formats: %w", err)
	}
	t.IsDefault = isDefault == 1
	t.IsActive = isActive == 1
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	return &t, nil
}
