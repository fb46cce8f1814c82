package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
)

// FormStore persists form definitions. The full definition (actions
// included) lives in a JSON document column; id, path and kind are promoted
// to real columns for lookups.
type FormStore struct {
	db DB
}

func NewFormStore(db DB) *FormStore {
	if db == nil {
		return nil
	}
	return &FormStore{db: db}
}

func (s *FormStore) SaveForm(ctx context.Context, form domain.Form) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("form store not initialized")
	}
	if err := form.Validate(); err != nil {
		return err
	}
	form.Created = normalizeTime(form.Created)
	form.Modified = normalizeTime(form.Modified)
	doc, err := encodeDocument(form)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO forms (form_id, name, path, kind, definition, created_at, modified_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (form_id) DO UPDATE SET
			name = EXCLUDED.name,
			path = EXCLUDED.path,
			kind = EXCLUDED.kind,
			definition = EXCLUDED.definition,
			modified_at = EXCLUDED.modified_at`,
		strings.TrimSpace(form.ID),
		strings.TrimSpace(form.Name),
		strings.TrimSpace(form.Path),
		string(form.Kind),
		doc,
		form.Created,
		form.Modified,
	)
	if err != nil {
		return fmt.Errorf("save form: %w", err)
	}
	return nil
}

func (s *FormStore) GetForm(ctx context.Context, id string) (domain.Form, error) {
	if s == nil || s.db == nil {
		return domain.Form{}, fmt.Errorf("form store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Form{}, fmt.Errorf("form id is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT definition FROM forms WHERE form_id = $1`, id)
	return scanForm(row)
}

func (s *FormStore) GetFormByPath(ctx context.Context, path string) (domain.Form, error) {
	if s == nil || s.db == nil {
		return domain.Form{}, fmt.Errorf("form store not initialized")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Form{}, fmt.Errorf("form path is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT definition FROM forms WHERE path = $1`, path)
	return scanForm(row)
}

func (s *FormStore) ListForms(ctx context.Context, filter repo.FormFilter) ([]domain.Form, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("form store not initialized")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query := `SELECT definition FROM forms`
	args := []any{}
	if filter.Kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, string(filter.Kind))
	}
	query += fmt.Sprintf(` ORDER BY path LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var forms []domain.Form
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		var form domain.Form
		if err := decodeDocument(doc, &form); err != nil {
			return nil, fmt.Errorf("decode form: %w", err)
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return forms, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForm(row rowScanner) (domain.Form, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return domain.Form{}, handleNotFound(err)
	}
	var form domain.Form
	if err := decodeDocument(doc, &form); err != nil {
		return domain.Form{}, fmt.Errorf("decode form: %w", err)
	}
	return form, nil
}
