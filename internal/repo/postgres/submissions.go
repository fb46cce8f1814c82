package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
)

// SubmissionStore persists submissions keyed by (form_id, submission_id).
// The full submission is a JSON document column so the nested data tree,
// roles and external ids round-trip without a relational mapping.
type SubmissionStore struct {
	db DB
}

func NewSubmissionStore(db DB) *SubmissionStore {
	if db == nil {
		return nil
	}
	return &SubmissionStore{db: db}
}

func (s *SubmissionStore) CreateSubmission(ctx context.Context, submission domain.Submission) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("submission store not initialized")
	}
	if err := submission.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(submission.ID) == "" {
		return fmt.Errorf("submission id is required")
	}
	submission.Created = normalizeTime(submission.Created)
	submission.Modified = normalizeTime(submission.Modified)
	doc, err := encodeDocument(submission)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO submissions (submission_id, form_id, document, created_at, modified_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		strings.TrimSpace(submission.ID),
		strings.TrimSpace(submission.FormID),
		doc,
		submission.Created,
		submission.Modified,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *SubmissionStore) GetSubmission(ctx context.Context, formID, id string) (domain.Submission, error) {
	if s == nil || s.db == nil {
		return domain.Submission{}, fmt.Errorf("submission store not initialized")
	}
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return domain.Submission{}, fmt.Errorf("form id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Submission{}, fmt.Errorf("submission id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT document FROM submissions WHERE form_id = $1 AND submission_id = $2`,
		formID,
		id,
	)
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return domain.Submission{}, handleNotFound(err)
	}
	var submission domain.Submission
	if err := decodeDocument(doc, &submission); err != nil {
		return domain.Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return submission, nil
}

func (s *SubmissionStore) UpdateSubmission(ctx context.Context, submission domain.Submission) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("submission store not initialized")
	}
	if err := submission.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(submission.ID) == "" {
		return fmt.Errorf("submission id is required")
	}
	submission.Modified = normalizeTime(submission.Modified)
	doc, err := encodeDocument(submission)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE submissions SET document = $3, modified_at = $4
		 WHERE form_id = $1 AND submission_id = $2`,
		strings.TrimSpace(submission.FormID),
		strings.TrimSpace(submission.ID),
		doc,
		submission.Modified,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("submission %s in form %s: %w", submission.ID, submission.FormID, repo.ErrNotFound)
	}
	return nil
}
