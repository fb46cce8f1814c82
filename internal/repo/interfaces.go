package repo

import (
	"context"
	"errors"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

// ErrNotFound is returned when a form or submission does not exist.
var ErrNotFound = errors.New("not found")

type FormFilter struct {
	Kind  domain.FormKind
	Limit int
}

// FormRepository manages form and resource definitions.
type FormRepository interface {
	SaveForm(ctx context.Context, form domain.Form) error
	GetForm(ctx context.Context, id string) (domain.Form, error)
	GetFormByPath(ctx context.Context, path string) (domain.Form, error)
	ListForms(ctx context.Context, filter FormFilter) ([]domain.Form, error)
}

// SubmissionRepository manages submissions per form.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, submission domain.Submission) error
	GetSubmission(ctx context.Context, formID, id string) (domain.Submission, error)
	UpdateSubmission(ctx context.Context, submission domain.Submission) error
}
