// Package submissions implements the generic submission save handlers. The
// same handler serves externally issued saves and derived saves dispatched
// by actions, so a derived save behaves exactly like an external one,
// including running the target form's own actions.
package submissions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/formbridge-labs/formbridge-go/internal/action"
	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/platform/auditlog"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
)

// Archiver copies saved submissions to long-term storage. Optional; a nil
// archiver disables archiving.
type Archiver interface {
	ArchiveSubmission(ctx context.Context, submission domain.Submission) error
}

type Service struct {
	logger      *slog.Logger
	forms       repo.FormRepository
	submissions repo.SubmissionRepository
	runner      *action.Runner

	auditDB auditlog.QueryRower
	archive Archiver

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithAudit(db auditlog.QueryRower) Option {
	return func(s *Service) { s.auditDB = db }
}

func WithArchiver(archive Archiver) Option {
	return func(s *Service) { s.archive = archive }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(logger *slog.Logger, forms repo.FormRepository, subs repo.SubmissionRepository, runner *action.Runner, opts ...Option) *Service {
	if logger == nil || forms == nil || subs == nil || runner == nil {
		return nil
	}
	s := &Service{
		logger:      logger,
		forms:       forms,
		submissions: subs,
		runner:      runner,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandlers wires the service into the save-handler registry for
// both form kinds. Done once at startup.
func (s *Service) RegisterHandlers(registry *action.Registry) error {
	for _, kind := range []domain.FormKind{domain.FormKindForm, domain.FormKindResource} {
		if err := registry.Register(kind, action.OpCreate, s.Create); err != nil {
			return err
		}
		if err := registry.Register(kind, action.OpUpdate, s.Update); err != nil {
			return err
		}
		if err := registry.Register(kind, action.OpPatch, s.Update); err != nil {
			return err
		}
	}
	return nil
}

// Create runs the form's actions against the incoming submission and
// persists the result.
func (s *Service) Create(ctx context.Context, req *action.Request) (*domain.Submission, error) {
	form, err := s.forms.GetForm(ctx, req.FormID)
	if err != nil {
		return nil, fmt.Errorf("load form %s: %w", req.FormID, err)
	}

	submission := req.Submission
	if submission == nil {
		submission = &domain.Submission{}
	}
	submission.ID = ""
	submission.FormID = form.ID
	if submission.Data == nil {
		submission.Data = map[string]any{}
	}
	if submission.Owner == "" {
		submission.Owner = req.Identity.Subject
	}

	if err := s.runner.Run(ctx, form, req, submission); err != nil {
		return nil, err
	}
	if req.SkipSave {
		return submission, nil
	}

	now := s.now()
	submission.ID = s.newID()
	submission.Created = now
	submission.Modified = now
	if err := s.submissions.CreateSubmission(ctx, *submission); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	s.recordSave(ctx, req, *submission, "submission.create")
	s.archiveSave(ctx, *submission)
	return submission, nil
}

// Update loads the stored submission, overlays the request body, runs the
// form's actions and persists. PATCH performs a deep merge of the incoming
// data over the stored tree; PUT replaces it.
func (s *Service) Update(ctx context.Context, req *action.Request) (*domain.Submission, error) {
	form, err := s.forms.GetForm(ctx, req.FormID)
	if err != nil {
		return nil, fmt.Errorf("load form %s: %w", req.FormID, err)
	}
	if req.SubmissionID == "" {
		return nil, fmt.Errorf("submission id is required for %s", req.Operation)
	}
	stored, err := s.submissions.GetSubmission(ctx, req.FormID, req.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("load submission %s: %w", req.SubmissionID, err)
	}

	submission := stored.Clone()
	if req.Submission != nil && req.Submission.Data != nil {
		if req.Operation == action.OpPatch {
			submission.Data = mergeTrees(submission.Data, req.Submission.Data)
		} else {
			submission.Data = domain.CopyTree(req.Submission.Data)
		}
	}

	if err := s.runner.Run(ctx, form, req, &submission); err != nil {
		return nil, err
	}
	if req.SkipSave {
		return &submission, nil
	}

	submission.Modified = s.now()
	if err := s.submissions.UpdateSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	s.recordSave(ctx, req, submission, "submission."+string(req.Operation))
	s.archiveSave(ctx, submission)
	return &submission, nil
}

// recordSave and archiveSave are best effort: a failed audit insert or
// archive write is logged, never surfaced to the save.
func (s *Service) recordSave(ctx context.Context, req *action.Request, submission domain.Submission, actionName string) {
	if s.auditDB == nil {
		return
	}
	actor := req.Identity.Subject
	if actor == "" {
		actor = "anonymous"
	}
	_, err := auditlog.Insert(ctx, s.auditDB, auditlog.Event{
		OccurredAt:   s.now(),
		Actor:        actor,
		Action:       actionName,
		FormID:       submission.FormID,
		SubmissionID: submission.ID,
		RequestID:    req.RequestID,
		Payload: map[string]any{
			"derived":     req.PermissionsChecked,
			"externalIds": submission.ExternalIDs,
		},
	})
	if err != nil {
		s.logger.Warn("audit insert failed",
			"form", submission.FormID,
			"submission", submission.ID,
			"request_id", req.RequestID,
			"error", err.Error(),
		)
	}
}

func (s *Service) archiveSave(ctx context.Context, submission domain.Submission) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveSubmission(ctx, submission); err != nil {
		s.logger.Warn("submission archive failed",
			"form", submission.FormID,
			"submission", submission.ID,
			"error", err.Error(),
		)
	}
}

// mergeTrees deep-merges overlay into base: nested maps merge key-wise,
// everything else overwrites.
func mergeTrees(base, overlay map[string]any) map[string]any {
	out := domain.CopyTree(base)
	for key, value := range overlay {
		if existing, ok := out[key].(map[string]any); ok {
			if incoming, ok := value.(map[string]any); ok {
				out[key] = mergeTrees(existing, incoming)
				continue
			}
		}
		out[key] = domain.CopyValue(value)
	}
	return out
}
