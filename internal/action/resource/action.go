// Package resource implements the mirror-to-resource save action: when a
// submission is saved, a configured subset of its data is projected into a
// submission of another resource, optionally rewritten by a sandboxed
// transform script, saved through that resource's own handler, and linked
// back to the primary submission.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/formbridge-labs/formbridge-go/internal/action"
	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
	"github.com/formbridge-labs/formbridge-go/internal/sandbox"
)

// ActionName is the registered name of this action in form configuration.
const ActionName = "resource"

type Deps struct {
	Logger      *slog.Logger
	Forms       repo.FormRepository
	Submissions repo.SubmissionRepository
	Registry    *action.Registry
	Evaluator   *sandbox.Evaluator
	MaxDepth    int
}

// NewFactory returns the action factory wired with shared collaborators.
// Settings are decoded once per configured instance.
func NewFactory(deps Deps) action.Factory {
	return func(cfg domain.ActionConfig) (action.Action, error) {
		settings, err := ParseSettings(cfg.Settings)
		if err != nil {
			return nil, err
		}
		return &Action{
			logger:      deps.Logger,
			forms:       deps.Forms,
			submissions: deps.Submissions,
			registry:    deps.Registry,
			evaluator:   deps.Evaluator,
			maxDepth:    deps.MaxDepth,
			settings:    settings,
		}, nil
	}
}

type Action struct {
	logger      *slog.Logger
	forms       repo.FormRepository
	submissions repo.SubmissionRepository
	registry    *action.Registry
	evaluator   *sandbox.Evaluator
	maxDepth    int
	settings    Settings
}

func (a *Action) Name() string { return ActionName }

// pipelineContext is the per-invocation state threaded through the steps.
// It is built when the action fires and dies with it; nothing here is ever
// shared across requests.
type pipelineContext struct {
	req      *action.Request
	primary  *domain.Submission
	resource domain.Form
	child    *domain.Submission
	childOp  action.Operation

	childSaved bool
	// done short-circuits the remaining steps without an error (the
	// documented no-op exits of the update path).
	done bool
}

type step func(ctx context.Context, pc *pipelineContext) error

// Execute runs the mirror pipeline as an explicit short-circuiting step
// sequence. A nil return with no child save is a deliberate no-op; any
// returned error fails the primary save.
func (a *Action) Execute(ctx context.Context, req *action.Request, submission *domain.Submission) error {
	if !a.applies(req) {
		return nil
	}
	pc := &pipelineContext{req: req, primary: submission, childOp: req.Operation}
	steps := []step{
		a.loadResource,
		a.prepareChild,
		a.mergeChildData,
		a.transformChildData,
		a.saveChild,
		a.linkChild,
	}
	for _, s := range steps {
		if pc.done {
			return nil
		}
		if err := s(ctx, pc); err != nil {
			return err
		}
	}
	return nil
}

// applies evaluates the gates that make the whole action a silent skip:
// non-save operations, requests opted out of saving, and missing resource
// configuration.
func (a *Action) applies(req *action.Request) bool {
	if !req.Operation.IsSave() {
		return false
	}
	if req.SkipSave {
		return false
	}
	return a.settings.Configured()
}

func (a *Action) loadResource(ctx context.Context, pc *pipelineContext) error {
	form, err := a.forms.GetForm(ctx, a.settings.Resource)
	if err != nil {
		return newError(CodeFormLoad, fmt.Sprintf("load resource %s", a.settings.Resource), err)
	}
	pc.resource = form
	return nil
}

// prepareChild produces the child submission the merge and transform stages
// operate on: a fresh one on create, the previously linked one on update.
// Every documented no-op exit of the update path lands here.
func (a *Action) prepareChild(ctx context.Context, pc *pipelineContext) error {
	if pc.req.Operation == action.OpCreate {
		pc.child = &domain.Submission{
			FormID: a.settings.Resource,
			Data:   map[string]any{},
			Roles:  []string{},
		}
		return nil
	}

	if pc.req.SubmissionID == "" || pc.req.FormID == "" {
		pc.done = true
		return nil
	}
	stored, err := a.submissions.GetSubmission(ctx, pc.req.FormID, pc.req.SubmissionID)
	if err != nil {
		return newError(CodeSubmissionLoad, fmt.Sprintf("load submission %s", pc.req.SubmissionID), err)
	}
	ext, ok := stored.FindExternalID(domain.ExternalIDTypeResource, a.settings.Resource)
	if !ok {
		// The primary has no linked mirror yet for this resource; updates
		// never create one.
		pc.done = true
		return nil
	}
	child, err := a.submissions.GetSubmission(ctx, a.settings.Resource, ext.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			a.logger.Warn("linked mirror submission missing, skipping",
				"resource", a.settings.Resource,
				"submission", ext.ID,
				"request_id", pc.req.RequestID,
			)
			pc.done = true
			return nil
		}
		return newError(CodeSubmissionLoad, fmt.Sprintf("load mirrored submission %s", ext.ID), err)
	}
	pc.child = &child
	return nil
}

func (a *Action) mergeChildData(ctx context.Context, pc *pipelineContext) error {
	if len(a.settings.Fields) == 0 {
		return nil
	}
	if pc.child.Data == nil {
		pc.child.Data = map[string]any{}
	}
	mergeFields(a.settings.Fields, pc.primary.Data, pc.child.Data)
	return nil
}

// transformChildData runs the configured script over the merged data. A
// script failure or timeout is contained: the pre-transform data is kept
// and the pipeline continues.
func (a *Action) transformChildData(ctx context.Context, pc *pipelineContext) error {
	if a.settings.Transform == "" {
		return nil
	}
	primaryTree, err := submissionTree(*pc.primary)
	if err != nil {
		return fmt.Errorf("encode submission for transform: %w", err)
	}
	result, err := a.evaluator.Evaluate(ctx, a.settings.Transform, primaryTree, pc.child.Data)
	if err != nil {
		a.logger.Warn("transform failed, keeping merged data",
			"resource", a.settings.Resource,
			"request_id", pc.req.RequestID,
			"error", err.Error(),
		)
		return nil
	}
	pc.child.Data = result
	return nil
}

func (a *Action) saveChild(ctx context.Context, pc *pipelineContext) error {
	childReq, err := buildChildRequest(pc.req, a.settings.Resource, pc.childOp, pc.child, a.maxDepth)
	if err != nil {
		return err
	}
	handler, ok := a.registry.Resolve(pc.resource.Kind, pc.childOp)
	if !ok {
		return newError(CodeNoHandler, fmt.Sprintf("no handler for %s %s", pc.resource.Kind, pc.childOp), nil)
	}
	saved, err := handler(ctx, childReq)
	if err != nil {
		return fmt.Errorf("save mirrored submission: %w", err)
	}
	pc.child = saved
	pc.childSaved = true
	return nil
}

// linkChild is the only step that touches the primary submission: the
// property write and the external id record. A child already committed
// stays committed even if this step fails; callers tolerate the orphaned
// mirror.
func (a *Action) linkChild(ctx context.Context, pc *pipelineContext) error {
	return assignResource(pc.primary, pc.child, pc.childSaved, a.settings)
}
