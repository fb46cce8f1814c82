package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

// Action is one configured side effect running against an in-flight
// submission save. Implementations may mutate the submission before it is
// persisted.
type Action interface {
	Name() string
	Execute(ctx context.Context, req *Request, submission *domain.Submission) error
}

// Factory builds an action instance from its per-form configuration.
type Factory func(cfg domain.ActionConfig) (Action, error)

// Runner instantiates and executes a form's configured actions in priority
// order. Unknown action names are skipped with a warning so a form defined
// against a newer server still saves.
type Runner struct {
	logger    *slog.Logger
	factories map[string]Factory
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger:    logger,
		factories: map[string]Factory{},
	}
}

func (r *Runner) RegisterFactory(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("factory %q is nil", name)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("factory %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Run executes the form's actions against the in-flight submission. The
// first action error aborts the run and fails the save.
func (r *Runner) Run(ctx context.Context, form domain.Form, req *Request, submission *domain.Submission) error {
	for _, cfg := range form.SortedActions() {
		if !cfg.AppliesTo(string(req.Operation)) {
			continue
		}
		factory, ok := r.factories[cfg.Name]
		if !ok {
			r.logger.Warn("unknown action skipped",
				"action", cfg.Name,
				"form", form.ID,
				"request_id", req.RequestID,
			)
			continue
		}
		act, err := factory(cfg)
		if err != nil {
			return fmt.Errorf("configure action %q on form %s: %w", cfg.Name, form.ID, err)
		}
		if err := act.Execute(ctx, req, submission); err != nil {
			return fmt.Errorf("action %q on form %s: %w", cfg.Name, form.ID, err)
		}
	}
	return nil
}
