package action

import (
	"context"
	"fmt"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

// Handler executes one save request and returns the saved submission.
type Handler func(ctx context.Context, req *Request) (*domain.Submission, error)

type handlerKey struct {
	kind domain.FormKind
	op   Operation
}

// Registry maps (form kind, operation) to a save handler. Handlers are
// registered once at startup and resolved at dispatch time; there is no
// string-pattern routing involved.
type Registry struct {
	handlers map[handlerKey]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[handlerKey]Handler{}}
}

func (r *Registry) Register(kind domain.FormKind, op Operation, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler for %s %s is nil", kind, op)
	}
	key := handlerKey{kind: kind, op: op}
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("handler for %s %s already registered", kind, op)
	}
	r.handlers[key] = handler
	return nil
}

func (r *Registry) Resolve(kind domain.FormKind, op Operation) (Handler, bool) {
	handler, ok := r.handlers[handlerKey{kind: kind, op: op}]
	return handler, ok
}
