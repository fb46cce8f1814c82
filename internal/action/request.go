// Package action models internal save requests and the registry of save
// handlers. Actions attached to a form run against the in-flight submission
// before it is persisted; a derived (child) save request dispatched through
// the registry behaves exactly like an externally issued one.
package action

import (
	"net/http"
	"strings"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/platform/auth"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpPatch  Operation = "patch"
)

// OperationForMethod maps an HTTP method onto a save operation.
func OperationForMethod(method string) (Operation, bool) {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case http.MethodPost:
		return OpCreate, true
	case http.MethodPut:
		return OpUpdate, true
	case http.MethodPatch:
		return OpPatch, true
	default:
		return "", false
	}
}

// IsSave reports whether the operation writes a submission.
func (op Operation) IsSave() bool {
	switch op {
	case OpCreate, OpUpdate, OpPatch:
		return true
	default:
		return false
	}
}

// Request is one submission save flowing through the service, either from
// the HTTP surface or synthesized as a child of another save.
//
// Ancestors lists the form ids already being saved in this request chain,
// oldest first. It is how a derived save detects that it would re-enter a
// form the chain is already processing.
type Request struct {
	Operation    Operation
	FormID       string
	SubmissionID string
	Submission   *domain.Submission
	Identity     auth.Identity
	RequestID    string

	// PermissionsChecked marks a derived save whose write is covered by the
	// parent request's authorization; the handler must not re-authorize it.
	PermissionsChecked bool
	// NoResponse marks a derived save whose outcome is observed only by the
	// orchestrator, never written to an HTTP response.
	NoResponse bool
	// SkipSave opts the request out of persisting (and out of save-time
	// actions).
	SkipSave bool

	Ancestors []string
}

// InChain reports whether formID is already being saved in this chain,
// either as an ancestor or as the request's own target.
func (r *Request) InChain(formID string) bool {
	if r.FormID == formID {
		return true
	}
	for _, ancestor := range r.Ancestors {
		if ancestor == formID {
			return true
		}
	}
	return false
}
