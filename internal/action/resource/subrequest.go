package resource

import (
	"fmt"

	"github.com/formbridge-labs/formbridge-go/internal/action"
	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

// DefaultMaxDepth bounds how many derived saves may stack on one request
// chain. Mutually-mirroring resources are caught by the ancestry check
// before the depth bound ever matters; the bound is the backstop for
// configurations that fan out through distinct forms.
const DefaultMaxDepth = 5

// buildChildRequest clones the parent save request into a derived request
// targeting the mirror resource. The clone differs from its parent only in
// target form, operation and body; it carries PermissionsChecked and
// NoResponse so the child write rides on the parent's authorization and
// never touches the HTTP response.
func buildChildRequest(parent *action.Request, resourceID string, op action.Operation, body *domain.Submission, maxDepth int) (*action.Request, error) {
	if parent.InChain(resourceID) {
		return nil, newError(CodeRecursiveRequest, fmt.Sprintf("resource %s is already being saved in this request chain", resourceID), nil)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if len(parent.Ancestors)+1 > maxDepth {
		return nil, newError(CodeRecursiveRequest, fmt.Sprintf("derived save depth exceeds %d", maxDepth), nil)
	}
	if op == action.OpUpdate || op == action.OpPatch {
		if body == nil || body.ID == "" {
			return nil, newError(CodeMissingID, "cannot update a mirrored submission without its id", nil)
		}
	}

	ancestors := make([]string, 0, len(parent.Ancestors)+1)
	ancestors = append(ancestors, parent.Ancestors...)
	ancestors = append(ancestors, parent.FormID)

	child := &action.Request{
		Operation:          op,
		FormID:             resourceID,
		Submission:         body,
		Identity:           parent.Identity,
		RequestID:          parent.RequestID,
		PermissionsChecked: true,
		NoResponse:         true,
		Ancestors:          ancestors,
	}
	if body != nil {
		child.SubmissionID = body.ID
	}
	return child, nil
}
