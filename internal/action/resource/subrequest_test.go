package resource

import (
	"testing"

	"github.com/formbridge-labs/formbridge-go/internal/action"
	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/platform/auth"
)

func TestBuildChildRequest_Create(t *testing.T) {
	parent := &action.Request{
		Operation: action.OpCreate,
		FormID:    "a",
		Identity:  auth.Identity{Subject: "dev-user"},
		RequestID: "req-1",
		Ancestors: []string{"root"},
	}
	body := &domain.Submission{FormID: "b", Data: map[string]any{}}

	child, err := buildChildRequest(parent, "b", action.OpCreate, body, 0)
	if err != nil {
		t.Fatalf("buildChildRequest() err=%v", err)
	}
	if child.FormID != "b" || child.Operation != action.OpCreate {
		t.Fatalf("target %s %s, want b create", child.FormID, child.Operation)
	}
	if !child.PermissionsChecked || !child.NoResponse {
		t.Fatalf("derived request must carry PermissionsChecked and NoResponse")
	}
	if child.Identity.Subject != "dev-user" || child.RequestID != "req-1" {
		t.Fatalf("identity/request id not carried: %+v", child)
	}
	if len(child.Ancestors) != 2 || child.Ancestors[0] != "root" || child.Ancestors[1] != "a" {
		t.Fatalf("ancestors=%v, want [root a]", child.Ancestors)
	}
}

func TestBuildChildRequest_UpdateWithoutID(t *testing.T) {
	parent := &action.Request{Operation: action.OpUpdate, FormID: "a"}

	for name, body := range map[string]*domain.Submission{
		"nil body":      nil,
		"id-less body":  {FormID: "b", Data: map[string]any{}},
		"blank-id body": {ID: "", FormID: "b"},
	} {
		_, err := buildChildRequest(parent, "b", action.OpUpdate, body, 0)
		if CodeOf(err) != CodeMissingID {
			t.Fatalf("%s: CodeOf(err)=%q err=%v, want %s", name, CodeOf(err), err, CodeMissingID)
		}
	}

	if _, err := buildChildRequest(parent, "b", action.OpPatch, nil, 0); CodeOf(err) != CodeMissingID {
		t.Fatalf("patch without body must fail with %s, got %v", CodeMissingID, err)
	}
}

func TestBuildChildRequest_UpdateWithID(t *testing.T) {
	parent := &action.Request{Operation: action.OpUpdate, FormID: "a"}
	body := &domain.Submission{ID: "c1", FormID: "b", Data: map[string]any{}}

	child, err := buildChildRequest(parent, "b", action.OpUpdate, body, 0)
	if err != nil {
		t.Fatalf("buildChildRequest() err=%v", err)
	}
	if child.SubmissionID != "c1" {
		t.Fatalf("SubmissionID=%q, want c1", child.SubmissionID)
	}
}

func TestBuildChildRequest_RecursionGuards(t *testing.T) {
	ancestor := &action.Request{Operation: action.OpCreate, FormID: "b", Ancestors: []string{"a"}}
	if _, err := buildChildRequest(ancestor, "a", action.OpCreate, &domain.Submission{}, 0); CodeOf(err) != CodeRecursiveRequest {
		t.Fatalf("ancestor re-entry must fail with %s, got %v", CodeRecursiveRequest, err)
	}

	self := &action.Request{Operation: action.OpCreate, FormID: "a"}
	if _, err := buildChildRequest(self, "a", action.OpCreate, &domain.Submission{}, 0); CodeOf(err) != CodeRecursiveRequest {
		t.Fatalf("self-reference must fail with %s, got %v", CodeRecursiveRequest, err)
	}

	deep := &action.Request{Operation: action.OpCreate, FormID: "e", Ancestors: []string{"a", "b", "c", "d"}}
	if _, err := buildChildRequest(deep, "f", action.OpCreate, &domain.Submission{}, 3); CodeOf(err) != CodeRecursiveRequest {
		t.Fatalf("depth bound must fail with %s, got %v", CodeRecursiveRequest, err)
	}
	if _, err := buildChildRequest(deep, "f", action.OpCreate, &domain.Submission{}, 10); err != nil {
		t.Fatalf("within bound must succeed, got %v", err)
	}
}
