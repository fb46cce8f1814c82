package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/formbridge-labs/formbridge-go/internal/action"
	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
	"github.com/formbridge-labs/formbridge-go/internal/sandbox"
)

type fakeFormRepo struct {
	forms    map[string]domain.Form
	getCalls int
}

func (f *fakeFormRepo) SaveForm(ctx context.Context, form domain.Form) error {
	f.forms[form.ID] = form
	return nil
}

func (f *fakeFormRepo) GetForm(ctx context.Context, id string) (domain.Form, error) {
	f.getCalls++
	form, ok := f.forms[id]
	if !ok {
		return domain.Form{}, repo.ErrNotFound
	}
	return form, nil
}

func (f *fakeFormRepo) GetFormByPath(ctx context.Context, path string) (domain.Form, error) {
	for _, form := range f.forms {
		if form.Path == path {
			return form, nil
		}
	}
	return domain.Form{}, repo.ErrNotFound
}

func (f *fakeFormRepo) ListForms(ctx context.Context, filter repo.FormFilter) ([]domain.Form, error) {
	out := make([]domain.Form, 0, len(f.forms))
	for _, form := range f.forms {
		out = append(out, form)
	}
	return out, nil
}

type fakeSubmissionRepo struct {
	// keyed by formID then submission id
	stored   map[string]map[string]domain.Submission
	getCalls int
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{stored: map[string]map[string]domain.Submission{}}
}

func (f *fakeSubmissionRepo) put(sub domain.Submission) {
	if f.stored[sub.FormID] == nil {
		f.stored[sub.FormID] = map[string]domain.Submission{}
	}
	f.stored[sub.FormID][sub.ID] = sub
}

func (f *fakeSubmissionRepo) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	f.put(sub)
	return nil
}

func (f *fakeSubmissionRepo) GetSubmission(ctx context.Context, formID, id string) (domain.Submission, error) {
	f.getCalls++
	sub, ok := f.stored[formID][id]
	if !ok {
		return domain.Submission{}, repo.ErrNotFound
	}
	return sub.Clone(), nil
}

func (f *fakeSubmissionRepo) UpdateSubmission(ctx context.Context, sub domain.Submission) error {
	if _, ok := f.stored[sub.FormID][sub.ID]; !ok {
		return repo.ErrNotFound
	}
	f.put(sub)
	return nil
}

type capturedSave struct {
	req   *action.Request
	saved domain.Submission
}

func testAction(t *testing.T, settings map[string]any, forms *fakeFormRepo, subs *fakeSubmissionRepo, registry *action.Registry) *Action {
	t.Helper()
	factory := NewFactory(Deps{
		Logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		Forms:       forms,
		Submissions: subs,
		Registry:    registry,
		Evaluator:   sandbox.NewEvaluator(2 * time.Second),
	})
	act, err := factory(domain.ActionConfig{Name: ActionName, Settings: settings})
	if err != nil {
		t.Fatalf("factory err=%v", err)
	}
	return act.(*Action)
}

func mirrorForm(id string) domain.Form {
	return domain.Form{ID: id, Name: id, Path: id, Kind: domain.FormKindResource}
}

// capturingRegistry registers a handler that pretends to save the child and
// records what it was asked to save.
func capturingRegistry(t *testing.T, kind domain.FormKind, childID string, capture *capturedSave) *action.Registry {
	t.Helper()
	registry := action.NewRegistry()
	handler := func(ctx context.Context, req *action.Request) (*domain.Submission, error) {
		saved := req.Submission.Clone()
		if saved.ID == "" {
			saved.ID = childID
		}
		capture.req = req
		capture.saved = saved
		return &saved, nil
	}
	for _, op := range []action.Operation{action.OpCreate, action.OpUpdate, action.OpPatch} {
		if err := registry.Register(kind, op, handler); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return registry
}

func TestExecute_NoResourceConfigured_PassThrough(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{}}
	subs := newFakeSubmissionRepo()
	act := testAction(t, nil, forms, subs, action.NewRegistry())

	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	primary := &domain.Submission{FormID: "a", Data: map[string]any{"x": 1}}
	if err := act.Execute(context.Background(), req, primary); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if forms.getCalls != 0 || subs.getCalls != 0 {
		t.Fatalf("expected no loads, got %d form / %d submission", forms.getCalls, subs.getCalls)
	}
}

func TestExecute_SkipSave_PassThrough(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	act := testAction(t, map[string]any{"resource": "b"}, forms, newFakeSubmissionRepo(), action.NewRegistry())

	req := &action.Request{Operation: action.OpCreate, FormID: "a", SkipSave: true}
	if err := act.Execute(context.Background(), req, &domain.Submission{FormID: "a", Data: map[string]any{}}); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if forms.getCalls != 0 {
		t.Fatalf("expected no loads on opted-out save")
	}
}

func TestExecute_CreateMergesAndLinks(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	subs := newFakeSubmissionRepo()
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{
		"resource": "b",
		"property": "linked",
		"fields": map[string]any{
			"email":        "profile.email",
			"contact.name": "name",
			"missing":      "nope",
		},
	}, forms, subs, registry)

	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	primary := &domain.Submission{
		FormID: "a",
		Data: map[string]any{
			"name":    "ada",
			"profile": map[string]any{"email": "ada@example.test"},
		},
	}
	if err := act.Execute(context.Background(), req, primary); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}

	if capture.req == nil {
		t.Fatalf("expected a child save dispatch")
	}
	if !capture.req.PermissionsChecked || !capture.req.NoResponse {
		t.Fatalf("child request must carry PermissionsChecked and NoResponse")
	}
	if capture.req.FormID != "b" || capture.req.Operation != action.OpCreate {
		t.Fatalf("child request target %s %s, want b create", capture.req.FormID, capture.req.Operation)
	}
	if got := capture.saved.Data["email"]; got != "ada@example.test" {
		t.Fatalf("merged email=%v", got)
	}
	if got, _ := domain.GetPath(capture.saved.Data, "contact.name"); got != "ada" {
		t.Fatalf("merged contact.name=%v", got)
	}
	if _, ok := capture.saved.Data["missing"]; ok {
		t.Fatalf("unset source field must be skipped, not written")
	}

	if len(primary.ExternalIDs) != 1 {
		t.Fatalf("externalIds len=%d, want 1", len(primary.ExternalIDs))
	}
	ext := primary.ExternalIDs[0]
	if ext.Type != domain.ExternalIDTypeResource || ext.Resource != "b" || ext.ID != "child-1" {
		t.Fatalf("unexpected external id: %+v", ext)
	}
	linked, ok := primary.Data["linked"].(map[string]any)
	if !ok {
		t.Fatalf("property write missing: %T", primary.Data["linked"])
	}
	if linked["_id"] != "child-1" {
		t.Fatalf("linked _id=%v, want child-1", linked["_id"])
	}
}

func TestExecute_WholeDataMapping(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{
		"resource": "b",
		"fields":   map[string]any{"data": "data"},
	}, forms, newFakeSubmissionRepo(), registry)

	primaryData := map[string]any{"a": 1.0, "nested": map[string]any{"b": "two"}}
	primary := &domain.Submission{FormID: "a", Data: primaryData}
	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	if err := act.Execute(context.Background(), req, primary); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}

	copied, ok := capture.saved.Data["data"].(map[string]any)
	if !ok {
		t.Fatalf("whole-data mapping missing: %T", capture.saved.Data["data"])
	}
	if copied["a"] != 1.0 {
		t.Fatalf("copied a=%v", copied["a"])
	}
	copied["nested"].(map[string]any)["b"] = "mutated"
	if primaryData["nested"].(map[string]any)["b"] != "two" {
		t.Fatalf("whole-data mapping must copy by value, not reference")
	}
}

func TestExecute_TransformRewritesChildData(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{
		"resource":  "b",
		"fields":    map[string]any{"email": "email"},
		"transform": `data["stamped"] = true`,
	}, forms, newFakeSubmissionRepo(), registry)

	primary := &domain.Submission{FormID: "a", Data: map[string]any{"email": "x@y"}}
	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	if err := act.Execute(context.Background(), req, primary); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if capture.saved.Data["stamped"] != true {
		t.Fatalf("transform did not run: %v", capture.saved.Data)
	}
	if capture.saved.Data["email"] != "x@y" {
		t.Fatalf("merged field lost by transform: %v", capture.saved.Data)
	}
}

func TestExecute_TransformFailureKeepsMergedData(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{
		"resource":  "b",
		"fields":    map[string]any{"email": "email"},
		"transform": `panic("boom")`,
	}, forms, newFakeSubmissionRepo(), registry)

	primary := &domain.Submission{FormID: "a", Data: map[string]any{"email": "x@y"}}
	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	if err := act.Execute(context.Background(), req, primary); err != nil {
		t.Fatalf("transform failure must be contained, got %v", err)
	}
	if capture.saved.Data["email"] != "x@y" {
		t.Fatalf("pre-transform data lost: %v", capture.saved.Data)
	}
}

func TestExecute_ResourceMissing_FormLoadError(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{}}
	act := testAction(t, map[string]any{"resource": "ghost"}, forms, newFakeSubmissionRepo(), action.NewRegistry())

	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	err := act.Execute(context.Background(), req, &domain.Submission{FormID: "a", Data: map[string]any{}})
	if CodeOf(err) != CodeFormLoad {
		t.Fatalf("CodeOf(err)=%q err=%v, want %s", CodeOf(err), err, CodeFormLoad)
	}
}

func TestExecute_NoHandler(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	act := testAction(t, map[string]any{"resource": "b"}, forms, newFakeSubmissionRepo(), action.NewRegistry())

	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	err := act.Execute(context.Background(), req, &domain.Submission{FormID: "a", Data: map[string]any{}})
	if CodeOf(err) != CodeNoHandler {
		t.Fatalf("CodeOf(err)=%q err=%v, want %s", CodeOf(err), err, CodeNoHandler)
	}
}

func TestExecute_SelfReference_Recursion(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"a": mirrorForm("a")}}
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{"resource": "a"}, forms, newFakeSubmissionRepo(), registry)

	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	err := act.Execute(context.Background(), req, &domain.Submission{FormID: "a", Data: map[string]any{}})
	if CodeOf(err) != CodeRecursiveRequest {
		t.Fatalf("CodeOf(err)=%q err=%v, want %s", CodeOf(err), err, CodeRecursiveRequest)
	}
	if capture.req != nil {
		t.Fatalf("no child save may be attempted on recursion")
	}
}

func TestExecute_UpdateWithoutSubmissionID_NoOp(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	subs := newFakeSubmissionRepo()
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{"resource": "b", "fields": map[string]any{"data": "data"}}, forms, subs, registry)

	req := &action.Request{Operation: action.OpUpdate, FormID: "a"}
	if err := act.Execute(context.Background(), req, &domain.Submission{FormID: "a", Data: map[string]any{}}); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if capture.req != nil {
		t.Fatalf("no child save expected")
	}
}

func TestExecute_UpdateWithoutLink_NoOp(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	subs := newFakeSubmissionRepo()
	subs.put(domain.Submission{ID: "p1", FormID: "a", Data: map[string]any{"x": 1}})
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{"resource": "b", "fields": map[string]any{"data": "data"}}, forms, subs, registry)

	req := &action.Request{Operation: action.OpUpdate, FormID: "a", SubmissionID: "p1"}
	primary := &domain.Submission{ID: "p1", FormID: "a", Data: map[string]any{"x": 2}}
	if err := act.Execute(context.Background(), req, primary); err != nil {
		t.Fatalf("unlinked update must be a no-op, got %v", err)
	}
	if capture.req != nil {
		t.Fatalf("no child save expected without an external link")
	}
}

func TestExecute_UpdateMissingChild_NoOp(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	subs := newFakeSubmissionRepo()
	subs.put(domain.Submission{
		ID: "p1", FormID: "a", Data: map[string]any{},
		ExternalIDs: []domain.ExternalID{{Type: domain.ExternalIDTypeResource, Resource: "b", ID: "gone"}},
	})
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{"resource": "b"}, forms, subs, registry)

	req := &action.Request{Operation: action.OpUpdate, FormID: "a", SubmissionID: "p1"}
	if err := act.Execute(context.Background(), req, &domain.Submission{ID: "p1", FormID: "a", Data: map[string]any{}}); err != nil {
		t.Fatalf("missing child must be a no-op, got %v", err)
	}
	if capture.req != nil {
		t.Fatalf("no child save expected for a missing child")
	}
}

func TestExecute_UpdateChildWithoutID_MissingIDError(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	subs := newFakeSubmissionRepo()
	subs.put(domain.Submission{
		ID: "p1", FormID: "a", Data: map[string]any{},
		ExternalIDs: []domain.ExternalID{{Type: domain.ExternalIDTypeResource, Resource: "b", ID: ""}},
	})
	// a stored child record with an empty id slot
	subs.stored["b"] = map[string]domain.Submission{"": {FormID: "b", Data: map[string]any{}}}
	var capture capturedSave
	registry := capturingRegistry(t, domain.FormKindResource, "child-1", &capture)
	act := testAction(t, map[string]any{"resource": "b"}, forms, subs, registry)

	req := &action.Request{Operation: action.OpUpdate, FormID: "a", SubmissionID: "p1"}
	err := act.Execute(context.Background(), req, &domain.Submission{ID: "p1", FormID: "a", Data: map[string]any{}})
	if CodeOf(err) != CodeMissingID {
		t.Fatalf("CodeOf(err)=%q err=%v, want %s", CodeOf(err), err, CodeMissingID)
	}
	if capture.req != nil {
		t.Fatalf("no child save may be attempted without an id")
	}
}

func TestExecute_ChildHandlerFailurePropagates(t *testing.T) {
	forms := &fakeFormRepo{forms: map[string]domain.Form{"b": mirrorForm("b")}}
	registry := action.NewRegistry()
	handlerErr := errors.New("storage down")
	_ = registry.Register(domain.FormKindResource, action.OpCreate, func(ctx context.Context, req *action.Request) (*domain.Submission, error) {
		return nil, handlerErr
	})
	act := testAction(t, map[string]any{"resource": "b"}, forms, newFakeSubmissionRepo(), registry)

	req := &action.Request{Operation: action.OpCreate, FormID: "a"}
	err := act.Execute(context.Background(), req, &domain.Submission{FormID: "a", Data: map[string]any{}})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected child save failure to propagate, got %v", err)
	}
}

func TestParseSettings(t *testing.T) {
	settings, err := ParseSettings(map[string]any{
		"resource": " b ",
		"property": "linked",
		"fields":   map[string]any{"x": "y"},
		"unknown":  "ignored",
	})
	if err != nil {
		t.Fatalf("ParseSettings() err=%v", err)
	}
	if settings.Resource != "b" || settings.Property != "linked" || settings.Fields["x"] != "y" {
		t.Fatalf("unexpected settings: %+v", settings)
	}
	if !settings.Configured() {
		t.Fatalf("expected configured settings")
	}

	empty, err := ParseSettings(nil)
	if err != nil {
		t.Fatalf("ParseSettings(nil) err=%v", err)
	}
	if empty.Configured() {
		t.Fatalf("nil settings must not be configured")
	}

	if _, err := ParseSettings(map[string]any{"fields": "not-a-map"}); err == nil {
		t.Fatalf("expected decode error for malformed fields")
	}
}

func TestErrorIsByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(CodeRecursiveRequest, "loop", nil))
	if !errors.Is(err, &Error{Code: CodeRecursiveRequest}) {
		t.Fatalf("errors.Is by code failed")
	}
	if errors.Is(err, &Error{Code: CodeMissingID}) {
		t.Fatalf("errors.Is matched the wrong code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}
