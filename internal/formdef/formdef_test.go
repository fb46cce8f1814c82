package formdef

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
)

const contactYAML = `
id: contact
name: contact
title: Contact
path: contact
kind: form
actions:
  - name: resource
    title: Mirror profile
    priority: 10
    methods: [create, update]
    settings:
      resource: profiles
      property: profile
      fields:
        email: email
`

func TestParse(t *testing.T) {
	form, err := Parse([]byte(contactYAML))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	if form.ID != "contact" || form.Kind != domain.FormKindForm {
		t.Fatalf("unexpected form: %+v", form)
	}
	if len(form.Actions) != 1 {
		t.Fatalf("actions len=%d", len(form.Actions))
	}
	act := form.Actions[0]
	if act.Name != "resource" || act.Priority != 10 {
		t.Fatalf("unexpected action: %+v", act)
	}
	fields, ok := act.Settings["fields"].(map[string]any)
	if !ok {
		t.Fatalf("settings fields type %T", act.Settings["fields"])
	}
	if fields["email"] != "email" {
		t.Fatalf("fields=%v", fields)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"bad kind":     "id: x\nname: x\npath: x\nkind: widget\n",
		"missing id":   "name: x\npath: x\nkind: form\n",
		"not yaml map": "- just\n- a\n- list\n",
	}
	for name, payload := range cases {
		if _, err := Parse([]byte(payload)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, payload string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(payload), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("20-contact.yaml", contactYAML)
	write("10-profiles.yml", "id: profiles\nname: profiles\npath: profiles\nkind: resource\n")
	write("notes.txt", "ignored")

	forms, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() err=%v", err)
	}
	if len(forms) != 2 {
		t.Fatalf("forms len=%d, want 2", len(forms))
	}
	// Filename order, not declaration order.
	if forms[0].ID != "profiles" || forms[1].ID != "contact" {
		t.Fatalf("order wrong: %s, %s", forms[0].ID, forms[1].ID)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	forms, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir must not error, got %v", err)
	}
	if forms != nil {
		t.Fatalf("expected nil forms, got %v", forms)
	}
	if forms, err = LoadDir("  "); err != nil || forms != nil {
		t.Fatalf("blank dir must be a no-op, got %v %v", forms, err)
	}
}

func TestLoadDir_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	payload := "id: contact\nname: contact\npath: contact\nkind: form\n"
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(payload), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_, err := LoadDir(dir)
	if err == nil || !strings.Contains(err.Error(), "already defined") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

type recordingFormRepo struct {
	saved []domain.Form
}

func (r *recordingFormRepo) SaveForm(ctx context.Context, form domain.Form) error {
	r.saved = append(r.saved, form)
	return nil
}

func (r *recordingFormRepo) GetForm(ctx context.Context, id string) (domain.Form, error) {
	return domain.Form{}, nil
}

func (r *recordingFormRepo) GetFormByPath(ctx context.Context, path string) (domain.Form, error) {
	return domain.Form{}, nil
}

func (r *recordingFormRepo) ListForms(ctx context.Context, filter repo.FormFilter) ([]domain.Form, error) {
	return nil, nil
}

func TestSeed(t *testing.T) {
	store := &recordingFormRepo{}
	defs := []domain.Form{
		{ID: "a", Name: "a", Path: "a", Kind: domain.FormKindForm},
		{ID: "b", Name: "b", Path: "b", Kind: domain.FormKindResource},
	}
	if err := Seed(context.Background(), store, defs); err != nil {
		t.Fatalf("Seed() err=%v", err)
	}
	if len(store.saved) != 2 || store.saved[0].ID != "a" || store.saved[1].ID != "b" {
		t.Fatalf("saved=%v", store.saved)
	}
}
