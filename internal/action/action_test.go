package action

import (
	"context"
	"net/http"
	"testing"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

func TestOperationForMethod(t *testing.T) {
	cases := []struct {
		method string
		want   Operation
		ok     bool
	}{
		{http.MethodPost, OpCreate, true},
		{http.MethodPut, OpUpdate, true},
		{http.MethodPatch, OpPatch, true},
		{"post", OpCreate, true},
		{" put ", OpUpdate, true},
		{http.MethodGet, "", false},
		{http.MethodDelete, "", false},
	}
	for _, tc := range cases {
		got, ok := OperationForMethod(tc.method)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("OperationForMethod(%q)=%q,%v want %q,%v", tc.method, got, ok, tc.want, tc.ok)
		}
	}
}

func TestOperationIsSave(t *testing.T) {
	for _, op := range []Operation{OpCreate, OpUpdate, OpPatch} {
		if !op.IsSave() {
			t.Fatalf("%s must be a save operation", op)
		}
	}
	if Operation("read").IsSave() {
		t.Fatalf("read must not be a save operation")
	}
}

func TestRequestInChain(t *testing.T) {
	req := &Request{FormID: "b", Ancestors: []string{"a"}}
	if !req.InChain("a") {
		t.Fatalf("ancestor must be in chain")
	}
	if !req.InChain("b") {
		t.Fatalf("own target must be in chain")
	}
	if req.InChain("c") {
		t.Fatalf("unrelated form must not be in chain")
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	handler := func(ctx context.Context, req *Request) (*domain.Submission, error) { return nil, nil }

	if err := registry.Register(domain.FormKindForm, OpCreate, handler); err != nil {
		t.Fatalf("Register() err=%v", err)
	}
	if err := registry.Register(domain.FormKindForm, OpCreate, handler); err == nil {
		t.Fatalf("duplicate registration must fail")
	}
	if err := registry.Register(domain.FormKindForm, OpUpdate, nil); err == nil {
		t.Fatalf("nil handler must fail")
	}

	if _, ok := registry.Resolve(domain.FormKindForm, OpCreate); !ok {
		t.Fatalf("registered handler not resolved")
	}
	if _, ok := registry.Resolve(domain.FormKindResource, OpCreate); ok {
		t.Fatalf("unregistered kind resolved")
	}
	if _, ok := registry.Resolve(domain.FormKindForm, OpUpdate); ok {
		t.Fatalf("unregistered op resolved")
	}
}
