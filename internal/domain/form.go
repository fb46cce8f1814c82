package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type FormKind string

const (
	FormKindForm     FormKind = "form"
	FormKindResource FormKind = "resource"
)

func ParseFormKind(raw string) (FormKind, error) {
	switch FormKind(strings.ToLower(strings.TrimSpace(raw))) {
	case FormKindForm:
		return FormKindForm, nil
	case FormKindResource:
		return FormKindResource, nil
	default:
		return "", fmt.Errorf("unsupported form kind: %q", raw)
	}
}

// Form is a form or resource definition. Actions configure side effects that
// run when a submission against the form is saved.
type Form struct {
	ID       string         `json:"_id"`
	Name     string         `json:"name"`
	Title    string         `json:"title,omitempty"`
	Path     string         `json:"path"`
	Kind     FormKind       `json:"type"`
	Actions  []ActionConfig `json:"actions,omitempty"`
	Created  time.Time      `json:"created,omitempty"`
	Modified time.Time      `json:"modified,omitempty"`
}

func (f Form) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("form id is required")
	}
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("form name is required")
	}
	if strings.TrimSpace(f.Path) == "" {
		return errors.New("form path is required")
	}
	if _, err := ParseFormKind(string(f.Kind)); err != nil {
		return err
	}
	for i, action := range f.Actions {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}
	return nil
}

// ActionConfig configures one action instance on a form. Settings are
// action-specific and decoded by the action implementation.
type ActionConfig struct {
	Name     string         `json:"name"`
	Title    string         `json:"title,omitempty"`
	Priority int            `json:"priority,omitempty"`
	Methods  []string       `json:"method,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

func (a ActionConfig) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("action name is required")
	}
	return nil
}

// AppliesTo reports whether the action is configured for the given save
// operation. An empty method list applies to every operation.
func (a ActionConfig) AppliesTo(operation string) bool {
	if len(a.Methods) == 0 {
		return true
	}
	for _, m := range a.Methods {
		if strings.EqualFold(strings.TrimSpace(m), operation) {
			return true
		}
	}
	return false
}

// SortedActions returns the form's actions ordered by descending priority,
// stable for equal priorities.
func (f Form) SortedActions() []ActionConfig {
	out := append([]ActionConfig(nil), f.Actions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}
