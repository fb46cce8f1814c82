// Package formdef loads form and resource definitions from YAML files so a
// deployment can declare its forms, their mirror actions included, without
// hand-inserted rows.
package formdef

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
)

// Definition is the YAML shape of one form.
type Definition struct {
	ID      string             `yaml:"id"`
	Name    string             `yaml:"name"`
	Title   string             `yaml:"title"`
	Path    string             `yaml:"path"`
	Kind    string             `yaml:"kind"`
	Actions []ActionDefinition `yaml:"actions"`
}

type ActionDefinition struct {
	Name     string         `yaml:"name"`
	Title    string         `yaml:"title"`
	Priority int            `yaml:"priority"`
	Methods  []string       `yaml:"methods"`
	Settings map[string]any `yaml:"settings"`
}

// Parse decodes and validates a single definition payload.
func Parse(data []byte) (domain.Form, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Form{}, errors.New("definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return domain.Form{}, fmt.Errorf("decode definition: %w", err)
	}
	return def.toForm()
}

func (d Definition) toForm() (domain.Form, error) {
	kind, err := domain.ParseFormKind(d.Kind)
	if err != nil {
		return domain.Form{}, err
	}
	form := domain.Form{
		ID:    strings.TrimSpace(d.ID),
		Name:  strings.TrimSpace(d.Name),
		Title: strings.TrimSpace(d.Title),
		Path:  strings.TrimSpace(d.Path),
		Kind:  kind,
	}
	for _, a := range d.Actions {
		form.Actions = append(form.Actions, domain.ActionConfig{
			Name:     strings.TrimSpace(a.Name),
			Title:    strings.TrimSpace(a.Title),
			Priority: a.Priority,
			Methods:  a.Methods,
			Settings: normalizeSettings(a.Settings),
		})
	}
	if err := form.Validate(); err != nil {
		return domain.Form{}, err
	}
	return form, nil
}

// LoadDir scans a directory for *.yaml definitions, sorted by filename. A
// missing directory means "no definitions" to simplify startup.
func LoadDir(dir string) ([]domain.Form, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", trimmed, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !isYAMLFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	forms := make([]domain.Form, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		path := filepath.Join(trimmed, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		form, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prior, dup := seen[form.ID]; dup {
			return nil, fmt.Errorf("%s: form id %q already defined in %s", path, form.ID, prior)
		}
		seen[form.ID] = path
		forms = append(forms, form)
	}
	return forms, nil
}

// Seed upserts the definitions into the form repository.
func Seed(ctx context.Context, forms repo.FormRepository, defs []domain.Form) error {
	for _, form := range defs {
		if err := forms.SaveForm(ctx, form); err != nil {
			return fmt.Errorf("seed form %s: %w", form.ID, err)
		}
	}
	return nil
}

// normalizeSettings converts yaml's map[any]any nodes into the string-keyed
// maps the rest of the system works with.
func normalizeSettings(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return normalizeSettings(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
