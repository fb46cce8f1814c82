package resource

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceWholeData is the reserved source field that copies the primary
// submission's entire data tree.
const SourceWholeData = "data"

// Settings configures one mirror-to-resource action instance. Immutable
// once decoded.
type Settings struct {
	// Resource is the target form id. The action is inert without it.
	Resource string `json:"resource"`
	// Property, when set, is the dotted path in the primary submission's
	// data under which the mirrored submission is stored.
	Property string `json:"property,omitempty"`
	// Fields maps target paths in the child's data to source fields in the
	// primary's data ("data" meaning the whole tree).
	Fields map[string]string `json:"fields,omitempty"`
	// Transform is an optional script run over the merged child data.
	Transform string `json:"transform,omitempty"`
}

// ParseSettings decodes the generic action settings map. Unknown keys are
// ignored so older configurations keep working.
func ParseSettings(raw map[string]any) (Settings, error) {
	if raw == nil {
		return Settings{}, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(encoded, &settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	settings.Resource = strings.TrimSpace(settings.Resource)
	settings.Property = strings.TrimSpace(settings.Property)
	return settings, nil
}

// Configured reports whether the action has a target resource at all.
func (s Settings) Configured() bool {
	return s.Resource != ""
}
