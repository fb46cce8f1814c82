package resource

import (
	"sort"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

// mergeFields projects configured source fields of the primary data tree
// into the child's data tree. Source values are copied by value; unset
// sources are skipped rather than written as nulls; target paths
// auto-vivify intermediate maps. Targets are applied in sorted order so the
// projection is deterministic.
func mergeFields(fields map[string]string, primary, child map[string]any) {
	targets := make([]string, 0, len(fields))
	for target := range fields {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	for _, target := range targets {
		source := fields[target]
		if source == SourceWholeData {
			domain.SetPath(child, target, domain.CopyTree(primary))
			continue
		}
		value, ok := domain.GetPath(primary, source)
		if !ok {
			continue
		}
		domain.SetPath(child, target, domain.CopyValue(value))
	}
}
