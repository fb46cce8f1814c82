package domain

import "strings"

// GetPath reads a value from a nested data tree by dotted path. It descends
// through map[string]any nodes only; a missing or non-map intermediate
// reports false.
func GetPath(tree map[string]any, path string) (any, bool) {
	if tree == nil {
		return nil, false
	}
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	current := tree
	for i, segment := range segments {
		value, ok := current[segment]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return value, true
		}
		next, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// SetPath writes a value into a nested data tree by dotted path, creating
// intermediate maps as needed. A non-map intermediate is replaced.
func SetPath(tree map[string]any, path string, value any) {
	if tree == nil {
		return
	}
	segments := splitPath(path)
	if len(segments) == 0 {
		return
	}
	current := tree
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// CopyValue deep-copies a data tree value. Maps and slices are copied
// recursively; everything else is returned as-is.
func CopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CopyTree(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CopyValue(item)
		}
		return out
	default:
		return v
	}
}

// CopyTree deep-copies a data tree. A nil tree copies to an empty one.
func CopyTree(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for key, value := range tree {
		out[key] = CopyValue(value)
	}
	return out
}

func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
