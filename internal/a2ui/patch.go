package a2ui

import (
	"fmt"
	"strings"
)

// SkippedPatch is a patch ApplyPatches could not apply.
type SkippedPatch struct {
	Patch  DataPatch
	Reason string
}

// ApplyPatches applies patches to data in order and returns the ones
// it skipped. Paths are slash-separated with an optional leading
// slash. A root path merges an object value into data. Missing
// intermediate objects are created; a non-object intermediate stops
// that patch.
func ApplyPatches(data map[string]any, patches []DataPatch) []SkippedPatch {
	var skipped []SkippedPatch
	for _, p := range patches {
		if reason := applyPatch(data, p); reason != "" {
			skipped = append(skipped, SkippedPatch{Patch: p, Reason: reason})
		}
	}
	return skipped
}

func applyPatch(data map[string]any, p DataPatch) string {
	segs := splitPath(p.Path)
	if len(segs) == 0 {
		obj, ok := p.Value.(map[string]any)
		if !ok {
			return fmt.Sprintf("root patch needs an object value, got %T", p.Value)
		}
		for k, v := range obj {
			data[k] = deepCopyValue(v)
		}
		return ""
	}

	cur := data
	for i, seg := range segs[:len(segs)-1] {
		next, exists := cur[seg]
		if !exists || next == nil {
			child := make(map[string]any)
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Sprintf("%q is a %T, not an object", "/"+strings.Join(segs[:i+1], "/"), next)
		}
		cur = child
	}
	cur[segs[len(segs)-1]] = deepCopyValue(p.Value)
	return ""
}

// Lookup returns the value at path in data.
func Lookup(data map[string]any, path string) (any, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return data, true
	}
	var cur any = data
	for _, seg := range segs {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	}
	return v
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}
