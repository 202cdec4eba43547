// Package paths expands the prefixed file locations accepted in the
// fleetd config. A value such as "data:sessions.db" resolves against
// the data_dir, and a leading ~ expands to the home directory.
package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver maps prefix names ("data", "config") to directories.
// A nil *Resolver still expands ~ and otherwise returns paths as given.
type Resolver struct {
	prefixes map[string]string
	sorted   []string // longest first
}

// New builds a Resolver. Keys may be given with or without the
// trailing colon. Returns nil for an empty map.
func New(prefixes map[string]string) *Resolver {
	if len(prefixes) == 0 {
		return nil
	}
	m := make(map[string]string, len(prefixes))
	sorted := make([]string, 0, len(prefixes))
	for name, dir := range prefixes {
		key := name
		if !strings.HasSuffix(key, ":") {
			key += ":"
		}
		m[key] = ExpandHome(dir)
		sorted = append(sorted, key)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	return &Resolver{prefixes: m, sorted: sorted}
}

// Resolve expands path. Empty input stays empty.
func (r *Resolver) Resolve(path string) string {
	if path == "" {
		return ""
	}
	if r != nil {
		for _, prefix := range r.sorted {
			if rel, ok := strings.CutPrefix(path, prefix); ok {
				base := r.prefixes[prefix]
				if rel == "" {
					return base
				}
				return filepath.Join(base, rel)
			}
		}
	}
	return ExpandHome(path)
}

// Prefixes lists registered prefix names without colons, sorted.
func (r *Resolver) Prefixes() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.prefixes))
	for prefix := range r.prefixes {
		names = append(names, strings.TrimSuffix(prefix, ":"))
	}
	sort.Strings(names)
	return names
}

// UnknownPrefix reports the prefix name of a "name:rest" path whose
// prefix is not registered. Single-letter names are treated as Windows
// drive letters, not prefixes.
func (r *Resolver) UnknownPrefix(path string) (string, bool) {
	name, _, ok := strings.Cut(path, ":")
	if !ok || len(name) < 2 || !isPrefixName(name) {
		return "", false
	}
	if r != nil {
		if _, known := r.prefixes[name+":"]; known {
			return "", false
		}
	}
	return name, true
}

func isPrefixName(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// EnsureParent creates the directory that will hold file.
func EnsureParent(file string) error {
	dir := filepath.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}

// ExpandHome replaces a leading ~ or ~/ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}
