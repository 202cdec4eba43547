package paths

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	r := New(map[string]string{"data": "/var/lib/fleetd", "config:": "/etc/fleetd"})

	tests := []struct {
		in, want string
	}{
		{"data:sessions.db", "/var/lib/fleetd/sessions.db"},
		{"data:", "/var/lib/fleetd"},
		{"config:contacts.vcf", "/etc/fleetd/contacts.vcf"},
		{"/tmp/usage.db", "/tmp/usage.db"},
		{"relative.db", "relative.db"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve_LongerPrefixFirst(t *testing.T) {
	r := New(map[string]string{"data": "/a", "database": "/b"})
	if got := r.Resolve("database:x"); got != "/b/x" {
		t.Errorf("Resolve = %q, want /b/x", got)
	}
}

func TestResolve_NilReceiver(t *testing.T) {
	var r *Resolver
	if got := r.Resolve("data:x"); got != "data:x" {
		t.Errorf("nil Resolve = %q, want unchanged", got)
	}
	if r.Prefixes() != nil {
		t.Error("nil Prefixes should be nil")
	}
	if New(nil) != nil {
		t.Error("New(nil) should return nil")
	}
}

func TestPrefixes(t *testing.T) {
	r := New(map[string]string{"data": "/a", "config": "/b"})
	if got := r.Prefixes(); !reflect.DeepEqual(got, []string{"config", "data"}) {
		t.Errorf("Prefixes() = %v", got)
	}
}

func TestUnknownPrefix(t *testing.T) {
	r := New(map[string]string{"data": "/a", "config": "/b"})
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"data:x.db", "", false},
		{"config:", "", false},
		{"dta:x.db", "dta", true},
		{"kb2:notes", "kb2", true},
		{"C:/Users/x", "", false},
		{"/tmp/x.db", "", false},
		{"x.db", "", false},
		{"http://host/x", "http", true},
		{"Data:x", "", false},
	}
	for _, tt := range tests {
		got, ok := r.UnknownPrefix(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("UnknownPrefix(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	var nilR *Resolver
	if got, ok := nilR.UnknownPrefix("data:x"); !ok || got != "data" {
		t.Errorf("nil UnknownPrefix = %q, %v", got, ok)
	}
}

func TestEnsureParent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a", "b", "sessions.db")
	if err := EnsureParent(file); err != nil {
		t.Fatalf("EnsureParent: %v", err)
	}
	if info, err := os.Stat(filepath.Join(dir, "a", "b")); err != nil || !info.IsDir() {
		t.Fatalf("parent not created: %v", err)
	}
	if err := EnsureParent("relative.db"); err != nil {
		t.Errorf("EnsureParent(relative) = %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/fleetd", filepath.Join(home, "fleetd")},
		{"~other/x", "~other/x"},
		{"/abs", "/abs"},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
