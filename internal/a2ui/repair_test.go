package a2ui

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		key  string
		want string
	}{
		{"single quotes", `{'t': 'hello'}`, "t", "hello"},
		{"apostrophe in double quotes", `{"t": "Alice's card", 'k': 'v'}`, "t", "Alice's card"},
		{"double quote inside single", `{'t': 'say "hi"'}`, "t", `say "hi"`},
		{"escaped single quote", `{'t': 'it\'s'}`, "t", "it's"},
		{"trailing comma", `{"t": "x",}`, "t", "x"},
		{"comments", "{\n  // greeting\n  \"t\": \"x\" /* inline */\n}", "t", "x"},
		{"comment with quote", "{\"t\": \"x\" // don't\n}", "t", "x"},
		{"fenced", "```json\n{\"t\": \"x\",}\n```", "t", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Repair(tt.in)
			if err != nil {
				t.Fatalf("Repair(%q): %v", tt.in, err)
			}
			var m map[string]any
			if err := json.Unmarshal([]byte(out), &m); err != nil {
				t.Fatalf("repaired output %q is not JSON: %v", out, err)
			}
			if m[tt.key] != tt.want {
				t.Errorf("%s = %v, want %q", tt.key, m[tt.key], tt.want)
			}
		})
	}
}

func TestRepair_Array(t *testing.T) {
	out, err := Repair(`[{'deleteSurface': {'surfaceId': 'main'}}, /* trailing */]`)
	if err != nil {
		t.Fatal(err)
	}
	var arr []map[string]any
	if err := json.Unmarshal([]byte(out), &arr); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if len(arr) != 1 {
		t.Errorf("len = %d, want 1", len(arr))
	}
}

func TestRepair_Unfixable(t *testing.T) {
	for _, in := range []string{`{"a": `, `not json`, `[{"a" 1}]`} {
		if _, err := Repair(in); !errors.Is(err, ErrMalformedJSON) {
			t.Errorf("Repair(%q) err = %v, want ErrMalformedJSON", in, err)
		}
	}
}
