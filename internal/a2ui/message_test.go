package a2ui

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestMessage_UnmarshalKinds(t *testing.T) {
	tests := []struct {
		in      string
		kind    Kind
		surface string
	}{
		{`{"beginRendering":{"surfaceId":"s1","root":"root"}}`, KindBeginRendering, "s1"},
		{`{"surfaceUpdate":{"surfaceId":"s2","components":[]}}`, KindSurfaceUpdate, "s2"},
		{`{"dataModelUpdate":{"surfaceId":"s3","patches":[]}}`, KindDataModelUpdate, "s3"},
		{`{"deleteSurface":{"surfaceId":"s4"}}`, KindDeleteSurface, "s4"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tt.in), &m); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if m.Kind() != tt.kind {
				t.Errorf("Kind() = %q, want %q", m.Kind(), tt.kind)
			}
			if m.SurfaceID() != tt.surface {
				t.Errorf("SurfaceID() = %q, want %q", m.SurfaceID(), tt.surface)
			}

			out, err := json.Marshal(m)
			if err != nil {
				t.Fatal(err)
			}
			var keys map[string]json.RawMessage
			json.Unmarshal(out, &keys)
			if _, ok := keys[string(tt.kind)]; !ok || len(keys) != 1 {
				t.Errorf("Marshal = %s, want single %q key", out, tt.kind)
			}
		})
	}
}

func TestMessage_UnmarshalRejects(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"renderSurface":{"surfaceId":"x"}}`), &m)
	if !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("unknown key: err = %v, want ErrUnknownMessage", err)
	}

	err = json.Unmarshal([]byte(`{"beginRendering":{"surfaceId":"a","root":"r"},"deleteSurface":{"surfaceId":"a"}}`), &m)
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("two keys: err = %v, want ambiguous", err)
	}

	if err := json.Unmarshal([]byte(`["beginRendering"]`), &m); err == nil {
		t.Error("array: expected error")
	}
}

func TestComponentSpec(t *testing.T) {
	in := `{"id":"c","component":{"Column":{"children":["a","b"],"alignment":"center"}},"weight":2}`
	var c Component
	if err := json.Unmarshal([]byte(in), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Component.Type() != TypeColumn {
		t.Fatalf("Type() = %q", c.Component.Type())
	}
	if got := c.Component.ChildIDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ChildIDs() = %v", got)
	}
	if c.Weight == nil || *c.Weight != 2 {
		t.Errorf("Weight = %v", c.Weight)
	}

	out, _ := json.Marshal(c)
	if !strings.Contains(string(out), `"explicitList":["a","b"]`) {
		t.Errorf("Marshal = %s, want canonical explicitList", out)
	}
}

func TestComponentSpec_Rejects(t *testing.T) {
	for _, in := range []string{
		`{"Slider":{}}`,
		`{"Text":{"text":"a"},"Card":{"child":"b"}}`,
		`{}`,
	} {
		var s ComponentSpec
		if err := json.Unmarshal([]byte(in), &s); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", in)
		}
	}
}

func TestComponentSpec_NullDivider(t *testing.T) {
	var s ComponentSpec
	if err := json.Unmarshal([]byte(`{"Divider":null}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.Type() != TypeDivider {
		t.Errorf("Type() = %q", s.Type())
	}
}

func TestTextValue_Forms(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Hello"`, "Hello"},
		{`{"literalString":"Hi"}`, "Hi"},
		{`{"path":"/user/name"}`, "$/user/name"},
	}
	for _, tt := range tests {
		var v TextValue
		if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if v.String() != tt.want {
			t.Errorf("Unmarshal(%s).String() = %q, want %q", tt.in, v.String(), tt.want)
		}
	}
}

func TestActionValue_Forms(t *testing.T) {
	data := map[string]any{"contact": map[string]any{"email": "alice@example.com"}}
	tests := []struct {
		in   string
		want any
	}{
		{`"call"`, "call"},
		{`3`, 3.0},
		{`true`, true},
		{`{"literalNumber":1.5}`, 1.5},
		{`{"path":"/contact/email"}`, "alice@example.com"},
		{`{"path":"/missing"}`, nil},
	}
	for _, tt := range tests {
		var v ActionValue
		if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if got := v.Resolve(data); got != tt.want {
			t.Errorf("Resolve(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChildren_MarshalEmpty(t *testing.T) {
	out, err := json.Marshal(Children{})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"explicitList":[]}` {
		t.Errorf("Marshal = %s", out)
	}
	out, _ = json.Marshal(Children{Template: &Template{ComponentID: "row", DataBinding: "/items"}})
	if string(out) != `{"template":{"componentId":"row","dataBinding":"/items"}}` {
		t.Errorf("Marshal template = %s", out)
	}
}

func TestDataModelUpdate_AllPatches(t *testing.T) {
	in := `{"surfaceId":"s","path":"/card","patches":[{"path":"/x","value":1}],
		"contents":[{"key":"title","valueString":"Dynamic Title"},
		{"key":"meta","valueMap":[{"key":"count","valueNumber":2},{"key":"ok","valueBoolean":true}]}]}`
	var u DataModelUpdate
	if err := json.Unmarshal([]byte(in), &u); err != nil {
		t.Fatal(err)
	}
	got := u.AllPatches()
	if len(got) != 2 {
		t.Fatalf("AllPatches() len = %d, want 2", len(got))
	}
	want := DataPatch{Path: "/card", Value: map[string]any{
		"title": "Dynamic Title",
		"meta":  map[string]any{"count": 2.0, "ok": true},
	}}
	if !reflect.DeepEqual(got[1], want) {
		t.Errorf("contents patch = %#v, want %#v", got[1], want)
	}
}

func TestMarshalMessages(t *testing.T) {
	out, err := MarshalMessages(nil)
	if err != nil || string(out) != "[]" {
		t.Errorf("MarshalMessages(nil) = %s, %v", out, err)
	}
	out, _ = MarshalMessages([]Message{{DeleteSurface: &DeleteSurface{SurfaceID: "a<b"}}})
	if string(out) != `[{"deleteSurface":{"surfaceId":"a<b"}}]` {
		t.Errorf("MarshalMessages = %s", out)
	}
}
