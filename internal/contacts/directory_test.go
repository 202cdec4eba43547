package contacts

import (
	"context"
	"strings"
	"testing"

	"github.com/fleetchat/fleetd/internal/embeddings"
)

func TestSample(t *testing.T) {
	d := Sample(nil)
	all := d.All()
	if len(all) != 2 {
		t.Fatalf("Sample() has %d contacts, want 2", len(all))
	}
	if all[0].ID != 1 || all[0].Name != "Alice Wonderland" {
		t.Errorf("first contact = %+v", all[0])
	}
	if all[1].ID != 2 || all[1].Email != "bob@example.com" {
		t.Errorf("second contact = %+v", all[1])
	}
}

func TestLookup(t *testing.T) {
	d := Sample(nil)
	tests := []struct {
		name, dept string
		want       []string
	}{
		{"", "", []string{"Alice Wonderland", "Bob The Builder"}},
		{"alice", "", []string{"Alice Wonderland"}},
		{"BUILDER", "", []string{"Bob The Builder"}},
		{"  bob ", "build", []string{"Bob The Builder"}},
		{"bob", "wonderland", nil},
		{"", "Wonder", []string{"Alice Wonderland"}},
		{"carol", "", nil},
	}
	for _, tt := range tests {
		got := d.Lookup(tt.name, tt.dept)
		var names []string
		for _, c := range got {
			names = append(names, c.Name)
		}
		if strings.Join(names, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Lookup(%q, %q) = %v, want %v", tt.name, tt.dept, names, tt.want)
		}
	}
}

func TestAdd_AssignsIDs(t *testing.T) {
	d := NewDirectory(nil)
	a := d.Add(Contact{Name: "A"})
	b := d.Add(Contact{ID: 10, Name: "B"})
	c := d.Add(Contact{Name: "C"})
	if a.ID != 1 || b.ID != 10 || c.ID != 11 {
		t.Errorf("ids = %d, %d, %d; want 1, 10, 11", a.ID, b.ID, c.ID)
	}
	all := d.All()
	all[0].Name = "mutated"
	if d.All()[0].Name != "A" {
		t.Error("All() returned shared storage")
	}
}

// keywordEmbedder maps text onto two axes: building and fantasy.
var keywordEmbedder = embeddings.EmbedderFunc(func(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		s = strings.ToLower(s)
		v := []float32{0.01, 0.01}
		if strings.Contains(s, "build") || strings.Contains(s, "construction") {
			v[0] = 1
		}
		if strings.Contains(s, "wonder") || strings.Contains(s, "hatter") {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
})

func TestSimilar(t *testing.T) {
	d := Sample(nil)
	got, scores, err := d.Similar(context.Background(), keywordEmbedder, "someone in construction", 1)
	if err != nil {
		t.Fatalf("Similar() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "Bob The Builder" {
		t.Fatalf("Similar() = %+v, want Bob", got)
	}
	if scores[0] < 0.9 {
		t.Errorf("score = %v, want close to 1", scores[0])
	}

	d.Add(Contact{Name: "Humpty", Title: "Wall sitter", Department: "Wonderland"})
	got, _, err = d.Similar(context.Background(), keywordEmbedder, "wonderland", 3)
	if err != nil {
		t.Fatalf("Similar() after Add error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Similar() returned %d contacts after Add, want 3", len(got))
	}
}
