package embeddings

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{name: "identical", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, expected: 1.0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0.0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, expected: -1.0},
		{name: "mismatched length", a: []float32{1}, b: []float32{1, 2}, expected: 0.0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 2}, expected: 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(float64(got-tc.expected)) > 0.0001 {
				t.Errorf("got %f, want %f", got, tc.expected)
			}
		})
	}
}

func TestTopK(t *testing.T) {
	query := []float32{1, 0, 0}
	vectors := [][]float32{
		{0, 1, 0},     // orthogonal
		{1, 0, 0},     // identical
		{-1, 0, 0},    // opposite
		{0.7, 0.7, 0}, // similar
	}

	top2 := TopK(query, vectors, 2)
	if len(top2) != 2 || top2[0] != 1 || top2[1] != 3 {
		t.Errorf("TopK = %v, want [1 3]", top2)
	}
	if all := TopK(query, vectors, 10); len(all) != 4 || all[3] != 2 {
		t.Errorf("TopK(k > n) = %v", all)
	}
}

// letterEmbedder maps a text to counts of a, b and c.
var letterEmbedder = EmbedderFunc(func(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{
			float32(strings.Count(s, "a")),
			float32(strings.Count(s, "b")),
			float32(strings.Count(s, "c")),
		}
	}
	return out, nil
})

func TestIndexSearch(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()
	if err := ix.Add(ctx, letterEmbedder, []string{"1", "2", "3"}, []string{"aaa", "bbb", "abab"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("Len = %d", ix.Len())
	}

	got, err := ix.Search(ctx, letterEmbedder, "bb", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].Key != "2" || got[1].Key != "3" {
		t.Errorf("matches = %+v", got)
	}
	if got[0].Score < 0.99 {
		t.Errorf("best score = %f", got[0].Score)
	}
}

func TestIndexAddErrors(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()
	if err := ix.Add(ctx, letterEmbedder, []string{"1"}, nil); err == nil {
		t.Error("mismatched keys and texts should fail")
	}
	failing := EmbedderFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	})
	if err := ix.Add(ctx, failing, []string{"1"}, []string{"x"}); err == nil || !strings.Contains(err.Error(), "provider down") {
		t.Errorf("err = %v", err)
	}
	if ix.Len() != 0 {
		t.Error("failed Add must not index anything")
	}
}
