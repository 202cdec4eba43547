// Package embeddings ranks texts by semantic similarity. Vectors come
// from whatever provider the gateway resolves; this package only keeps
// them and scores queries against them.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EmbedBatch calls f.
func (f EmbedderFunc) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// TopK returns the indices of the k vectors most similar to query,
// best first. Ties keep input order.
func TopK(query []float32, vectors [][]float32, k int) []int {
	idx := make([]int, len(vectors))
	scores := make([]float32, len(vectors))
	for i, v := range vectors {
		idx[i] = i
		scores[i] = CosineSimilarity(query, v)
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

// Match is one search hit.
type Match struct {
	Key   string  `json:"key"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Index holds embedded texts under caller-chosen keys.
type Index struct {
	mu      sync.RWMutex
	keys    []string
	texts   []string
	vectors [][]float32
}

// NewIndex returns an empty index.
func NewIndex() *Index { return &Index{} }

// Len returns the number of indexed texts.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keys)
}

// Add embeds texts in one batch and indexes them under keys.
func (ix *Index) Add(ctx context.Context, e Embedder, keys, texts []string) error {
	if len(keys) != len(texts) {
		return fmt.Errorf("add: %d keys for %d texts", len(keys), len(texts))
	}
	if len(texts) == 0 {
		return nil
	}
	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.keys = append(ix.keys, keys...)
	ix.texts = append(ix.texts, texts...)
	ix.vectors = append(ix.vectors, vecs...)
	return nil
}

// Search embeds query and returns the k best matches.
func (ix *Index) Search(ctx context.Context, e Embedder, query string, k int) ([]Match, error) {
	vecs, err := e.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, errors.New("embed query: no vector returned")
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Match, 0, k)
	for _, i := range TopK(vecs[0], ix.vectors, k) {
		out = append(out, Match{
			Key:   ix.keys[i],
			Text:  ix.texts[i],
			Score: CosineSimilarity(vecs[0], ix.vectors[i]),
		})
	}
	return out, nil
}
