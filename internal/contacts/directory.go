// Package contacts is the people directory behind the get_contact_info
// tool. It starts from a small built-in sample, can be loaded from a
// vCard file, and can rank entries semantically through an embedder.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fleetchat/fleetd/internal/embeddings"
)

// Contact is one directory entry. The JSON shape is what tool results
// carry back into prompts.
type Contact struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	AvatarURL  string `json:"avatar_url"`
}

// searchText is what gets embedded for semantic lookup.
func (c Contact) searchText() string {
	parts := []string{c.Name}
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	if c.Department != "" {
		parts = append(parts, c.Department)
	}
	return strings.Join(parts, ", ")
}

// Directory is a concurrency-safe set of contacts ordered by ID.
type Directory struct {
	mu       sync.RWMutex
	contacts []Contact
	nextID   int
	index    *embeddings.Index // built lazily by Similar; nil after any write
	logger   *slog.Logger
}

// NewDirectory returns an empty directory.
func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{nextID: 1, logger: logger.With("component", "contacts")}
}

// Sample returns the built-in directory used when no vCard file is
// configured.
func Sample(logger *slog.Logger) *Directory {
	d := NewDirectory(logger)
	d.Add(Contact{
		Name:       "Alice Wonderland",
		Title:      "Mad Hatter",
		Email:      "alice@example.com",
		Phone:      "+1-555-123-4567",
		Department: "Wonderland",
		AvatarURL:  "https://example.com/alice.jpg",
	})
	d.Add(Contact{
		Name:       "Bob The Builder",
		Title:      "Construction Engineer",
		Email:      "bob@example.com",
		Phone:      "+1-555-765-4321",
		Department: "Building",
		AvatarURL:  "https://example.com/bob.jpg",
	})
	return d
}

// Add stores c. A zero ID is assigned the next free one; the stored
// contact is returned.
func (d *Directory) Add(c Contact) Contact {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.ID == 0 {
		c.ID = d.nextID
	}
	if c.ID >= d.nextID {
		d.nextID = c.ID + 1
	}
	d.contacts = append(d.contacts, c)
	sort.SliceStable(d.contacts, func(i, j int) bool { return d.contacts[i].ID < d.contacts[j].ID })
	d.index = nil
	return c
}

// Len is the number of contacts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.contacts)
}

// All returns a copy of every contact.
func (d *Directory) All() []Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Contact(nil), d.contacts...)
}

// Lookup returns contacts whose name contains name and whose
// department contains department, both case-insensitively. Empty
// arguments match everything.
func (d *Directory) Lookup(name, department string) []Contact {
	name = strings.ToLower(strings.TrimSpace(name))
	department = strings.ToLower(strings.TrimSpace(department))

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Contact
	for _, c := range d.contacts {
		if name != "" && !strings.Contains(strings.ToLower(c.Name), name) {
			continue
		}
		if department != "" && !strings.Contains(strings.ToLower(c.Department), department) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Similar ranks contacts against a free-form query by embedding
// similarity and returns the top k with their scores.
func (d *Directory) Similar(ctx context.Context, e embeddings.Embedder, query string, k int) ([]Contact, []float32, error) {
	ix, err := d.ensureIndex(ctx, e)
	if err != nil {
		return nil, nil, err
	}
	matches, err := ix.Search(ctx, e, query, k)
	if err != nil {
		return nil, nil, err
	}

	d.mu.RLock()
	byID := make(map[int]Contact, len(d.contacts))
	for _, c := range d.contacts {
		byID[c.ID] = c
	}
	d.mu.RUnlock()

	out := make([]Contact, 0, len(matches))
	scores := make([]float32, 0, len(matches))
	for _, m := range matches {
		id, _ := strconv.Atoi(m.Key)
		c, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, c)
		scores = append(scores, m.Score)
	}
	return out, scores, nil
}

func (d *Directory) ensureIndex(ctx context.Context, e embeddings.Embedder) (*embeddings.Index, error) {
	d.mu.RLock()
	ix := d.index
	snapshot := append([]Contact(nil), d.contacts...)
	d.mu.RUnlock()
	if ix != nil {
		return ix, nil
	}

	keys := make([]string, len(snapshot))
	texts := make([]string, len(snapshot))
	for i, c := range snapshot {
		keys[i] = strconv.Itoa(c.ID)
		texts[i] = c.searchText()
	}
	ix = embeddings.NewIndex()
	if err := ix.Add(ctx, e, keys, texts); err != nil {
		return nil, fmt.Errorf("index contacts: %w", err)
	}
	d.logger.Debug("contact index built", "contacts", len(snapshot))

	d.mu.Lock()
	if d.index == nil && len(d.contacts) == len(snapshot) {
		d.index = ix
	}
	d.mu.Unlock()
	return ix, nil
}
