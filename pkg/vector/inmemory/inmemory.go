// Package inmemory provides a brute-force vector driver held in process memory.
package inmemory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/papercomputeco/sensei/pkg/vector"
)

// Driver implements vector.VectorDriver with exact cosine similarity search.
type Driver struct {
	mu    sync.RWMutex
	docs  map[string]vector.Document
	order []string
}

// NewDriver creates an empty in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{docs: make(map[string]vector.Document)}
}

func clone(doc vector.Document) vector.Document {
	doc.Embedding = append([]float32(nil), doc.Embedding...)
	if doc.Metadata != nil {
		doc.Metadata = maps.Clone(doc.Metadata)
	}
	return doc
}

// Add stores or replaces documents.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document id is required")
		}
		if _, ok := d.docs[doc.ID]; !ok {
			d.order = append(d.order, doc.ID)
		}
		d.docs[doc.ID] = clone(doc)
	}
	return nil
}

// Query ranks the user's documents by cosine similarity. Ties keep
// insertion order.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int, userID string) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []vector.QueryResult
	for _, id := range d.order {
		doc, ok := d.docs[id]
		if !ok || doc.UserID != userID {
			continue
		}
		if len(doc.Embedding) != len(embedding) {
			return nil, fmt.Errorf("%w: doc %s has %d, query has %d",
				vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), len(embedding))
		}
		results = append(results, vector.QueryResult{
			Document: clone(doc),
			Score:    Cosine(embedding, doc.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Get returns the stored documents for ids, skipping unknown ones.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			docs = append(docs, clone(doc))
		}
	}
	return docs, nil
}

// Delete removes documents by ID.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}

	kept := d.order[:0]
	for _, id := range d.order {
		if _, ok := d.docs[id]; ok {
			kept = append(kept, id)
		}
	}
	d.order = kept
	return nil
}

func (d *Driver) Close() error {
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.VectorDriver = (*Driver)(nil)
