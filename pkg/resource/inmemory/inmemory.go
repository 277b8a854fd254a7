// Package inmemory is a keyword-overlap resource.Driver for tests and local runs.
package inmemory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/sensei/pkg/resource"
)

type Driver struct {
	mu     sync.RWMutex
	chunks map[string][]resource.Chunk // user -> chunks in index order
	limit  int
}

func NewDriver() *Driver {
	return &Driver{chunks: make(map[string][]resource.Chunk), limit: resource.DefaultLimit}
}

func (d *Driver) Index(_ context.Context, userID string, chunks []resource.Chunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	replaced := map[string]bool{}
	for _, c := range chunks {
		replaced[c.SourceID] = true
	}
	kept := slices.DeleteFunc(d.chunks[userID], func(c resource.Chunk) bool {
		return replaced[c.SourceID]
	})
	d.chunks[userID] = append(kept, chunks...)
	return nil
}

func (d *Driver) Context(_ context.Context, query, userID string, resourceIDs []string) ([]resource.Chunk, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		c     resource.Chunk
		score int
	}
	var candidates []scored
	for _, c := range d.chunks[userID] {
		if !slices.Contains(resourceIDs, c.SourceID) {
			continue
		}
		text := strings.ToLower(c.Title + " " + c.Content)
		n := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				n++
			}
		}
		candidates = append(candidates, scored{c: c, score: n})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]resource.Chunk, 0, d.limit)
	for _, s := range candidates {
		if len(out) == d.limit {
			break
		}
		out = append(out, s.c)
	}
	return out, nil
}

func (d *Driver) Close() error {
	return nil
}

var _ resource.Driver = (*Driver)(nil)
