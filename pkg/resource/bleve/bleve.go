// Package bleve provides a full-text resource.Driver backed by a bleve index.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/resource"
)

const (
	fieldUserID   = "user_id"
	fieldSourceID = "source_id"
	fieldTitle    = "title"
	fieldContent  = "content"
	fieldPosition = "position"
)

// Config holds configuration for the bleve driver.
type Config struct {
	// IndexPath is the on-disk index directory. Empty keeps the index in
	// memory.
	IndexPath string

	// Limit caps results per Context call. Defaults to resource.DefaultLimit.
	Limit int
}

// Driver implements resource.Driver on bleve.
type Driver struct {
	index  bleve.Index
	limit  int
	logger *zap.Logger
}

type chunkDoc struct {
	UserID   string `json:"user_id"`
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

func indexMapping() mapping.IndexMapping {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldUserID, kw)
	doc.AddFieldMappingsAt(fieldSourceID, kw)
	doc.AddFieldMappingsAt(fieldTitle, bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt(fieldContent, bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt(fieldPosition, bleve.NewNumericFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// NewDriver opens or creates the index.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		idx bleve.Index
		err error
	)
	switch c.IndexPath {
	case "":
		idx, err = bleve.NewMemOnly(indexMapping())
	default:
		idx, err = bleve.Open(c.IndexPath)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(c.IndexPath, indexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening resource index: %w", err)
	}

	limit := c.Limit
	if limit <= 0 {
		limit = resource.DefaultLimit
	}

	logger.Info("resource index ready", zap.String("path", c.IndexPath))

	return &Driver{index: idx, limit: limit, logger: logger}, nil
}

func docID(userID, sourceID string, pos int) string {
	return userID + "/" + sourceID + "/" + strconv.Itoa(pos)
}

// Index stores chunks, replacing whatever the user previously indexed for
// the same sources. Position is the chunk's order among chunks of the same
// source within this call.
func (d *Driver) Index(ctx context.Context, userID string, chunks []resource.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := d.index.NewBatch()
	stale, err := d.existing(ctx, userID, chunks)
	if err != nil {
		return err
	}
	for _, id := range stale {
		batch.Delete(id)
	}

	positions := map[string]int{}
	for _, c := range chunks {
		pos := positions[c.SourceID]
		positions[c.SourceID] = pos + 1

		if err := batch.Index(docID(userID, c.SourceID, pos), chunkDoc{
			UserID:   userID,
			SourceID: c.SourceID,
			Title:    c.Title,
			Content:  c.Content,
			Position: pos,
		}); err != nil {
			return fmt.Errorf("batching chunk: %w", err)
		}
	}

	if err := d.index.Batch(batch); err != nil {
		return fmt.Errorf("indexing chunks: %w", err)
	}

	d.logger.Debug("indexed resource chunks",
		zap.String("user_id", userID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// maxChunksPerSource bounds the stale-chunk lookup on re-index.
const maxChunksPerSource = 10000

func (d *Driver) existing(ctx context.Context, userID string, chunks []resource.Chunk) ([]string, error) {
	seen := map[string]bool{}
	var sources []query.Query
	for _, c := range chunks {
		if !seen[c.SourceID] {
			seen[c.SourceID] = true
			sources = append(sources, termQuery(fieldSourceID, c.SourceID))
		}
	}

	q := bleve.NewConjunctionQuery(termQuery(fieldUserID, userID), bleve.NewDisjunctionQuery(sources...))
	res, err := d.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, maxChunksPerSource*len(sources), 0, false))
	if err != nil {
		return nil, fmt.Errorf("finding indexed chunks: %w", err)
	}

	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

func termQuery(field, term string) query.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

// Context searches the user's chunks of resourceIDs. When the query text
// matches nothing, the leading chunks of those resources are returned.
func (d *Driver) Context(ctx context.Context, text, userID string, resourceIDs []string) ([]resource.Chunk, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}

	sources := make([]query.Query, len(resourceIDs))
	for i, id := range resourceIDs {
		sources[i] = termQuery(fieldSourceID, id)
	}
	scope := []query.Query{
		termQuery(fieldUserID, userID),
		bleve.NewDisjunctionQuery(sources...),
	}

	if strings.TrimSpace(text) != "" {
		title := bleve.NewMatchQuery(text)
		title.SetField(fieldTitle)
		content := bleve.NewMatchQuery(text)
		content.SetField(fieldContent)

		q := bleve.NewConjunctionQuery(append(scope, bleve.NewDisjunctionQuery(title, content))...)
		chunks, err := d.search(ctx, bleve.NewSearchRequestOptions(q, d.limit, 0, false))
		if err != nil || len(chunks) > 0 {
			return chunks, err
		}
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(scope...), d.limit, 0, false)
	req.SortBy([]string{fieldSourceID, fieldPosition})
	return d.search(ctx, req)
}

func (d *Driver) search(ctx context.Context, req *bleve.SearchRequest) ([]resource.Chunk, error) {
	req.Fields = []string{fieldTitle, fieldContent, fieldSourceID}

	res, err := d.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching resources: %w", err)
	}

	chunks := make([]resource.Chunk, 0, len(res.Hits))
	for _, hit := range res.Hits {
		c := resource.Chunk{}
		c.Title, _ = hit.Fields[fieldTitle].(string)
		c.Content, _ = hit.Fields[fieldContent].(string)
		c.SourceID, _ = hit.Fields[fieldSourceID].(string)
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Close closes the index.
func (d *Driver) Close() error {
	return d.index.Close()
}

var _ resource.Driver = (*Driver)(nil)
