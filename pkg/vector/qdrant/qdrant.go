// Package qdrant provides a Qdrant vector database driver implementation.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/vector"
)

const (
	// DefaultCollectionName is the collection used when none is configured.
	DefaultCollectionName = "sensei_episodic"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadDocID    = "doc_id"
	payloadUserID   = "user_id"
	payloadContent  = "content"
	payloadMetadata = "metadata"
)

// QdrantDriver implements vector.VectorDriver using Qdrant's gRPC API.
type QdrantDriver struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the Qdrant gRPC address (e.g., "localhost:6334").
	Target string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the embedding width used when creating the collection.
	Dimensions uint

	// APIKey authenticates against managed Qdrant deployments.
	APIKey string
}

// NewQdrantDriver connects to Qdrant and ensures the collection exists.
func NewQdrantDriver(ctx context.Context, c Config, logger *zap.Logger) (*QdrantDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Target == "" {
		return nil, fmt.Errorf("qdrant target is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	d := &QdrantDriver{
		client:     client,
		collection: collection,
		logger:     logger,
	}

	if err := d.ensureCollection(ctx, c.Dimensions); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensuring collection %q: %w", collection, err)
	}

	logger.Info("connected to qdrant",
		zap.String("target", c.Target),
		zap.String("collection", collection),
	)

	return d, nil
}

func splitTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// bare host
		return target, DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

func (d *QdrantDriver) ensureCollection(ctx context.Context, dims uint) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	_, err = d.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: d.collection,
		FieldName:      payloadUserID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", payloadUserID, err)
	}

	return nil
}

// pointID maps an arbitrary document ID onto the UUID space Qdrant accepts.
func pointID(docID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String())
}

// Add upserts documents.
func (d *QdrantDriver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		meta := make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocID:    doc.ID,
				payloadUserID:   doc.UserID,
				payloadContent:  doc.Content,
				payloadMetadata: meta,
			}),
		})
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant",
		zap.Int("count", len(docs)),
	)

	return nil
}

func documentFromPayload(payload map[string]*qdrant.Value) vector.Document {
	doc := vector.Document{
		ID:      payload[payloadDocID].GetStringValue(),
		UserID:  payload[payloadUserID].GetStringValue(),
		Content: payload[payloadContent].GetStringValue(),
	}
	if fields := payload[payloadMetadata].GetStructValue().GetFields(); len(fields) > 0 {
		doc.Metadata = make(map[string]string, len(fields))
		for k, v := range fields {
			doc.Metadata[k] = v.GetStringValue()
		}
	}
	return doc
}

// Query finds the topK most similar documents of userID.
func (d *QdrantDriver) Query(ctx context.Context, embedding []float32, topK int, userID string) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadUserID, userID),
			},
		},
		Limit:       qdrant.PtrOf(uint64(topK)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		results = append(results, vector.QueryResult{
			Document: documentFromPayload(p.GetPayload()),
			Score:    p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant",
		zap.String("user_id", userID),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves documents by their IDs.
func (d *QdrantDriver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pids,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		doc := documentFromPayload(p.GetPayload())
		doc.Embedding = p.GetVectors().GetVector().GetData()
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (d *QdrantDriver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}

	wait := true
	if _, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pids...),
	}); err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant",
		zap.Int("count", len(ids)),
	)

	return nil
}

// Close releases the gRPC connection.
func (d *QdrantDriver) Close() error {
	return d.client.Close()
}

var _ vector.VectorDriver = (*QdrantDriver)(nil)
