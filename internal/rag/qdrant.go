package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Reserved payload keys. Document metadata is stored alongside them.
const (
	payloadContent    = "content"
	payloadSource     = "source"
	payloadDocumentID = "document_id"
	payloadPosition   = "position"
	payloadFragmentID = "fragment_id"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantClient dials Qdrant without touching any collection. Used by the
// readiness check and by [NewQdrantStore].
func NewQdrantClient(cfg *QdrantConfig) (*qdrant.Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return client, nil
}

// NewQdrantStore connects to Qdrant and returns a store bound to
// cfg.Collection. The collection is not created here; call [QdrantStore.Reset]
// before a build.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}
	client, err := NewQdrantClient(cfg)
	if err != nil {
		return nil, err
	}
	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Reset drops the collection if present and recreates it empty with
// VectorSize dimensions and cosine distance.
func (s *QdrantStore) Reset(ctx context.Context) error {
	if err := s.Drop(ctx); err != nil {
		return err
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Drop deletes the collection if it exists.
func (s *QdrantStore) Drop(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Collection returns the name of the collection this store is bound to.
func (s *QdrantStore) Collection() string { return s.cfg.Collection }

// Dimensions returns the configured vector size.
func (s *QdrantStore) Dimensions() int { return int(s.cfg.VectorSize) }

// Exists reports whether the collection is present.
func (s *QdrantStore) Exists(ctx context.Context) (bool, error) {
	ok, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	return ok, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return n, nil
}

// Upsert stores or updates a batch of fragments with their embeddings.
func (s *QdrantStore) Upsert(ctx context.Context, fragments []Fragment, vectors [][]float32) error {
	if len(fragments) != len(vectors) {
		return fmt.Errorf("qdrant: upsert got %d fragments but %d vectors", len(fragments), len(vectors))
	}

	points := make([]*qdrant.PointStruct, 0, len(fragments))
	for i, f := range fragments {
		payload := make(map[string]any, len(f.Metadata)+5)
		for k, v := range f.Metadata {
			payload[k] = v
		}
		payload[payloadContent] = f.Content
		payload[payloadSource] = f.Source
		payload[payloadDocumentID] = f.DocumentID
		payload[payloadFragmentID] = f.ID
		payload[payloadPosition] = int64(f.Position)

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(f.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int) ([]Fragment, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	frags := make([]Fragment, 0, len(results))
	for _, r := range results {
		f := Fragment{
			ID:       r.GetId().GetUuid(),
			Score:    r.GetScore(),
			Metadata: make(map[string]string),
		}
		for k, v := range r.GetPayload() {
			switch k {
			case payloadContent:
				f.Content = v.GetStringValue()
			case payloadSource:
				f.Source = v.GetStringValue()
			case payloadDocumentID:
				f.DocumentID = v.GetStringValue()
			case payloadPosition:
				f.Position = int(v.GetIntegerValue())
			case payloadFragmentID:
				f.ID = v.GetStringValue()
			default:
				f.Metadata[k] = v.GetStringValue()
			}
		}
		frags = append(frags, f)
	}

	SortByScore(frags)
	return frags, nil
}

// Delete removes fragments from the collection by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
