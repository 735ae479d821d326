package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger pings a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the shared Qdrant gRPC client.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns "qdrant".
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// IndexPinger reports ready once the engine serves an index that holds at
// least one fragment.
type IndexPinger struct {
	// engine exposes the index currently being served.
	engine asker
}

// NewIndexPinger constructs an IndexPinger over the engine's current index.
func NewIndexPinger(engine asker) *IndexPinger {
	return &IndexPinger{engine: engine}
}

// Name returns "index".
func (p *IndexPinger) Name() string { return "index" }

// Ping fails when no index is loaded or the loaded index is empty.
func (p *IndexPinger) Ping(_ context.Context) error {
	ix := p.engine.Index()
	if ix == nil {
		return errors.New("no index loaded")
	}
	if m, ok := ix.(manifester); ok && m.Manifest().Fragments == 0 {
		return errors.New("index is empty")
	}
	return nil
}
