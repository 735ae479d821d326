//go:build integration

package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/rag"
)

// qdrantTestManager returns a qdrant-backed Manager against the server at
// QDRANT_HOST, skipping the test when none is reachable.
//
// Run with:
//
//	docker run -p 6334:6334 qdrant/qdrant
//	QDRANT_HOST=localhost go test -tags=integration -run Qdrant ./internal/index/
func qdrantTestManager(t *testing.T, retain bool) (*Manager, *rag.QdrantConfig) {
	t.Helper()
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}
	port := 6334
	if p := os.Getenv("QDRANT_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			t.Fatalf("QDRANT_PORT: %v", err)
		}
		port = n
	}
	qc := &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: "docqa-it-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		APIKey:     os.Getenv("QDRANT_API_KEY"),
	}

	conn, err := rag.NewQdrantStore(&rag.QdrantConfig{Host: host, Port: port, Collection: qc.Collection, APIKey: qc.APIKey})
	if err != nil {
		t.Skipf("qdrant client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exists(ctx); err != nil {
		_ = conn.Close()
		t.Skipf("qdrant not reachable at %s:%d: %v", host, port, err)
	}
	_ = conn.Close()

	m, err := NewManager(Options{
		Backend:          BackendQdrant,
		Embedder:         embedder.NewHashEmbedder(0),
		EmbeddingModel:   "hash/hash",
		Chunker:          chunker.New(chunker.Config{Size: 400}),
		Qdrant:           qc,
		TopK:             3,
		RetainSuperseded: retain,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, qc
}

func collectionExists(t *testing.T, qc *rag.QdrantConfig, name string) bool {
	t.Helper()
	cfg := *qc
	cfg.Collection = name
	qs, err := rag.NewQdrantStore(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer qs.Close()
	ok, err := qs.Exists(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func cleanupCollection(t *testing.T, qc *rag.QdrantConfig, name string) {
	t.Helper()
	cfg := *qc
	cfg.Collection = name
	if qs, err := rag.NewQdrantStore(&cfg); err == nil {
		_ = qs.Drop(context.Background())
		_ = qs.Close()
	}
}

func TestQdrant_BuildLoadRoundTrip(t *testing.T) {
	m, qc := qdrantTestManager(t, false)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "storage")

	built, err := m.Build(ctx, dir, testDocs())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer built.Close()
	t.Cleanup(func() { cleanupCollection(t, qc, built.Manifest().Collection) })

	if !strings.HasPrefix(built.Manifest().Collection, qc.Collection+"-") {
		t.Errorf("collection = %q, want a per-build name under %q", built.Manifest().Collection, qc.Collection)
	}

	loaded, err := m.Load(ctx, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()

	got, err := loaded.Retrieve(ctx, "zebra quarterly newsletter", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DocumentID != "data/zebra.txt" {
		t.Fatalf("Retrieve = %+v", got)
	}
}

func TestQdrant_LoadRejectsPointCountMismatch(t *testing.T) {
	m, qc := qdrantTestManager(t, false)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "storage")

	ix, err := m.Build(ctx, dir, testDocs())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer ix.Close()
	t.Cleanup(func() { cleanupCollection(t, qc, ix.Manifest().Collection) })

	frags, err := ix.Retrieve(ctx, "Barre Savings Bank", 1)
	if err != nil || len(frags) == 0 {
		t.Fatalf("Retrieve: %v, %d results", err, len(frags))
	}
	if err := ix.store.Delete(ctx, []string{frags[0].ID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := m.Load(ctx, dir); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("want ErrCorruptIndex after losing a point, got %v", err)
	}
}

func TestQdrant_RebuildLeavesServingCollection(t *testing.T) {
	m, qc := qdrantTestManager(t, true)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "storage")

	old, err := m.Build(ctx, dir, testDocs())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	oldCollection := old.Manifest().Collection
	t.Cleanup(func() { cleanupCollection(t, qc, oldCollection) })

	changed := testDocs()
	changed[2].Body = "The zebra quarterly newsletter now also covers okapis."
	changed[2].Metadata = map[string]string{"content_sha256": "changed"}
	fresh, err := m.BuildOrLoad(ctx, dir, changed)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer fresh.Close()
	t.Cleanup(func() { cleanupCollection(t, qc, fresh.Manifest().Collection) })

	if fresh.Manifest().Collection == oldCollection {
		t.Fatal("rebuild reused the serving collection")
	}
	got, err := old.Retrieve(ctx, "zebra quarterly newsletter", 3)
	if err != nil || len(got) != 3 {
		t.Fatalf("old index must keep serving during a rebuild: %v, %d results", err, len(got))
	}

	if err := old.Retire(ctx); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if collectionExists(t, qc, oldCollection) {
		t.Error("retired collection still exists")
	}
	if !collectionExists(t, qc, fresh.Manifest().Collection) {
		t.Error("current collection was dropped")
	}
}

func TestQdrant_BuildDropsSupersededCollection(t *testing.T) {
	m, qc := qdrantTestManager(t, false)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "storage")

	first, err := m.Build(ctx, dir, testDocs())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_ = first.Close()
	firstCollection := first.Manifest().Collection
	t.Cleanup(func() { cleanupCollection(t, qc, firstCollection) })

	second, err := m.Build(ctx, dir, testDocs())
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	defer second.Close()
	t.Cleanup(func() { cleanupCollection(t, qc, second.Manifest().Collection) })

	if collectionExists(t, qc, firstCollection) {
		t.Error("superseded collection should be dropped when not retained")
	}
}
