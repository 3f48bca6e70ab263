// Package knowledge owns the queryable knowledge base: the chunk store, the
// lexical and vector indices, and the retriever over them. A build produces
// an immutable snapshot that is swapped in atomically, so queries in flight
// keep the snapshot they started with while a rebuild runs.
package knowledge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
)

// Snapshot is one immutable build of the knowledge base.
type Snapshot struct {
	store       *store.ChunkStore
	retriever   *retrieval.Retriever
	vectorIndex vector.Index
	builtAt     time.Time
}

// Stats describes the current snapshot for the status endpoint.
type Stats struct {
	Chunks    int       `json:"chunks"`
	Documents int       `json:"documents"`
	Vectors   int       `json:"vectors"`
	BuiltAt   time.Time `json:"built_at"`
	DiskBytes int64     `json:"disk_bytes"`
}

// Base builds, persists, and serves knowledge base snapshots. It implements
// the retrieval and chunk lookup surfaces the pipeline depends on.
type Base struct {
	cfg      *config.Config
	embedder embedding.Embedder
	logger   *zap.Logger

	snapshot atomic.Pointer[Snapshot]
}

// New creates a knowledge base. It serves nothing until Build or Load
// installs a snapshot.
func New(cfg *config.Config, embedder embedding.Embedder, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
	}
}

// Ready reports whether a snapshot is installed.
func (b *Base) Ready() bool {
	return b.snapshot.Load() != nil
}

// Retrieve runs hybrid retrieval against the current snapshot.
func (b *Base) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievalCandidate, error) {
	snap := b.snapshot.Load()
	if snap == nil {
		return nil, fmt.Errorf("retrieve: knowledge base not ready")
	}
	return snap.retriever.Retrieve(ctx, query, k)
}

// Get returns the chunk with the given ID from the current snapshot, or nil.
func (b *Base) Get(id string) *models.Chunk {
	snap := b.snapshot.Load()
	if snap == nil {
		return nil
	}
	return snap.store.Get(id)
}

// Stats returns counts for the current snapshot. Disk usage covers the
// persisted database and vector index files.
func (b *Base) Stats() Stats {
	snap := b.snapshot.Load()
	if snap == nil {
		return Stats{}
	}
	docs := map[string]bool{}
	for _, c := range snap.store.All() {
		docs[c.SourceDocID] = true
	}
	disk, err := storage.DiskUsageBytes(b.cfg.Storage.DatabasePath, b.cfg.Storage.VectorIndexPath)
	if err != nil {
		b.logger.Warn("disk usage check failed", zap.Error(err))
	}
	return Stats{
		Chunks:    snap.store.Len(),
		Documents: len(docs),
		Vectors:   snap.vectorIndex.Size(),
		BuiltAt:   snap.builtAt,
		DiskBytes: disk,
	}
}

// Build ingests the corpus under paths, embeds and indexes it, installs the
// resulting snapshot, and persists it. An embedding batch that fails is
// logged and its chunks stay lexical-only; the build fails only when the
// corpus yields no chunks at all.
func (b *Base) Build(ctx context.Context, paths []string) error {
	started := time.Now()

	ing := ingest.New(&b.cfg.Ingest, b.logger)
	chunks, err := ing.IngestPaths(paths)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	b.logger.Info("corpus ingested",
		zap.Int("chunks", len(chunks)),
		zap.Strings("paths", paths))

	snap, err := b.buildSnapshot(ctx, chunks)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	b.snapshot.Store(snap)

	if err := b.persist(ctx, chunks, snap.vectorIndex); err != nil {
		// The in-memory snapshot is live; losing persistence only costs
		// a re-ingest on next start.
		b.logger.Warn("snapshot persistence failed", zap.Error(err))
	}

	b.logger.Info("knowledge base built",
		zap.Int("chunks", snap.store.Len()),
		zap.Int("vectors", snap.vectorIndex.Size()),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// Load restores the last persisted snapshot. The chunk database and the
// vector index file form a pair; a missing or empty half fails the load,
// since lexical-only or vector-only serving would silently change results.
func (b *Base) Load(ctx context.Context) error {
	db, err := storage.NewSQLiteStore(b.cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer db.Close()

	chunks, err := db.LoadChunks(ctx)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("load: chunk database %s is empty", b.cfg.Storage.DatabasePath)
	}

	chunkStore, err := store.New(chunks)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	vectorIndex, err := vector.NewMemoryIndex(b.embedder.Dimensions())
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := vectorIndex.Load(b.cfg.Storage.VectorIndexPath); err != nil {
		return fmt.Errorf("load: vector index: %w", err)
	}
	if vectorIndex.Dimensions() != b.embedder.Dimensions() {
		return fmt.Errorf("load: vector index has %d dimensions, embedder produces %d",
			vectorIndex.Dimensions(), b.embedder.Dimensions())
	}

	snap := b.newSnapshot(chunkStore, vectorIndex)
	b.snapshot.Store(snap)

	b.logger.Info("knowledge base loaded",
		zap.Int("chunks", chunkStore.Len()),
		zap.Int("vectors", vectorIndex.Size()))
	return nil
}

func (b *Base) buildSnapshot(ctx context.Context, chunks []*models.Chunk) (*Snapshot, error) {
	chunkStore, err := store.New(chunks)
	if err != nil {
		return nil, err
	}

	vectorIndex, err := vector.NewMemoryIndex(b.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	if err := b.embedChunks(ctx, chunks, vectorIndex); err != nil {
		return nil, err
	}

	return b.newSnapshot(chunkStore, vectorIndex), nil
}

func (b *Base) newSnapshot(chunkStore *store.ChunkStore, vectorIndex vector.Index) *Snapshot {
	keywordIndex := keyword.NewBM25Index(chunkStore.All())
	retriever := retrieval.New(keywordIndex, vectorIndex, b.embedder, &b.cfg.Retrieval, b.logger)
	return &Snapshot{
		store:       chunkStore,
		retriever:   retriever,
		vectorIndex: vectorIndex,
		builtAt:     time.Now(),
	}
}

// embedChunks embeds chunk contents batch by batch and adds the vectors to
// idx. A failed batch is skipped; its chunks remain reachable through the
// lexical index.
func (b *Base) embedChunks(ctx context.Context, chunks []*models.Chunk, idx vector.Index) error {
	batchSize := b.cfg.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
			ids[i] = c.ID
		}

		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("embedding batch failed, chunks stay lexical-only",
				zap.Int("offset", start),
				zap.Int("size", len(batch)),
				zap.Error(err))
			continue
		}
		if err := idx.Add(ctx, ids, vectors); err != nil {
			return fmt.Errorf("index batch at %d: %w", start, err)
		}
	}
	return nil
}

func (b *Base) persist(ctx context.Context, chunks []*models.Chunk, idx vector.Index) error {
	db, err := storage.NewSQLiteStore(b.cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ReplaceChunks(ctx, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	if err := idx.Save(b.cfg.Storage.VectorIndexPath); err != nil {
		return fmt.Errorf("persist vector index: %w", err)
	}
	return nil
}
