package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/core/chunker"
	"github.com/fieldscope-hq/fieldscope/internal/core/extract"
	"github.com/fieldscope-hq/fieldscope/internal/models"
)

// PipelineConfig tunes the per-file processing run.
//
// ChunkMaxSize / ChunkOverlap: chunker bounds in characters.
// EmbedBatchSize: chunks embedded per provider round-trip.
type PipelineConfig struct {
	ChunkMaxSize   int
	ChunkOverlap   int
	EmbedBatchSize int
}

// Pipeline runs extraction -> chunking -> embedding -> storage for one file.
// It is invoked only by the queue; errors bubble up untouched so the queue
// stays the single retry boundary.
type Pipeline struct {
	db       core.DbClient
	obj      core.ObjectClient
	embedder core.EmbeddingProvider
	bucket   string
	cfg      PipelineConfig
}

func NewPipeline(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, bucket string, cfg PipelineConfig) *Pipeline {
	if cfg.ChunkMaxSize <= 0 {
		cfg.ChunkMaxSize = chunker.DefaultMaxSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	return &Pipeline{db: db, obj: obj, embedder: emb, bucket: bucket, cfg: cfg}
}

// ProcessFile runs the whole pipeline for one file and returns a short result
// summary. Existing chunks are deleted up front on every attempt, which both
// serves reprocessing and clears any partial set a previously aborted attempt
// could have left behind.
func (p *Pipeline) ProcessFile(ctx context.Context, payload models.JobPayload) (string, error) {
	file, err := p.db.GetFileAssetByID(ctx, payload.FileID)
	if err != nil {
		return "", fmt.Errorf("load file asset: %w", err)
	}
	if file == nil {
		return "", fmt.Errorf("file asset not found: %s", payload.FileID)
	}

	bucket, key := parseStorageURL(file.StorageURL)
	if bucket == "" {
		bucket = p.bucket
	}
	data, err := p.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("fetch file bytes: %w", err)
	}

	text, err := extract.Text(data, file.MediaType, file.FileName)
	if err != nil {
		return "", err
	}

	pieces := chunker.Chunk(text, p.cfg.ChunkMaxSize, p.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return "", core.ErrInsufficientContext
	}

	if err := p.db.DeleteChunks(ctx, file.ID); err != nil {
		return "", err
	}

	processedAt := time.Now()
	rows := make([]models.DocumentChunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		vecs, err := p.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return "", err
		}
		if len(vecs) != len(batch) {
			return "", fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(batch))
		}

		for i, content := range batch {
			idx := start + i
			rows = append(rows, models.DocumentChunk{
				ID:         uuid.NewString(),
				FileID:     file.ID,
				Content:    content,
				Embedding:  vecs[i],
				ChunkIndex: idx,
				Metadata: models.ChunkMetadata{
					FileName:    file.FileName,
					MediaType:   file.MediaType,
					CharLength:  len(content),
					ChunkTotal:  len(pieces),
					ProcessedAt: processedAt,
				},
			})
		}
	}

	// One transactional write for the full set: either every chunk of the
	// file lands or none do.
	if err := p.db.InsertChunks(ctx, rows); err != nil {
		return "", err
	}

	if err := p.db.SetFileProcessed(ctx, file.ID, true); err != nil {
		return "", err
	}

	log.Printf("pipeline: file %s -> %d chunks", file.ID, len(rows))
	return fmt.Sprintf("stored %d chunks from %q", len(rows), file.FileName), nil
}

// parseStorageURL extracts the bucket and key from a virtual-hosted-style S3
// URL, e.g. https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseStorageURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
