package core

import (
	"context"
	"time"

	"github.com/fieldscope-hq/fieldscope/internal/models"
)

// ScoredChunk is a raw similarity-search row before ranking: the chunk, its
// cosine similarity in [0,1], and the owning file's name for attribution.
type ScoredChunk struct {
	Chunk      models.DocumentChunk
	Similarity float64
	FileName   string
}

// DbClient defines all persistence operations the services need. It abstracts
// Postgres/pgvector so higher layers never depend on a specific DB. The
// document_chunks and background_jobs tables are only ever touched through
// this surface.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	ListActiveTasksByUser(ctx context.Context, userID string, limit int) ([]models.Task, error)

	CreateFileAsset(ctx context.Context, file *models.FileAsset) error
	GetFileAssetByID(ctx context.Context, id string) (*models.FileAsset, error)
	ListFileAssetsByOwner(ctx context.Context, ownerID string) ([]models.FileAsset, error)
	SetFileProcessed(ctx context.Context, id string, processed bool) error

	// InsertChunks writes the whole batch in one transaction; either every
	// row lands or none do.
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunks(ctx context.Context, fileID string) error
	// SearchChunks delegates nearest-neighbor ordering to the store's vector
	// operator. Hits below threshold are dropped server-side; results arrive
	// ordered by similarity descending, at most limit rows. fileID narrows
	// the search to one file when non-nil.
	SearchChunks(ctx context.Context, queryVec []float32, threshold float64, limit int, fileID *string) ([]ScoredChunk, error)

	EnqueueJob(ctx context.Context, job *models.ProcessingJob) error
	FetchPendingJobs(ctx context.Context, limit int) ([]models.ProcessingJob, error)
	MarkJobProcessing(ctx context.Context, id string, startedAt time.Time) error
	CompleteJob(ctx context.Context, id string, completedAt time.Time, summary string) error
	// RequeueJob returns a processing job to pending with the attempt's error
	// recorded, so a later drain picks it up again.
	RequeueJob(ctx context.Context, id string, retryCount int, errMsg string) error
	FailJob(ctx context.Context, id string, retryCount int, completedAt time.Time, errMsg string) error
	GetJobByID(ctx context.Context, id string) (*models.ProcessingJob, error)
	JobStatsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ObjectClient defines interactions with S3 or any object storage, kept
// abstract so AWS can be swapped for MinIO, GCP, etc.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
