package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	Role         string    `db:"role" json:"role"` // technician | dispatcher | manager | admin
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Task is a field-service work item. Rows are owned by the task screens;
// the assistant only reads them for context.
type Task struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Status      string     `db:"status" json:"status"` // pending | in_progress | completed | cancelled
	DueAt       *time.Time `db:"due_at" json:"due_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// FileAsset represents an uploaded file. Processed flips to true only after
// every chunk for the file is durably stored; reprocessing clears it first.
type FileAsset struct {
	ID         string    `db:"id" json:"id"`
	FileName   string    `db:"file_name" json:"file_name"`
	MediaType  string    `db:"media_type" json:"media_type"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	StorageURL string    `db:"storage_url" json:"storage_url"`
	Processed  bool      `db:"processed" json:"processed"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChunkMetadata travels with each chunk as a jsonb column.
type ChunkMetadata struct {
	FileName    string    `json:"file_name"`
	MediaType   string    `json:"media_type"`
	CharLength  int       `json:"char_length"`
	ChunkTotal  int       `json:"chunk_total"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DocumentChunk is one embedded text segment of a file. Chunks are immutable
// once written; ChunkIndex values for a file form a gap-free zero-based
// sequence in creation order.
type DocumentChunk struct {
	ID         string        `db:"id" json:"id"`
	FileID     string        `db:"file_id" json:"file_id"`
	Content    string        `db:"content" json:"content"`
	Embedding  []float32     `db:"embedding" json:"embedding"` // pgvector column
	ChunkIndex int           `db:"chunk_index" json:"chunk_index"`
	Metadata   ChunkMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// JobStatus tracks a processing job through its state machine.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobTypeFileProcessing is currently the only job variant.
const JobTypeFileProcessing = "file_processing"

// JobPayload is the jsonb payload of a processing job.
type JobPayload struct {
	FileID  string            `json:"file_id"`
	Options map[string]string `json:"options,omitempty"`
}

// ProcessingJob is one unit of asynchronous file-processing work. Transitions
// are monotonic: pending -> processing -> {completed | pending (retry) | failed},
// with at most MaxRetries processing->pending cycles before terminal failure.
type ProcessingJob struct {
	ID          string     `db:"id" json:"id"`
	Type        string     `db:"type" json:"type"`
	Payload     JobPayload `db:"payload" json:"payload"`
	Status      JobStatus  `db:"status" json:"status"`
	RetryCount  int        `db:"retry_count" json:"retry_count"`
	MaxRetries  int        `db:"max_retries" json:"max_retries"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastError   string     `db:"error" json:"error,omitempty"`
}

// SearchHit is a transient per-query result: a chunk with its raw similarity
// and the combined score assigned by the ranker. Never persisted.
type SearchHit struct {
	Chunk         DocumentChunk `json:"chunk"`
	Similarity    float64       `json:"similarity"`
	CombinedScore float64       `json:"combined_score"`
	FileName      string        `json:"file_name"`
}

// ConversationTurn is one prior message of the chat, used only to bound the
// prompt (the last ten turns are retained).
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
