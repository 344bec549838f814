package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fieldscope-hq/fieldscope/internal/config"
	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash, user.Role)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, role, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Tasks (read-only here; the task screens own the rows)

func (c *DatabaseClient) ListActiveTasksByUser(ctx context.Context, userID string, limit int) ([]models.Task, error) {
	const q = `
		SELECT id, user_id, title, description, status, due_at, created_at, updated_at
		FROM tasks
		WHERE user_id = $1 AND status IN ('pending', 'in_progress')
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.DueAt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// File assets

func (c *DatabaseClient) CreateFileAsset(ctx context.Context, file *models.FileAsset) error {
	if file == nil {
		return errors.New("nil file asset")
	}
	const q = `
		INSERT INTO file_assets
			(id, file_name, media_type, size_bytes, owner_id, storage_url, processed, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, now())
	`
	_, err := c.db.ExecContext(ctx, q,
		file.ID, file.FileName, file.MediaType, file.SizeBytes, file.OwnerID, file.StorageURL, file.Processed)
	return err
}

func (c *DatabaseClient) GetFileAssetByID(ctx context.Context, id string) (*models.FileAsset, error) {
	const q = `
		SELECT id, file_name, media_type, size_bytes, owner_id, storage_url, processed, created_at
		FROM file_assets
		WHERE id = $1
	`
	var f models.FileAsset
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&f.ID, &f.FileName, &f.MediaType, &f.SizeBytes, &f.OwnerID, &f.StorageURL, &f.Processed, &f.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) ListFileAssetsByOwner(ctx context.Context, ownerID string) ([]models.FileAsset, error) {
	const q = `
		SELECT id, file_name, media_type, size_bytes, owner_id, storage_url, processed, created_at
		FROM file_assets
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FileAsset
	for rows.Next() {
		var f models.FileAsset
		if err := rows.Scan(
			&f.ID, &f.FileName, &f.MediaType, &f.SizeBytes, &f.OwnerID, &f.StorageURL, &f.Processed, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SetFileProcessed(ctx context.Context, id string, processed bool) error {
	const q = `UPDATE file_assets SET processed = $2 WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id, processed)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file asset not found: %s", id)
	}
	return nil
}

// Document chunks

// InsertChunks inserts chunks in a single transaction; any row failure rolls
// the whole batch back so a file never ends up with a partial chunk set.
func (c *DatabaseClient) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return &core.StorageWriteError{Err: err}
	}

	const q = `
		INSERT INTO document_chunks
			(id, file_id, content, embedding, chunk_index, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return &core.StorageWriteError{Err: err}
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return &core.StorageWriteError{Err: err}
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.FileID, ch.Content, vec, ch.ChunkIndex, meta,
		); err != nil {
			_ = tx.Rollback()
			return &core.StorageWriteError{Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.StorageWriteError{Err: err}
	}
	return nil
}

func (c *DatabaseClient) DeleteChunks(ctx context.Context, fileID string) error {
	const q = `DELETE FROM document_chunks WHERE file_id = $1`
	if _, err := c.db.ExecContext(ctx, q, fileID); err != nil {
		return &core.StorageWriteError{Err: err}
	}
	return nil
}

// SearchChunks runs the nearest-neighbor query server-side through pgvector's
// cosine operator: similarity = 1 - (embedding <=> query). Threshold, cap and
// the optional file filter are all applied in SQL.
func (c *DatabaseClient) SearchChunks(ctx context.Context, queryVec []float32, threshold float64, limit int, fileID *string) ([]core.ScoredChunk, error) {
	const q = `
		SELECT dc.id, dc.file_id, dc.content, dc.chunk_index, dc.metadata, dc.created_at,
		       1 - (dc.embedding <=> $1) AS similarity,
		       fa.file_name
		FROM document_chunks dc
		JOIN file_assets fa ON fa.id = dc.file_id
		WHERE 1 - (dc.embedding <=> $1) >= $2
		  AND ($3::uuid IS NULL OR dc.file_id = $3::uuid)
		ORDER BY similarity DESC
		LIMIT $4
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, vec, threshold, fileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ScoredChunk
	for rows.Next() {
		var (
			sc   core.ScoredChunk
			meta []byte
		)
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.FileID, &sc.Chunk.Content, &sc.Chunk.ChunkIndex,
			&meta, &sc.Chunk.CreatedAt, &sc.Similarity, &sc.FileName,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &sc.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Background jobs

func (c *DatabaseClient) EnqueueJob(ctx context.Context, job *models.ProcessingJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO background_jobs (id, type, payload, status, retry_count, max_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	_, err = c.db.ExecContext(ctx, q,
		job.ID, job.Type, payload, job.Status, job.RetryCount, job.MaxRetries)
	return err
}

func (c *DatabaseClient) FetchPendingJobs(ctx context.Context, limit int) ([]models.ProcessingJob, error) {
	const q = `
		SELECT id, type, payload, status, retry_count, max_retries, created_at, started_at, completed_at, error
		FROM background_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := c.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) MarkJobProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const q = `
		UPDATE background_jobs
		SET status = 'processing', started_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	return c.execJobUpdate(ctx, q, id, startedAt)
}

func (c *DatabaseClient) CompleteJob(ctx context.Context, id string, completedAt time.Time, summary string) error {
	const q = `
		UPDATE background_jobs
		SET status = 'completed', completed_at = $2, error = $3
		WHERE id = $1 AND status = 'processing'
	`
	return c.execJobUpdate(ctx, q, id, completedAt, summary)
}

func (c *DatabaseClient) RequeueJob(ctx context.Context, id string, retryCount int, errMsg string) error {
	const q = `
		UPDATE background_jobs
		SET status = 'pending', retry_count = $2, error = $3, started_at = NULL
		WHERE id = $1 AND status = 'processing'
	`
	return c.execJobUpdate(ctx, q, id, retryCount, errMsg)
}

func (c *DatabaseClient) FailJob(ctx context.Context, id string, retryCount int, completedAt time.Time, errMsg string) error {
	const q = `
		UPDATE background_jobs
		SET status = 'failed', retry_count = $2, completed_at = $3, error = $4
		WHERE id = $1 AND status = 'processing'
	`
	return c.execJobUpdate(ctx, q, id, retryCount, completedAt, errMsg)
}

func (c *DatabaseClient) GetJobByID(ctx context.Context, id string) (*models.ProcessingJob, error) {
	const q = `
		SELECT id, type, payload, status, retry_count, max_retries, created_at, started_at, completed_at, error
		FROM background_jobs
		WHERE id = $1
	`
	row := c.db.QueryRowContext(ctx, q, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (c *DatabaseClient) JobStatsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	const q = `SELECT status, count(*) FROM background_jobs GROUP BY status`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[models.JobStatus]int)
	for rows.Next() {
		var (
			status models.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

func (c *DatabaseClient) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		DELETE FROM background_jobs
		WHERE status IN ('completed', 'failed') AND created_at < $1
	`
	res, err := c.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *DatabaseClient) execJobUpdate(ctx context.Context, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job not found or not in expected status")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ProcessingJob, error) {
	var (
		j       models.ProcessingJob
		payload []byte
		errMsg  sql.NullString
	)
	if err := row.Scan(
		&j.ID, &j.Type, &payload, &j.Status, &j.RetryCount, &j.MaxRetries,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &errMsg,
	); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("decode job payload: %w", err)
		}
	}
	j.LastError = errMsg.String
	return &j, nil
}
