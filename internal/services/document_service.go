package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/core/jobs"
	"github.com/fieldscope-hq/fieldscope/internal/models"
)

// DocumentService stores uploaded files and hands them to the job queue. It
// never processes inline; upload latency stays decoupled from processing.
type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	queue   *jobs.Queue
	bucket  string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, queue *jobs.Queue, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, queue: queue, bucket: bucket}
}

// UploadAndEnqueue stores the bytes, records the FileAsset, and enqueues a
// processing job. Returns the created asset and the job id.
func (s *DocumentService) UploadAndEnqueue(ctx context.Context, ownerID, fileName, mediaType string, data []byte) (*models.FileAsset, string, error) {
	fileID := uuid.NewString()
	key := s.objectKey(ownerID, fileID, fileName)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, mediaType)
	if err != nil {
		return nil, "", fmt.Errorf("store file bytes: %w", err)
	}

	file := &models.FileAsset{
		ID:         fileID,
		FileName:   fileName,
		MediaType:  mediaType,
		SizeBytes:  int64(len(data)),
		OwnerID:    ownerID,
		StorageURL: url,
		Processed:  false,
	}
	if err := s.db.CreateFileAsset(ctx, file); err != nil {
		return nil, "", fmt.Errorf("record file asset: %w", err)
	}

	jobID, err := s.queue.Enqueue(ctx, fileID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("enqueue processing job: %w", err)
	}
	return file, jobID, nil
}

func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string) ([]models.FileAsset, error) {
	return s.db.ListFileAssetsByOwner(ctx, ownerID)
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.FileAsset, error) {
	return s.db.GetFileAssetByID(ctx, id)
}

// Reprocess clears the processed flag and enqueues a fresh job. The pipeline
// deletes the old chunks and rewrites the full set on its next attempt.
func (s *DocumentService) Reprocess(ctx context.Context, fileID string) (string, error) {
	file, err := s.db.GetFileAssetByID(ctx, fileID)
	if err != nil {
		return "", err
	}
	if file == nil {
		return "", fmt.Errorf("file asset not found: %s", fileID)
	}
	if err := s.db.SetFileProcessed(ctx, fileID, false); err != nil {
		return "", err
	}
	return s.queue.Enqueue(ctx, fileID, map[string]string{"reprocess": "true"})
}

// objectKey creates a consistent storage key layout.
func (s *DocumentService) objectKey(ownerID, fileID, fileName string) string {
	fileName = strings.TrimSpace(fileName)
	fileName = strings.ReplaceAll(fileName, " ", "_")
	return path.Join("users", ownerID, "files", fileID, fileName)
}
