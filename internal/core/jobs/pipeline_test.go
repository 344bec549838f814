package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/models"
)

// fakeChunkStore covers the file-asset and chunk slices of core.DbClient and
// records the order of writes.
type fakeChunkStore struct {
	core.DbClient
	files     map[string]*models.FileAsset
	inserted  []models.DocumentChunk
	processed map[string]bool
	ops       []string
}

func newFakeChunkStore(files ...*models.FileAsset) *fakeChunkStore {
	s := &fakeChunkStore{
		files:     make(map[string]*models.FileAsset),
		processed: make(map[string]bool),
	}
	for _, f := range files {
		s.files[f.ID] = f
	}
	return s
}

func (s *fakeChunkStore) GetFileAssetByID(_ context.Context, id string) (*models.FileAsset, error) {
	f, ok := s.files[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *fakeChunkStore) DeleteChunks(_ context.Context, fileID string) error {
	s.ops = append(s.ops, "delete:"+fileID)
	kept := s.inserted[:0]
	for _, c := range s.inserted {
		if c.FileID != fileID {
			kept = append(kept, c)
		}
	}
	s.inserted = kept
	return nil
}

func (s *fakeChunkStore) InsertChunks(_ context.Context, chunks []models.DocumentChunk) error {
	s.ops = append(s.ops, fmt.Sprintf("insert:%d", len(chunks)))
	s.inserted = append(s.inserted, chunks...)
	return nil
}

func (s *fakeChunkStore) SetFileProcessed(_ context.Context, fileID string, processed bool) error {
	s.ops = append(s.ops, "processed:"+fileID)
	s.processed[fileID] = processed
	return nil
}

// fakeEmbedder returns a tiny deterministic vector per input and can be
// primed to fail.
type fakeEmbedder struct {
	err     error
	batches [][]string
}

func (e *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, texts)
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

type fakeObjectStore struct {
	data map[string][]byte
}

func (o *fakeObjectStore) UploadFile(_ context.Context, bucket, key string, _ []byte, _ string) (string, error) {
	return "https://" + bucket + ".s3.us-east-2.amazonaws.com/" + key, nil
}

func (o *fakeObjectStore) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	b, ok := o.data[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return b, nil
}

func (o *fakeObjectStore) DeleteFile(_ context.Context, bucket, key string) error {
	delete(o.data, bucket+"/"+key)
	return nil
}

func manualAsset(id string) *models.FileAsset {
	return &models.FileAsset{
		ID:         id,
		FileName:   "pump-manual.txt",
		MediaType:  "text/plain",
		OwnerID:    "user-1",
		StorageURL: "https://fieldscope-files.s3.us-east-2.amazonaws.com/users/user-1/files/" + id + "/pump-manual.txt",
	}
}

func TestProcessFileStoresContiguousChunks(t *testing.T) {
	asset := manualAsset("file-1")
	store := newFakeChunkStore(asset)
	obj := &fakeObjectStore{data: map[string][]byte{
		"fieldscope-files/users/user-1/files/file-1/pump-manual.txt": []byte(strings.Repeat("Check the intake valve before starting the pump. ", 20)),
	}}
	emb := &fakeEmbedder{}

	p := NewPipeline(store, obj, emb, "fieldscope-files", PipelineConfig{ChunkMaxSize: 120, ChunkOverlap: 20, EmbedBatchSize: 2})
	summary, err := p.ProcessFile(context.Background(), models.JobPayload{FileID: "file-1"})
	require.NoError(t, err)
	assert.Contains(t, summary, "pump-manual.txt")

	require.NotEmpty(t, store.inserted)
	for i, c := range store.inserted {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "file-1", c.FileID)
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Embedding)
		assert.Equal(t, "pump-manual.txt", c.Metadata.FileName)
		assert.Equal(t, len(c.Content), c.Metadata.CharLength)
		assert.Equal(t, len(store.inserted), c.Metadata.ChunkTotal)
	}

	assert.True(t, store.processed["file-1"])

	// Embedding happens in batches of the configured size.
	for _, b := range emb.batches {
		assert.LessOrEqual(t, len(b), 2)
	}
}

func TestProcessFileDeletesBeforeInserting(t *testing.T) {
	asset := manualAsset("file-1")
	store := newFakeChunkStore(asset)
	store.inserted = []models.DocumentChunk{{ID: "stale", FileID: "file-1", ChunkIndex: 0}}
	obj := &fakeObjectStore{data: map[string][]byte{
		"fieldscope-files/users/user-1/files/file-1/pump-manual.txt": []byte("Replace the filter monthly."),
	}}

	p := NewPipeline(store, obj, &fakeEmbedder{}, "fieldscope-files", PipelineConfig{})
	_, err := p.ProcessFile(context.Background(), models.JobPayload{FileID: "file-1"})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(store.ops), 2)
	assert.Equal(t, "delete:file-1", store.ops[0])
	assert.True(t, strings.HasPrefix(store.ops[1], "insert:"))

	// The stale chunk is gone; only the fresh set remains.
	for _, c := range store.inserted {
		assert.NotEqual(t, "stale", c.ID)
	}
}

func TestProcessFileEmptyExtractionIsFatal(t *testing.T) {
	asset := manualAsset("file-1")
	store := newFakeChunkStore(asset)
	obj := &fakeObjectStore{data: map[string][]byte{
		"fieldscope-files/users/user-1/files/file-1/pump-manual.txt": []byte("   \n\t  "),
	}}

	p := NewPipeline(store, obj, &fakeEmbedder{}, "fieldscope-files", PipelineConfig{})
	_, err := p.ProcessFile(context.Background(), models.JobPayload{FileID: "file-1"})
	require.ErrorIs(t, err, core.ErrInsufficientContext)
	assert.True(t, core.IsFatalJobError(err))
	assert.Empty(t, store.inserted)
}

func TestProcessFileUnknownAsset(t *testing.T) {
	store := newFakeChunkStore()
	p := NewPipeline(store, &fakeObjectStore{}, &fakeEmbedder{}, "fieldscope-files", PipelineConfig{})
	_, err := p.ProcessFile(context.Background(), models.JobPayload{FileID: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestProcessFilePropagatesProviderError(t *testing.T) {
	asset := manualAsset("file-1")
	store := newFakeChunkStore(asset)
	obj := &fakeObjectStore{data: map[string][]byte{
		"fieldscope-files/users/user-1/files/file-1/pump-manual.txt": []byte("Inspect the belt tension weekly."),
	}}
	emb := &fakeEmbedder{err: &core.ProviderError{
		Code: core.ProviderRateLimited,
		Op:   "embed",
		Err:  errors.New("429 slow down"),
	}}

	p := NewPipeline(store, obj, emb, "fieldscope-files", PipelineConfig{})
	_, err := p.ProcessFile(context.Background(), models.JobPayload{FileID: "file-1"})

	var perr *core.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, core.ProviderRateLimited, perr.Code)
	assert.False(t, core.IsFatalJobError(err), "rate limits should stay retryable")
	assert.False(t, store.processed["file-1"])
}

func TestParseStorageURL(t *testing.T) {
	bucket, key := parseStorageURL("https://fieldscope-files.s3.us-east-2.amazonaws.com/users/u1/files/f1/manual.pdf")
	assert.Equal(t, "fieldscope-files", bucket)
	assert.Equal(t, "users/u1/files/f1/manual.pdf", key)
}
