package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/models"
)

// fakeAssistantDB covers the read paths Respond touches. Unused methods come
// from the embedded nil interface and panic if reached.
type fakeAssistantDB struct {
	core.DbClient
	users     map[string]*models.User
	tasks     []models.Task
	chunks    []core.ScoredChunk
	searchErr error
	taskErr   error
}

func (f *fakeAssistantDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (f *fakeAssistantDB) ListActiveTasksByUser(_ context.Context, _ string, limit int) ([]models.Task, error) {
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	if len(f.tasks) > limit {
		return f.tasks[:limit], nil
	}
	return f.tasks, nil
}

func (f *fakeAssistantDB) SearchChunks(_ context.Context, _ []float32, threshold float64, limit int, _ *string) ([]core.ScoredChunk, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []core.ScoredChunk
	for _, c := range f.chunks {
		if c.Similarity >= threshold {
			out = append(out, c)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeQueryEmbedder struct {
	err error
}

func (e *fakeQueryEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *fakeQueryEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeCompleter struct {
	err     error
	answer  string
	sysSeen string
	usrSeen string
	calls   int
}

func (c *fakeCompleter) Generate(_ context.Context, system, user string) (string, error) {
	c.calls++
	c.sysSeen = system
	c.usrSeen = user
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func scoredChunk(content, fileName string, sim float64) core.ScoredChunk {
	return core.ScoredChunk{
		Chunk:      models.DocumentChunk{ID: "c-" + fileName, FileID: "f-1", Content: content},
		Similarity: sim,
		FileName:   fileName,
	}
}

func TestRespondWithRetrievalAndTasks(t *testing.T) {
	db := &fakeAssistantDB{
		users: map[string]*models.User{"u1": {ID: "u1", Role: "technician"}},
		tasks: []models.Task{{Title: "Replace compressor", Status: "in_progress"}},
		chunks: []core.ScoredChunk{
			scoredChunk("Shut the intake valve before opening the pump housing.", "pump-manual.pdf", 0.91),
			scoredChunk("Torque the housing bolts to 40 Nm.", "pump-manual.pdf", 0.82),
		},
	}
	completer := &fakeCompleter{answer: "Close the intake valve first."}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	reply, err := svc.Respond(context.Background(), AssistantRequest{
		Message: "how do I open the pump housing",
		UserID:  "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Close the intake valve first.", reply.Response)
	assert.Equal(t, "technician", reply.Context.Role)
	assert.True(t, reply.Context.RetrievalUsed)
	assert.Equal(t, 2, reply.Context.HitCount)
	assert.True(t, reply.Context.TaskContextIncluded)
	assert.False(t, reply.Context.Fallback)
	require.Len(t, reply.SearchResults, 2)
	assert.Equal(t, "pump-manual.pdf", reply.SearchResults[0].FileName)

	// Prompt carries both context blocks and the message.
	assert.Contains(t, completer.usrSeen, "Relevant document excerpts:")
	assert.Contains(t, completer.usrSeen, "Replace compressor")
	assert.Contains(t, completer.usrSeen, "user: how do I open the pump housing")
}

func TestRespondSkipsRetrievalForSmallTalk(t *testing.T) {
	db := &fakeAssistantDB{users: map[string]*models.User{}}
	completer := &fakeCompleter{answer: "Hello!"}
	svc := NewAssistantService(db, &fakeQueryEmbedder{err: errors.New("must not be called")}, completer, 0.75, 5)

	reply, err := svc.Respond(context.Background(), AssistantRequest{Message: "good morning", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, reply.Context.RetrievalUsed)
	assert.Zero(t, reply.Context.HitCount)
	assert.Empty(t, reply.SearchResults)
}

func TestRespondRecoversFromRetrievalFailure(t *testing.T) {
	db := &fakeAssistantDB{
		users:     map[string]*models.User{},
		searchErr: errors.New("connection refused"),
	}
	completer := &fakeCompleter{answer: "Answering without documents."}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	reply, err := svc.Respond(context.Background(), AssistantRequest{Message: "find the safety checklist", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Answering without documents.", reply.Response)
	assert.False(t, reply.Context.RetrievalUsed)
	assert.Empty(t, reply.SearchResults)
	assert.Equal(t, 1, completer.calls)
}

func TestRespondRateLimitSurfacesError(t *testing.T) {
	db := &fakeAssistantDB{users: map[string]*models.User{}}
	completer := &fakeCompleter{err: &core.ProviderError{
		Code: core.ProviderRateLimited,
		Op:   "generate",
		Err:  errors.New("429"),
	}}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	reply, err := svc.Respond(context.Background(), AssistantRequest{Message: "hello", UserID: "u1"})
	require.Nil(t, reply)
	require.ErrorIs(t, err, ErrTemporarilyUnavailable)
}

func TestRespondQuotaFallsBack(t *testing.T) {
	db := &fakeAssistantDB{users: map[string]*models.User{}}
	completer := &fakeCompleter{err: &core.ProviderError{
		Code: core.ProviderQuotaExceeded,
		Op:   "generate",
		Err:  errors.New("quota exhausted"),
	}}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	reply, err := svc.Respond(context.Background(), AssistantRequest{Message: "show my tasks", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, reply.Context.Fallback)
	assert.NotEmpty(t, reply.Response)
	assert.Contains(t, reply.Response, "tasks")
}

func TestRespondAuthFailureFallsBackWithExcerpts(t *testing.T) {
	db := &fakeAssistantDB{
		users: map[string]*models.User{},
		chunks: []core.ScoredChunk{
			scoredChunk("Bleed the hydraulic line at the lowest fitting.", "hydraulics.pdf", 0.88),
		},
	}
	completer := &fakeCompleter{err: &core.ProviderError{
		Code: core.ProviderAuthFailed,
		Op:   "generate",
		Err:  errors.New("401"),
	}}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	reply, err := svc.Respond(context.Background(), AssistantRequest{Message: "find the hydraulics document", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, reply.Context.Fallback)
	assert.Contains(t, reply.Response, "hydraulics.pdf")
	require.Len(t, reply.SearchResults, 1)
}

func TestRespondUnknownProviderErrorIsHard(t *testing.T) {
	db := &fakeAssistantDB{users: map[string]*models.User{}}
	completer := &fakeCompleter{err: &core.ProviderError{
		Code: core.ProviderUnknown,
		Op:   "generate",
		Err:  errors.New("boom"),
	}}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	_, err := svc.Respond(context.Background(), AssistantRequest{Message: "hello", UserID: "u1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTemporarilyUnavailable)
}

func TestRespondElevatedRolePreamble(t *testing.T) {
	db := &fakeAssistantDB{users: map[string]*models.User{
		"mgr": {ID: "mgr", Role: "manager"},
	}}
	completer := &fakeCompleter{answer: "ok"}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	_, err := svc.Respond(context.Background(), AssistantRequest{Message: "hello", UserID: "mgr"})
	require.NoError(t, err)
	assert.Contains(t, completer.sysSeen, "task assignments")

	// Unknown users get the default role and the base preamble only.
	_, err = svc.Respond(context.Background(), AssistantRequest{Message: "hello", UserID: "nobody"})
	require.NoError(t, err)
	assert.NotContains(t, completer.sysSeen, "task assignments")
}

func TestRespondBoundsHistory(t *testing.T) {
	db := &fakeAssistantDB{users: map[string]*models.User{}}
	completer := &fakeCompleter{answer: "ok"}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	history := make([]models.ConversationTurn, 25)
	for i := range history {
		history[i] = models.ConversationTurn{Role: "user", Content: fmt.Sprintf("turn-%02d", i)}
	}

	reply, err := svc.Respond(context.Background(), AssistantRequest{
		Message: "hello",
		UserID:  "u1",
		History: history,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, reply.Context.MessageCount)
	assert.NotContains(t, completer.usrSeen, "turn-14")
	assert.Contains(t, completer.usrSeen, "turn-15")
	assert.Contains(t, completer.usrSeen, "turn-24")
}

func TestRespondTruncatesSnippets(t *testing.T) {
	long := strings.Repeat("a", 450)
	db := &fakeAssistantDB{
		users:  map[string]*models.User{},
		chunks: []core.ScoredChunk{scoredChunk(long, "long.txt", 0.9)},
	}
	completer := &fakeCompleter{answer: "ok"}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, completer, 0.75, 5)

	reply, err := svc.Respond(context.Background(), AssistantRequest{Message: "find the long document", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, reply.SearchResults, 1)
	assert.Equal(t, strings.Repeat("a", 200)+"...", reply.SearchResults[0].Content)
}

func TestNewAssistantServiceNormalizesThreshold(t *testing.T) {
	db := &fakeAssistantDB{users: map[string]*models.User{}}
	svc := NewAssistantService(db, &fakeQueryEmbedder{}, &fakeCompleter{answer: "ok"}, math.NaN(), 0)
	assert.InDelta(t, 0.78, svc.threshold, 1e-9)
	assert.Equal(t, 5, svc.limit)
}
