package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/core/search"
	"github.com/fieldscope-hq/fieldscope/internal/models"
)

const (
	maxHistoryTurns = 10
	maxTaskContext  = 3
	maxExcerptChars = 300
	maxSnippetChars = 200
	defaultUserRole = "technician"
)

// ErrTemporarilyUnavailable is returned when the completion provider is rate
// limited. Unlike auth/quota failures it is surfaced, not substituted.
var ErrTemporarilyUnavailable = errors.New("assistant temporarily unavailable, please retry shortly")

// AssistantRequest is one incoming chat turn.
type AssistantRequest struct {
	Message string
	UserID  string
	History []models.ConversationTurn
}

// ResponseContext records how a reply was assembled. Fallback is the single
// authoritative signal that no real generation occurred.
type ResponseContext struct {
	Role                string `json:"role"`
	MessageCount        int    `json:"message_count"`
	RetrievalUsed       bool   `json:"retrieval_used"`
	HitCount            int    `json:"hit_count"`
	TaskContextIncluded bool   `json:"task_context_included"`
	Fallback            bool   `json:"fallback"`
}

// SearchResultView is the trimmed per-hit payload returned to the chat UI.
type SearchResultView struct {
	FileName   string  `json:"filename"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// AssistantReply is the full assembled answer.
type AssistantReply struct {
	Response      string
	Context       ResponseContext
	SearchResults []SearchResultView
}

// retrievalResult carries what retrieval contributed, or the reason it did
// not, so callers and tests see the reason instead of a silent skip.
type retrievalResult struct {
	Hits    []models.SearchHit
	Block   string
	Skipped string
}

type taskContextResult struct {
	Block   string
	Skipped string
}

// AssistantService assembles bounded prompts from retrieval and task state,
// calls the completion provider, and substitutes deterministic fallbacks when
// the provider cannot answer.
type AssistantService struct {
	db        core.DbClient
	embedder  core.EmbeddingProvider
	completer core.CompletionProvider
	threshold float64
	limit     int
}

func NewAssistantService(db core.DbClient, emb core.EmbeddingProvider, completer core.CompletionProvider, threshold float64, limit int) *AssistantService {
	if limit <= 0 {
		limit = 5
	}
	return &AssistantService{
		db:        db,
		embedder:  emb,
		completer: completer,
		threshold: search.ValidateThreshold(threshold),
		limit:     limit,
	}
}

// Respond answers one user message. Retrieval and task-context failures are
// recovered locally; only completion-provider failures decide between a
// fallback answer (auth/quota), a temporarily-unavailable error (rate limit),
// and a hard error (anything else).
func (s *AssistantService) Respond(ctx context.Context, req AssistantRequest) (*AssistantReply, error) {
	role := s.resolveRole(ctx, req.UserID)

	var retrieval retrievalResult
	if ShouldRetrieve(req.Message) {
		retrieval = s.retrieve(ctx, req.Message)
		if retrieval.Skipped != "" {
			log.Printf("assistant: retrieval skipped: %s", retrieval.Skipped)
		}
	}

	tasks := s.taskContext(ctx, req.UserID)
	if tasks.Skipped != "" {
		log.Printf("assistant: task context skipped: %s", tasks.Skipped)
	}

	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	systemPrompt := rolePreamble(role)
	userPrompt := buildUserPrompt(tasks.Block, retrieval.Block, history, req.Message)

	respCtx := ResponseContext{
		Role:                role,
		MessageCount:        len(history) + 1,
		RetrievalUsed:       retrieval.Skipped == "" && ShouldRetrieve(req.Message),
		HitCount:            len(retrieval.Hits),
		TaskContextIncluded: tasks.Block != "",
	}

	answer, err := s.completer.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		var perr *core.ProviderError
		if errors.As(err, &perr) {
			switch perr.Code {
			case core.ProviderRateLimited:
				return nil, fmt.Errorf("%w: %v", ErrTemporarilyUnavailable, err)
			case core.ProviderAuthFailed, core.ProviderQuotaExceeded:
				respCtx.Fallback = true
				return &AssistantReply{
					Response:      s.fallbackResponse(req.Message, role, retrieval.Block),
					Context:       respCtx,
					SearchResults: searchResultViews(retrieval.Hits),
				}, nil
			}
		}
		return nil, err
	}

	return &AssistantReply{
		Response:      answer,
		Context:       respCtx,
		SearchResults: searchResultViews(retrieval.Hits),
	}, nil
}

func (s *AssistantService) resolveRole(ctx context.Context, userID string) string {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil || user == nil || user.Role == "" {
		return defaultUserRole
	}
	return user.Role
}

func (s *AssistantService) retrieve(ctx context.Context, message string) retrievalResult {
	vec, err := s.embedder.EmbedText(ctx, message)
	if err != nil {
		return retrievalResult{Skipped: fmt.Sprintf("query embedding failed: %v", err)}
	}

	scored, err := s.db.SearchChunks(ctx, vec, s.threshold, s.limit, nil)
	if err != nil {
		return retrievalResult{Skipped: fmt.Sprintf("similarity search failed: %v", err)}
	}

	hits := make([]models.SearchHit, 0, len(scored))
	for _, sc := range scored {
		hits = append(hits, models.SearchHit{
			Chunk:      sc.Chunk,
			Similarity: sc.Similarity,
			FileName:   sc.FileName,
		})
	}
	hits = search.Rank(hits, message)

	return retrievalResult{Hits: hits, Block: excerptBlock(hits)}
}

func (s *AssistantService) taskContext(ctx context.Context, userID string) taskContextResult {
	tasks, err := s.db.ListActiveTasksByUser(ctx, userID, maxTaskContext)
	if err != nil {
		return taskContextResult{Skipped: fmt.Sprintf("task lookup failed: %v", err)}
	}
	if len(tasks) == 0 {
		return taskContextResult{}
	}

	var b strings.Builder
	b.WriteString("Active tasks:\n")
	for _, t := range tasks {
		b.WriteString(fmt.Sprintf("- %s (%s)\n", t.Title, t.Status))
	}
	return taskContextResult{Block: b.String()}
}

// rolePreamble is the fixed capability statement opening every prompt.
// Elevated roles get the extra assignment/overview sentence.
func rolePreamble(role string) string {
	base := "You are FieldScope, the assistant for a field-service team. You help with tasks, uploaded documents, and operating procedures. Answer from the provided context; when the context does not cover a question, say so plainly."
	switch role {
	case "manager", "dispatcher", "admin":
		return base + " You may also summarize team workload and suggest task assignments."
	default:
		return base
	}
}

func buildUserPrompt(taskBlock, retrievalBlock string, history []models.ConversationTurn, message string) string {
	var b strings.Builder
	if taskBlock != "" {
		b.WriteString(taskBlock)
		b.WriteString("\n")
	}
	if retrievalBlock != "" {
		b.WriteString(retrievalBlock)
		b.WriteString("\n")
	}
	for _, turn := range history {
		b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
	}
	b.WriteString("user: ")
	b.WriteString(message)
	return b.String()
}

// excerptBlock renders the top hits as a short filename-attributed block.
func excerptBlock(hits []models.SearchHit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant document excerpts:\n")
	for i, h := range hits {
		if i == 5 {
			break
		}
		b.WriteString(fmt.Sprintf("[%s] %s\n", h.FileName, truncate(h.Chunk.Content, maxExcerptChars)))
	}
	return b.String()
}

func searchResultViews(hits []models.SearchHit) []SearchResultView {
	out := make([]SearchResultView, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResultView{
			FileName:   h.FileName,
			Similarity: h.Similarity,
			Content:    truncate(h.Chunk.Content, maxSnippetChars),
		})
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// fallbackResponse is the deterministic templated answer substituted when the
// completion provider is unavailable.
func (s *AssistantService) fallbackResponse(message, role, retrievalBlock string) string {
	switch DetectFallbackTopic(message) {
	case TopicTask:
		if role == "manager" || role == "dispatcher" || role == "admin" {
			return "I can help you manage the team's work: review open tasks, check who is assigned where, and reschedule or reassign work orders from the tasks screen. Create a new task there and it will show up in your team's queues immediately."
		}
		return "I can help you with your tasks: open the tasks screen to see what is assigned to you, mark work in progress or completed, and check due dates. Your active tasks also appear in this chat when you ask about them."
	case TopicSearch:
		if retrievalBlock != "" {
			return "I found these passages in your documents:\n\n" + retrievalBlock
		}
		return "I can search your uploaded documents. Try asking with a phrase from the document you are looking for, for example \"find the pump maintenance procedure\". Files you upload are indexed automatically once processing finishes."
	case TopicHelp:
		return "Here is what I can do: answer questions about your uploaded documents and manuals, show your active tasks, and walk you through procedures. Ask things like \"what are my tasks\", \"find the safety checklist\", or \"how do I file a service report\"."
	case TopicProblem:
		return "Sorry you are running into trouble. Tell me what you were doing and what happened, including any error message you saw. If a document is not showing up in search, check that its processing has finished on the files screen."
	default:
		return "Hello! I am the FieldScope assistant. I can look things up in your documents, show your active tasks, and help with procedures. What would you like to do?"
	}
}
