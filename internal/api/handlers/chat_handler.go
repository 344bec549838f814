package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/fieldscope-hq/fieldscope/internal/models"
	"github.com/fieldscope-hq/fieldscope/internal/services"
)

type ChatHandler struct {
	assistant *services.AssistantService
}

func NewChatHandler(assistant *services.AssistantService) *ChatHandler {
	return &ChatHandler{assistant: assistant}
}

type chatRequest struct {
	Message             string                    `json:"message"`
	UserID              string                    `json:"userId"`
	ConversationHistory []models.ConversationTurn `json:"conversationHistory"`
}

type chatResponse struct {
	Response      string                      `json:"response"`
	Context       services.ResponseContext    `json:"context"`
	SearchResults []services.SearchResultView `json:"searchResults"`
	MessageID     string                      `json:"messageId"`
}

// Query answers one chat message. Missing fields are a 400, provider rate
// limiting a 429, everything else unclassified a 500; the raw error never
// reaches the user.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.Message == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	reply, err := h.assistant.Respond(r.Context(), services.AssistantRequest{
		Message: req.Message,
		UserID:  req.UserID,
		History: req.ConversationHistory,
	})
	if err != nil {
		if errors.Is(err, services.ErrTemporarilyUnavailable) {
			writeError(w, http.StatusTooManyRequests, services.ErrTemporarilyUnavailable.Error())
			return
		}
		log.Printf("chat: respond failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	results := reply.SearchResults
	if results == nil {
		results = []services.SearchResultView{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		Response:      reply.Response,
		Context:       reply.Context,
		SearchResults: results,
		MessageID:     uuid.NewString(),
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
