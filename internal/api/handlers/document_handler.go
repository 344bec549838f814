package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	middleware "github.com/fieldscope-hq/fieldscope/internal/api/middlewares"
	"github.com/fieldscope-hq/fieldscope/internal/services"
)

type DocumentHandler struct {
	documents *services.DocumentService
}

func NewDocumentHandler(documents *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload stores the file and enqueues background processing; the response
// returns before any extraction or embedding happens.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.ParseMultipartForm(52 << 20) // 52 MB

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}

	// Sanitize filename to prevent path traversal or invalid characters
	cleanFilename := filepath.Base(header.Filename)

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	asset, jobID, err := h.documents.UploadAndEnqueue(uploadCtx, userID, cleanFilename, mediaType, data)
	if err != nil {
		log.Printf("upload failed for user %s: %v", userID, err)
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"file":  asset,
		"jobId": jobID,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	files, err := h.documents.ListByOwner(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

// Reprocess clears the processed flag and queues the file again.
func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	fileID := chi.URLParam(r, "fileID")
	file, err := h.documents.Get(r.Context(), fileID)
	if err != nil || file == nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if file.OwnerID != userID {
		http.Error(w, "not your file", http.StatusForbidden)
		return
	}

	jobID, err := h.documents.Reprocess(r.Context(), fileID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"jobId": jobID})
}
