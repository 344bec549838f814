package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fieldscope-hq/fieldscope/internal/api/handlers"
	appMiddleware "github.com/fieldscope-hq/fieldscope/internal/api/middlewares"
	"github.com/fieldscope-hq/fieldscope/internal/config"
	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/core/jobs"
	"github.com/fieldscope-hq/fieldscope/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, documents *services.DocumentService, assistant *services.AssistantService, queue *jobs.Queue) *Server {
	authHandler := handlers.NewAuthHandler(db)
	docHandler := handlers.NewDocumentHandler(documents)
	chatHandler := handlers.NewChatHandler(assistant)
	jobHandler := handlers.NewJobHandler(queue)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)
			protected.Post("/documents/upload", docHandler.Upload)
			protected.Get("/documents", docHandler.List)
			protected.Post("/documents/{fileID}/reprocess", docHandler.Reprocess)
			protected.Post("/chat/query", chatHandler.Query)
			protected.Get("/jobs/stats", jobHandler.Stats)
			protected.Get("/jobs/{jobID}", jobHandler.Status)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until the context is cancelled, then shuts it
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
