package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldscope-hq/fieldscope/internal/config"
	"github.com/fieldscope-hq/fieldscope/internal/core"
	db "github.com/fieldscope-hq/fieldscope/internal/core/database"
	"github.com/fieldscope-hq/fieldscope/internal/core/jobs"
	"github.com/fieldscope-hq/fieldscope/internal/core/llm"
	"github.com/fieldscope-hq/fieldscope/internal/core/objectstore"
	"github.com/fieldscope-hq/fieldscope/internal/services"
)

// App owns every long-lived dependency. Clients are built once here and
// injected down; nothing is initialized at import time.
type App struct {
	cfg       *config.Config
	dbClient  core.DbClient
	embedder  *llm.GeminiEmbedder
	completer *llm.GeminiLLM
	queue     *jobs.Queue
	server    *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectstore.NewS3Client(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	completer, err := llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the completion client: %w", err)
	}

	pipeline := jobs.NewPipeline(dbClient, objClient, embedder, cfg.BucketName, jobs.PipelineConfig{
		ChunkMaxSize:   cfg.ChunkMaxSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		EmbedBatchSize: 16,
	})
	queue := jobs.NewQueue(
		dbClient, pipeline,
		time.Duration(cfg.DrainIntervalSec)*time.Second,
		cfg.DrainBatch, cfg.JobMaxRetries,
	)

	documents := services.NewDocumentService(dbClient, objClient, queue, cfg.BucketName)
	assistant := services.NewAssistantService(dbClient, embedder, completer, cfg.SearchThreshold, cfg.SearchLimit)

	server := NewServer(cfg, dbClient, documents, assistant, queue)

	return &App{
		cfg:       cfg,
		dbClient:  dbClient,
		embedder:  embedder,
		completer: completer,
		queue:     queue,
		server:    server,
	}, nil
}

// Run serves HTTP and drains the job queue until the context is cancelled,
// then cleans terminal jobs past retention and shuts the server down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start(gctx)
	})
	g.Go(func() error {
		err := a.queue.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(12 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := a.queue.Cleanup(gctx, a.cfg.JobRetentionDays)
				if err != nil {
					log.Printf("job cleanup failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("job cleanup removed %d terminal jobs", n)
				}
			}
		}
	})

	return g.Wait()
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.completer != nil {
		_ = a.completer.Close()
	}
	if c, ok := a.dbClient.(*db.DatabaseClient); ok {
		_ = c.Close()
	}
}
