package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"invoicerag/internal/config"
	"invoicerag/internal/conversation"
	"invoicerag/internal/core/archive"
	"invoicerag/internal/core/extract"
	"invoicerag/internal/core/llm"
	"invoicerag/internal/retrieval"
	"invoicerag/internal/services"
	"invoicerag/internal/vectorindex"
)

// App owns the long-lived service objects: the vector index, the session
// table and the HTTP server. They are wired here and passed explicitly;
// there are no package-level singletons.
type App struct {
	Index    *vectorindex.Index
	Sessions *conversation.Manager
	Server   *Server

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
	stopGC   context.CancelFunc
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider: %w", err)
	}

	snap, err := vectorindex.NewSnapshot(cfg.VectorDBPath, cfg.IndexFile, cfg.MetadataFile)
	if err != nil {
		return nil, err
	}

	index := vectorindex.New(embedder, snap)
	if err := index.Load(); err != nil {
		return nil, err
	}
	log.Printf("vector index ready with %d analyses", index.Count())

	sessions := conversation.NewManager(time.Duration(cfg.SessionTTLHours)*time.Hour, cfg.MaxContextTurns)

	var archiver archive.Archiver
	if cfg.AwsAccessKey != "" && cfg.BucketName != "" {
		s3, err := archive.NewS3Archiver(ctx, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.AwsRegion, cfg.BucketName)
		if err != nil {
			return nil, err
		}
		archiver = s3
	} else {
		log.Println("document archival disabled (no AWS credentials configured)")
	}

	pdf := extract.NewPDFExtractor()
	analysis := services.NewAnalysisService(llmProvider, index, pdf, archiver, cfg.AnalysisConcurrency)
	chat := services.NewChatService(retrieval.NewEngine(embedder, index), sessions, llmProvider)

	server := NewServer(cfg, index, sessions, analysis, chat, archiver)

	gcCtx, stopGC := context.WithCancel(context.Background())
	go evictLoop(gcCtx, sessions)

	return &App{
		Index:    index,
		Sessions: sessions,
		Server:   server,
		embedder: embedder,
		llm:      llmProvider,
		stopGC:   stopGC,
	}, nil
}

// evictLoop periodically removes sessions idle past their TTL.
func evictLoop(ctx context.Context, sessions *conversation.Manager) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sessions.EvictExpired(now, sessions.TTL())
		}
	}
}

// Close persists the index one last time and releases the LLM clients.
func (a *App) Close() {
	a.stopGC()
	a.Sessions.EvictExpired(time.Now(), a.Sessions.TTL())
	if err := a.Index.Persist(); err != nil {
		log.Printf("final index persist failed: %v", err)
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
}
