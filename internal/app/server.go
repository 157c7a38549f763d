package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"invoicerag/internal/api/handlers"
	appMiddleware "invoicerag/internal/api/middlewares"
	"invoicerag/internal/config"
	"invoicerag/internal/conversation"
	"invoicerag/internal/core/archive"
	"invoicerag/internal/services"
	"invoicerag/internal/vectorindex"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, index *vectorindex.Index, sessions *conversation.Manager, analysis *services.AnalysisService, chat *services.ChatService, archiver archive.Archiver) *Server {
	analysisHandler := handlers.NewAnalysisHandler(analysis, cfg)
	chatHandler := handlers.NewChatHandler(chat)
	systemHandler := handlers.NewSystemHandler(index, sessions)
	documentHandler := handlers.NewDocumentHandler(index, archiver)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	// public endpoints
	r.Get("/", systemHandler.Root)
	r.Get("/health", systemHandler.Health)

	// data endpoints, optionally behind a shared-secret JWT
	r.Group(func(api chi.Router) {
		if cfg.JWTSecret != "" {
			api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
		}
		api.Post("/analyze-invoices", analysisHandler.AnalyzeInvoices)
		api.Post("/chat", chatHandler.Chat)
		api.Get("/statistics", systemHandler.Statistics)
		api.Get("/invoices/{record_id}/document", documentHandler.Download)
		api.Delete("/conversations/{session_id}", chatHandler.ClearConversation)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
