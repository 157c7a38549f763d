package services

import (
	"context"
	"fmt"
	"log"

	"invoicerag/internal/conversation"
	"invoicerag/internal/core"
	"invoicerag/internal/core/llm"
	"invoicerag/internal/models"
	"invoicerag/internal/retrieval"
)

const (
	// retrieveK is how many analyses ground each answer.
	retrieveK = 5
	// historyTurns is how many recent turns feed the prompt.
	historyTurns = 3
	// sourceLimit caps the cited sources in the response.
	sourceLimit = 3
)

// ChatService answers natural-language questions about analyzed invoices by
// merging retrieved grounding context with per-session history.
type ChatService struct {
	retriever *retrieval.Engine
	sessions  *conversation.Manager
	llm       core.LLMProvider
}

func NewChatService(retriever *retrieval.Engine, sessions *conversation.Manager, llmProvider core.LLMProvider) *ChatService {
	return &ChatService{retriever: retriever, sessions: sessions, llm: llmProvider}
}

// Chat resolves the session, retrieves grounding context for the query,
// generates the answer and records both turns. Filter errors surface to the
// caller as a request error; an unavailable LLM degrades to an apologetic
// answer rather than failing the request.
func (s *ChatService) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	filters, err := retrieval.ParseFilters(req.Filters)
	if err != nil {
		return nil, err
	}

	sessionID := s.sessions.GetOrCreateSession(req.SessionID)
	history := s.sessions.BuildContext(sessionID, historyTurns)

	if err := s.sessions.AppendTurn(sessionID, "user", req.Query); err != nil {
		return nil, fmt.Errorf("record user turn: %w", err)
	}

	results, err := s.retriever.Retrieve(ctx, req.Query, retrieveK, filters)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	records := make([]*models.InvoiceRecord, len(results))
	for i, r := range results {
		records[i] = r.Record
	}

	system, user := llm.ChatPrompt(req.Query, records, history)
	answer, err := s.llm.Generate(ctx, system, user)
	if err != nil {
		log.Printf("chat: llm unavailable for session %s: %v", sessionID, err)
		return &models.ChatResponse{
			Response:  "I apologize, but I could not reach the language model to answer your question. Please try again shortly.",
			SessionID: sessionID,
			Sources:   []models.Source{},
		}, nil
	}

	if err := s.sessions.AppendTurn(sessionID, "assistant", answer); err != nil {
		log.Printf("chat: record assistant turn: %v", err)
	}

	sources := make([]models.Source, 0, sourceLimit)
	for _, r := range results {
		if len(sources) == sourceLimit {
			break
		}
		sources = append(sources, models.Source{
			EmployeeName:        r.Record.EmployeeName,
			InvoiceFilename:     r.Record.InvoiceFilename,
			ReimbursementStatus: r.Record.ReimbursementStatus,
			SimilarityScore:     r.Score,
		})
	}

	return &models.ChatResponse{
		Response:  answer,
		SessionID: sessionID,
		Sources:   sources,
	}, nil
}

// Reset clears one conversation session.
func (s *ChatService) Reset(sessionID string) {
	s.sessions.Reset(sessionID)
}
