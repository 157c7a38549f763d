package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"invoicerag/internal/conversation"
	"invoicerag/internal/core/llm"
	"invoicerag/internal/models"
	"invoicerag/internal/retrieval"
	"invoicerag/internal/vectorindex"
)

func newChatFixture(t *testing.T, mock *llm.MockLLM) (*ChatService, *vectorindex.Index) {
	t.Helper()
	embedder := llm.NewMockEmbedder(32)
	index := vectorindex.New(embedder, nil)
	sessions := conversation.NewManager(time.Hour, 10)
	svc := NewChatService(retrieval.NewEngine(embedder, index), sessions, mock)
	return svc, index
}

func seedInvoice(t *testing.T, index *vectorindex.Index, employee string, status models.ReimbursementStatus) {
	t.Helper()
	rec := &models.InvoiceRecord{
		EmployeeName:        employee,
		InvoiceFilename:     employee + ".pdf",
		ReimbursementStatus: status,
		Reasoning:           "policy section 4",
		RawContent:          "travel expense for " + employee,
	}
	if _, err := index.Add(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
}

func TestChatGroundedAnswer(t *testing.T) {
	mock := &llm.MockLLM{Responses: []string{"Alice's taxi claim was declined under policy section 4."}}
	svc, index := newChatFixture(t, mock)
	seedInvoice(t, index, "Alice", models.StatusDeclined)
	seedInvoice(t, index, "Bob", models.StatusFullyReimbursed)

	resp, err := svc.Chat(context.Background(), models.ChatRequest{Query: "why was Alice declined?"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected a session id in the response")
	}
	if !strings.Contains(resp.Response, "declined") {
		t.Errorf("unexpected answer: %q", resp.Response)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("expected cited sources")
	}
	if len(mock.Calls) != 1 {
		t.Fatalf("expected 1 llm call, got %d", len(mock.Calls))
	}
	if !strings.Contains(mock.Calls[0], "Alice") {
		t.Error("retrieved context not present in the prompt")
	}
}

func TestChatSessionContinuity(t *testing.T) {
	mock := &llm.MockLLM{Responses: []string{"first answer", "second answer"}}
	svc, index := newChatFixture(t, mock)
	seedInvoice(t, index, "Alice", models.StatusDeclined)

	first, err := svc.Chat(context.Background(), models.ChatRequest{Query: "status of Alice?"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Chat(context.Background(), models.ChatRequest{Query: "and the reason?", SessionID: first.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed across turns: %s != %s", second.SessionID, first.SessionID)
	}
	// The second prompt carries the first exchange as history.
	if !strings.Contains(mock.Calls[1], "status of Alice?") || !strings.Contains(mock.Calls[1], "first answer") {
		t.Error("conversation history missing from the second prompt")
	}
}

func TestChatStatusFilterExcludesOthers(t *testing.T) {
	mock := &llm.MockLLM{Responses: []string{"grounded answer"}}
	svc, index := newChatFixture(t, mock)
	seedInvoice(t, index, "Alice", models.StatusDeclined)
	seedInvoice(t, index, "Bob", models.StatusFullyReimbursed)
	seedInvoice(t, index, "Carol", models.StatusDeclined)

	resp, err := svc.Chat(context.Background(), models.ChatRequest{
		Query:   "travel expense",
		Filters: map[string]any{"reimbursement_status": "Declined"},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
	for _, src := range resp.Sources {
		if src.ReimbursementStatus != models.StatusDeclined {
			t.Errorf("filter leaked %s (%s)", src.EmployeeName, src.ReimbursementStatus)
		}
		if src.EmployeeName == "Bob" {
			t.Error("Bob must never appear in Declined-filtered sources")
		}
	}
}

func TestChatInvalidFilter(t *testing.T) {
	mock := &llm.MockLLM{Responses: []string{"unused"}}
	svc, _ := newChatFixture(t, mock)

	_, err := svc.Chat(context.Background(), models.ChatRequest{
		Query:   "anything",
		Filters: map[string]any{"cost_center": "42"},
	})
	if !errors.Is(err, retrieval.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
	if len(mock.Calls) != 0 {
		t.Error("invalid filters must fail before any llm call")
	}
}

func TestChatDegradesWhenLLMUnavailable(t *testing.T) {
	mock := &llm.MockLLM{Err: errors.New("connection refused")}
	svc, index := newChatFixture(t, mock)
	seedInvoice(t, index, "Alice", models.StatusDeclined)

	resp, err := svc.Chat(context.Background(), models.ChatRequest{Query: "status of Alice?"})
	if err != nil {
		t.Fatalf("llm outage must not fail the request, got %v", err)
	}
	if resp.SessionID == "" {
		t.Error("degraded response still needs a session id")
	}
	if !strings.Contains(resp.Response, "could not reach") {
		t.Errorf("expected degraded message, got %q", resp.Response)
	}
	if len(resp.Sources) != 0 {
		t.Error("degraded response should cite no sources")
	}
}

func TestChatEmptyCorpusSaysSo(t *testing.T) {
	mock := &llm.MockLLM{Responses: []string{"There are no analyzed invoices yet."}}
	svc, _ := newChatFixture(t, mock)

	resp, err := svc.Chat(context.Background(), models.ChatRequest{Query: "show me everything"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if len(resp.Sources) != 0 {
		t.Error("no sources expected on an empty corpus")
	}
	if !strings.Contains(mock.Calls[0], "No matching invoice analyses") {
		t.Error("prompt must state that no analyses matched")
	}
}
