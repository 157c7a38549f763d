package models

import (
	"time"
)

// ReimbursementStatus is the verdict category assigned to an analyzed invoice.
type ReimbursementStatus string

const (
	StatusFullyReimbursed     ReimbursementStatus = "Fully Reimbursed"
	StatusPartiallyReimbursed ReimbursementStatus = "Partially Reimbursed"
	StatusDeclined            ReimbursementStatus = "Declined"
)

// Valid reports whether s is one of the known verdict categories.
func (s ReimbursementStatus) Valid() bool {
	switch s {
	case StatusFullyReimbursed, StatusPartiallyReimbursed, StatusDeclined:
		return true
	}
	return false
}

// InvoiceRecord is one analyzed invoice as stored in the vector index.
// RawContent is the text that was embedded (invoice text + analysis reasoning).
type InvoiceRecord struct {
	ID                  string              `json:"id"`
	EmployeeName        string              `json:"employee_name"`
	InvoiceFilename     string              `json:"invoice_filename"`
	ReimbursementStatus ReimbursementStatus `json:"reimbursement_status"`
	ReimbursedAmount    float64             `json:"reimbursed_amount"`
	TotalAmount         float64             `json:"total_amount"`
	Reasoning           string              `json:"reasoning"`
	RawContent          string              `json:"raw_content"`
	InvoiceDate         string              `json:"invoice_date,omitempty"`
	InvoiceNumber       string              `json:"invoice_number,omitempty"`
	ExpenseCategory     string              `json:"expense_category,omitempty"`
	PolicyViolations    []string            `json:"policy_violations,omitempty"`
	ApprovedItems       []string            `json:"approved_items,omitempty"`
	RejectedItems       []string            `json:"rejected_items,omitempty"`
	ArchiveKey          string              `json:"archive_key,omitempty"`
	Embedding           []float32           `json:"-"`
	CreatedAt           time.Time           `json:"created_at"`
}

// Turn is one role-tagged message within a conversation session.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalysisResponse summarizes a batch invoice-analysis run.
type AnalysisResponse struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	ProcessedInvoices int      `json:"processed_invoices"`
	Errors            []string `json:"errors"`
}

// ChatRequest is the chat-facing query shape.
type ChatRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id,omitempty"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// Source identifies one retrieved record cited in a chat answer.
type Source struct {
	EmployeeName        string              `json:"employee_name"`
	InvoiceFilename     string              `json:"invoice_filename"`
	ReimbursementStatus ReimbursementStatus `json:"reimbursement_status"`
	SimilarityScore     float64             `json:"similarity_score"`
}

// ChatResponse carries the grounded answer plus its cited sources.
type ChatResponse struct {
	Response  string   `json:"response"`
	SessionID string   `json:"session_id"`
	Sources   []Source `json:"sources"`
}
