package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"invoicerag/internal/core"
	"invoicerag/internal/core/archive"
	"invoicerag/internal/core/extract"
	"invoicerag/internal/core/llm"
	"invoicerag/internal/models"
	"invoicerag/internal/vectorindex"
)

// AnalysisService runs the two-phase analysis flow for a batch of invoices:
// obtain a verdict from the LLM collaborator, then hand the combined invoice
// text and verdict to the vector index. One failed invoice never aborts the
// rest of the batch.
type AnalysisService struct {
	llm         core.LLMProvider
	index       *vectorindex.Index
	pdf         core.TextExtractor
	archiver    archive.Archiver // optional; nil disables archival
	concurrency int
}

func NewAnalysisService(llmProvider core.LLMProvider, index *vectorindex.Index, pdf core.TextExtractor, arch archive.Archiver, concurrency int) *AnalysisService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &AnalysisService{
		llm:         llmProvider,
		index:       index,
		pdf:         pdf,
		archiver:    arch,
		concurrency: concurrency,
	}
}

// AnalyzeBatch extracts the policy text and every invoice PDF from the
// archive, analyzes them concurrently and reports per-item results.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, employeeName string, policyPDF, invoicesZip []byte) (*models.AnalysisResponse, error) {
	policyText, err := s.pdf.Text(policyPDF)
	if err != nil {
		return nil, fmt.Errorf("policy PDF: %w", err)
	}

	invoices, err := extract.InvoicesFromZip(invoicesZip)
	if err != nil {
		return nil, fmt.Errorf("invoices ZIP: %w", err)
	}
	log.Printf("analysis: found %d invoice PDFs for %s", len(invoices), employeeName)

	batchID := uuid.NewString()

	var mu sync.Mutex
	var processed int
	errs := []string{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, inv := range invoices {
		inv := inv
		g.Go(func() error {
			if err := s.analyzeOne(gctx, employeeName, batchID, policyText, inv); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", inv.Filename, err))
				mu.Unlock()
				log.Printf("analysis: %s failed: %v", inv.Filename, err)
				return nil // per-item failure, keep the batch going
			}
			mu.Lock()
			processed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Successfully processed %d invoices", processed)
	if len(errs) > 0 {
		msg += fmt.Sprintf(" with %d errors", len(errs))
	}
	return &models.AnalysisResponse{
		Success:           processed > 0,
		Message:           msg,
		ProcessedInvoices: processed,
		Errors:            errs,
	}, nil
}

func (s *AnalysisService) analyzeOne(ctx context.Context, employeeName, batchID, policyText string, inv extract.InvoiceFile) error {
	invoiceText, err := s.pdf.Text(inv.Data)
	if err != nil {
		return err
	}

	system, user := llm.AnalysisPrompt(policyText, invoiceText, employeeName, inv.Filename)
	completion, err := s.llm.Generate(ctx, system, user)
	if err != nil {
		return fmt.Errorf("llm verdict: %w", err)
	}

	verdict, err := llm.ParseVerdict(completion)
	if err != nil {
		return err
	}

	rec := recordFromVerdict(employeeName, inv.Filename, invoiceText, verdict)

	// Archive the original before indexing so the stored record carries the
	// key its document lives under. A failed store is logged, not fatal.
	if s.archiver != nil {
		key := fmt.Sprintf("%s/%s/%s", employeeName, batchID, inv.Filename)
		if _, err := s.archiver.Store(ctx, key, inv.Data, "application/pdf"); err != nil {
			log.Printf("analysis: archive of %s failed: %v", inv.Filename, err)
		} else {
			rec.ArchiveKey = key
		}
	}

	id, err := s.index.Add(ctx, rec)
	if err != nil {
		return err
	}
	log.Printf("analysis: stored %s as %s", inv.Filename, id)
	return nil
}

// recordFromVerdict builds the indexable record. RawContent concatenates the
// key verdict fields with the invoice text (truncated) and is what gets
// embedded.
func recordFromVerdict(employeeName, filename, invoiceText string, v *llm.Verdict) *models.InvoiceRecord {
	rec := &models.InvoiceRecord{
		EmployeeName:        employeeName,
		InvoiceFilename:     filename,
		ReimbursementStatus: models.ReimbursementStatus(v.ReimbursementStatus),
		Reasoning:           v.Reason,
		InvoiceDate:         v.InvoiceDate,
		InvoiceNumber:       v.InvoiceNumber,
		ExpenseCategory:     v.ExpenseCategory,
		PolicyViolations:    v.PolicyViolations,
		ApprovedItems:       v.ApprovedItems,
		RejectedItems:       v.RejectedItems,
	}
	if v.TotalInvoiceAmount != nil && *v.TotalInvoiceAmount > 0 {
		rec.TotalAmount = *v.TotalInvoiceAmount
	}
	if v.ReimbursementAmount != nil {
		rec.ReimbursedAmount = *v.ReimbursementAmount
	}
	// The model occasionally returns amounts outside the invoice total;
	// keep the stored pair within 0 <= reimbursed <= total.
	if rec.ReimbursedAmount < 0 {
		rec.ReimbursedAmount = 0
	}
	if rec.ReimbursedAmount > rec.TotalAmount {
		if rec.TotalAmount == 0 {
			// Total omitted but a payout named; trust the payout.
			rec.TotalAmount = rec.ReimbursedAmount
		} else {
			rec.ReimbursedAmount = rec.TotalAmount
		}
	}

	excerpt := invoiceText
	if len(excerpt) > 500 {
		cut := 500
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}
	rec.RawContent = strings.Join([]string{
		"Employee: " + employeeName,
		"Status: " + v.ReimbursementStatus,
		fmt.Sprintf("Amount: %.2f", rec.ReimbursedAmount),
		"Reason: " + v.Reason,
		"Invoice Content: " + excerpt,
		"Category: " + v.ExpenseCategory,
		"Date: " + v.InvoiceDate,
	}, " ")
	return rec
}
