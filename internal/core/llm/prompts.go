package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"invoicerag/internal/models"
)

// Verdict is the structured analysis the LLM collaborator returns for one
// invoice. Optional numeric fields stay nil when the model could not extract
// them.
type Verdict struct {
	ReimbursementStatus string   `json:"reimbursement_status"`
	ReimbursementAmount *float64 `json:"reimbursement_amount"`
	TotalInvoiceAmount  *float64 `json:"total_invoice_amount"`
	Reason              string   `json:"reason"`
	PolicyViolations    []string `json:"policy_violations"`
	ApprovedItems       []string `json:"approved_items"`
	RejectedItems       []string `json:"rejected_items"`
	InvoiceDate         string   `json:"invoice_date"`
	InvoiceNumber       string   `json:"invoice_number"`
	ExpenseCategory     string   `json:"expense_category"`
}

// AnalysisPrompt builds the verdict request for one invoice against the
// company policy.
func AnalysisPrompt(policyText, invoiceText, employeeName, invoiceFilename string) (system, user string) {
	system = "You are an expert financial analyst tasked with analyzing employee expense reimbursements against company policy. Respond with valid JSON only."

	var b strings.Builder
	b.WriteString("**COMPANY REIMBURSEMENT POLICY:**\n")
	b.WriteString(policyText)
	b.WriteString("\n\n**EMPLOYEE INVOICE TO ANALYZE:**\n")
	fmt.Fprintf(&b, "Employee Name: %s\nInvoice File: %s\nInvoice Content:\n%s\n\n", employeeName, invoiceFilename, invoiceText)
	b.WriteString(`**RESPONSE FORMAT (JSON):**
{
    "reimbursement_status": "Fully Reimbursed" | "Partially Reimbursed" | "Declined",
    "reimbursement_amount": <numeric_value_or_null>,
    "total_invoice_amount": <numeric_value_or_null>,
    "reason": "<detailed_explanation_of_decision>",
    "policy_violations": ["<list_of_any_policy_violations>"],
    "approved_items": ["<list_of_approved_expense_items>"],
    "rejected_items": ["<list_of_rejected_expense_items>"],
    "invoice_date": "<extracted_date_or_null>",
    "invoice_number": "<extracted_invoice_number_or_null>",
    "expense_category": "<category_like_travel_meal_cab_etc>"
}

Be thorough, cite specific policy sections in the reason, calculate exact
reimbursement amounts from policy limits, and extract key invoice details.
Analyze the invoice now:`)
	return system, b.String()
}

// ParseVerdict extracts the JSON verdict from a raw completion. Models often
// wrap JSON in prose or code fences, so everything outside the outermost
// braces is discarded. An unknown status is coerced to Declined rather than
// failing the whole invoice.
func ParseVerdict(completion string) (*Verdict, error) {
	start := strings.Index(completion, "{")
	end := strings.LastIndex(completion, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in completion")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(completion[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}

	if v.Reason == "" {
		v.Reason = "Analysis incomplete"
	}
	if !models.ReimbursementStatus(v.ReimbursementStatus).Valid() {
		v.ReimbursementStatus = string(models.StatusDeclined)
		v.Reason = "Unable to determine reimbursement status"
	}
	return &v, nil
}

// ChatPrompt assembles the grounded chat request from retrieved analyses and
// recent conversation history. When no analyses matched, the context says so
// explicitly so the model does not invent data.
func ChatPrompt(query string, sources []*models.InvoiceRecord, history []models.Turn) (system, user string) {
	system = "You are an intelligent assistant for an Invoice Reimbursement System. Answer only from the provided invoice analysis data, in clear markdown. If no relevant data is available, say so explicitly."

	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("**CONVERSATION HISTORY:**\n")
		for _, t := range history {
			fmt.Fprintf(&b, "- %s: %s\n", t.Role, t.Text)
		}
		b.WriteString("\n")
	}

	if len(sources) == 0 {
		b.WriteString("**RELEVANT INVOICE ANALYSES:**\n\nNo matching invoice analyses were found for this query.\n\n")
	} else {
		b.WriteString("**RELEVANT INVOICE ANALYSES:**\n\n")
		for i, rec := range sources {
			fmt.Fprintf(&b, "**Invoice %d:**\n", i+1)
			fmt.Fprintf(&b, "- Employee: %s\n", rec.EmployeeName)
			fmt.Fprintf(&b, "- File: %s\n", rec.InvoiceFilename)
			fmt.Fprintf(&b, "- Status: %s\n", rec.ReimbursementStatus)
			fmt.Fprintf(&b, "- Reimbursed: $%.2f of $%.2f\n", rec.ReimbursedAmount, rec.TotalAmount)
			if rec.InvoiceDate != "" {
				fmt.Fprintf(&b, "- Date: %s\n", rec.InvoiceDate)
			}
			fmt.Fprintf(&b, "- Reason: %s\n\n", rec.Reasoning)
		}
	}

	fmt.Fprintf(&b, "**USER QUERY:** %s\n", query)
	return system, b.String()
}
