package retrieval

import (
	"errors"
	"testing"
	"time"

	"invoicerag/internal/models"
)

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr bool
	}{
		{
			name: "nil map",
			raw:  nil,
		},
		{
			name: "employee name",
			raw:  map[string]any{"employee_name": "Alice"},
		},
		{
			name: "single status",
			raw:  map[string]any{"reimbursement_status": "Declined"},
		},
		{
			name: "status set",
			raw:  map[string]any{"reimbursement_status": []any{"Declined", "Partially Reimbursed"}},
		},
		{
			name: "date range",
			raw:  map[string]any{"date_from": "2024-01-01", "date_to": "2024-12-31"},
		},
		{
			name:    "unknown key",
			raw:     map[string]any{"department": "engineering"},
			wantErr: true,
		},
		{
			name:    "wrong employee type",
			raw:     map[string]any{"employee_name": 7},
			wantErr: true,
		},
		{
			name:    "unknown status value",
			raw:     map[string]any{"reimbursement_status": "Approved"},
			wantErr: true,
		},
		{
			name:    "malformed date",
			raw:     map[string]any{"date_from": "yesterday"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFilters(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidFilter) {
					t.Errorf("expected ErrInvalidFilter, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tc.raw == nil && f != nil {
				t.Error("empty input should yield nil filters")
			}
		})
	}
}

func TestFilterPredicate(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	rec := &models.InvoiceRecord{
		EmployeeName:        "Alice",
		ReimbursementStatus: models.StatusDeclined,
		CreatedAt:           time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		f    *Filters
		want bool
	}{
		{name: "nil filters match", f: nil, want: true},
		{name: "employee exact", f: &Filters{EmployeeName: "Alice"}, want: true},
		{name: "employee case-insensitive", f: &Filters{EmployeeName: "alice"}, want: true},
		{name: "employee mismatch", f: &Filters{EmployeeName: "Bob"}, want: false},
		{name: "status member", f: &Filters{Statuses: []models.ReimbursementStatus{models.StatusDeclined}}, want: true},
		{name: "status not member", f: &Filters{Statuses: []models.ReimbursementStatus{models.StatusFullyReimbursed}}, want: false},
		{name: "inside date range", f: &Filters{DateFrom: &from, DateTo: &to}, want: true},
		{name: "before range", f: &Filters{DateFrom: &to}, want: false},
		{name: "after range", f: &Filters{DateTo: &from}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pred := tc.f.Predicate()
			got := pred == nil || pred(rec)
			if got != tc.want {
				t.Errorf("predicate = %v, want %v", got, tc.want)
			}
		})
	}
}
