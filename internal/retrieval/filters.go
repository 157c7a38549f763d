package retrieval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"invoicerag/internal/models"
)

// ErrInvalidFilter marks a malformed or unrecognized filter supplied by the
// caller. It is a request error and is never silently ignored.
var ErrInvalidFilter = errors.New("retrieval: invalid filter")

// Filters narrows retrieval to records matching every set predicate.
// EmployeeName matches exactly (case-insensitive); Statuses is
// set-membership; the date range bounds CreatedAt inclusively.
type Filters struct {
	EmployeeName string
	Statuses     []models.ReimbursementStatus
	DateFrom     *time.Time
	DateTo       *time.Time
}

// ParseFilters validates the wire-level filter map from a chat request.
// Recognized keys: employee_name, reimbursement_status (string or list),
// date_from, date_to (RFC 3339 or YYYY-MM-DD). Any other key fails with
// ErrInvalidFilter.
func ParseFilters(raw map[string]any) (*Filters, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	f := &Filters{}
	for key, val := range raw {
		switch key {
		case "employee_name":
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%w: employee_name must be a string", ErrInvalidFilter)
			}
			f.EmployeeName = s
		case "reimbursement_status":
			statuses, err := parseStatuses(val)
			if err != nil {
				return nil, err
			}
			f.Statuses = statuses
		case "date_from":
			t, err := parseDate(val, key)
			if err != nil {
				return nil, err
			}
			f.DateFrom = t
		case "date_to":
			t, err := parseDate(val, key)
			if err != nil {
				return nil, err
			}
			f.DateTo = t
		default:
			return nil, fmt.Errorf("%w: unrecognized key %q", ErrInvalidFilter, key)
		}
	}
	return f, nil
}

func parseStatuses(val any) ([]models.ReimbursementStatus, error) {
	var raw []any
	switch v := val.(type) {
	case string:
		raw = []any{v}
	case []any:
		raw = v
	default:
		return nil, fmt.Errorf("%w: reimbursement_status must be a string or list of strings", ErrInvalidFilter)
	}

	statuses := make([]models.ReimbursementStatus, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: reimbursement_status entries must be strings", ErrInvalidFilter)
		}
		status := models.ReimbursementStatus(s)
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown reimbursement_status %q", ErrInvalidFilter, s)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parseDate(val any, key string) (*time.Time, error) {
	s, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidFilter, key)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q is not a valid date", ErrInvalidFilter, key, s)
}

// Predicate compiles the filters into a metadata predicate for the index
// scan. A nil receiver matches everything.
func (f *Filters) Predicate() func(*models.InvoiceRecord) bool {
	if f == nil {
		return nil
	}
	return func(rec *models.InvoiceRecord) bool {
		if f.EmployeeName != "" && !strings.EqualFold(f.EmployeeName, rec.EmployeeName) {
			return false
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, s := range f.Statuses {
				if rec.ReimbursementStatus == s {
					match = true
					break
				}
			}
			if !match {
				return false
			}
		}
		if f.DateFrom != nil && rec.CreatedAt.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && rec.CreatedAt.After(*f.DateTo) {
			return false
		}
		return true
	}
}
