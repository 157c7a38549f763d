package vectorindex

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"invoicerag/internal/core/llm"
	"invoicerag/internal/models"
)

const testDim = 16

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	return New(llm.NewMockEmbedder(testDim), nil)
}

func addRecord(t *testing.T, ix *Index, employee, filename, content string, status models.ReimbursementStatus) *models.InvoiceRecord {
	t.Helper()
	rec := &models.InvoiceRecord{
		EmployeeName:        employee,
		InvoiceFilename:     filename,
		ReimbursementStatus: status,
		RawContent:          content,
	}
	if _, err := ix.Add(context.Background(), rec); err != nil {
		t.Fatalf("Add(%s) error: %v", filename, err)
	}
	return rec
}

func TestAddThenSearchSelfSimilarity(t *testing.T) {
	ix := newTestIndex(t)
	rec := addRecord(t, ix, "Alice", "taxi.pdf", "taxi ride to airport", models.StatusDeclined)

	results, err := ix.Search(rec.Embedding, 1, nil)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Record.ID != rec.ID {
		t.Errorf("expected top result %s, got %s", rec.ID, results[0].Record.ID)
	}
	if math.Abs(results[0].Score-1.0) > 1e-5 {
		t.Errorf("self-similarity = %v, want ~1.0", results[0].Score)
	}
}

func TestGetByID(t *testing.T) {
	ix := newTestIndex(t)
	rec := addRecord(t, ix, "Alice", "taxi.pdf", "taxi ride", models.StatusDeclined)

	got, ok := ix.Get(rec.ID)
	if !ok {
		t.Fatalf("Get(%s) not found", rec.ID)
	}
	if got.InvoiceFilename != "taxi.pdf" {
		t.Errorf("Get returned wrong record: %+v", got)
	}
	if _, ok := ix.Get("no-such-id"); ok {
		t.Error("Get of unknown id should report not found")
	}
}

func TestSearchTopK(t *testing.T) {
	ix := newTestIndex(t)
	for _, content := range []string{"hotel stay", "team lunch", "conference travel", "office supplies"} {
		addRecord(t, ix, "Bob", "inv.pdf", content, models.StatusFullyReimbursed)
	}

	query := ix.All(nil)[0].Embedding

	tests := []struct {
		name string
		k    int
		want int
	}{
		{name: "k smaller than corpus", k: 2, want: 2},
		{name: "k equal to corpus", k: 4, want: 4},
		{name: "k larger than corpus", k: 10, want: 4},
		{name: "k zero", k: 0, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			results, err := ix.Search(query, tc.k, nil)
			if err != nil {
				t.Fatalf("Search error: %v", err)
			}
			if len(results) != tc.want {
				t.Errorf("got %d results, want %d", len(results), tc.want)
			}
		})
	}
}

func TestSearchDescendingAndStable(t *testing.T) {
	ix := newTestIndex(t)
	for _, content := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		addRecord(t, ix, "Bob", content+".pdf", content, models.StatusFullyReimbursed)
	}

	query := ix.All(nil)[2].Embedding
	results, err := ix.Search(query, 5, nil)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in descending score order at %d: %v > %v", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestSearchPredicateFilters(t *testing.T) {
	ix := newTestIndex(t)
	addRecord(t, ix, "Alice", "a.pdf", "travel expense one", models.StatusDeclined)
	addRecord(t, ix, "Bob", "b.pdf", "travel expense two", models.StatusFullyReimbursed)
	addRecord(t, ix, "Carol", "c.pdf", "travel expense three", models.StatusDeclined)

	query := ix.All(nil)[1].Embedding // Bob's own vector would rank him first unfiltered
	results, err := ix.Search(query, 5, func(r *models.InvoiceRecord) bool {
		return r.ReimbursementStatus == models.StatusDeclined
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 declined results, got %d", len(results))
	}
	for _, r := range results {
		if r.Record.ReimbursementStatus != models.StatusDeclined {
			t.Errorf("filter leaked record with status %s", r.Record.ReimbursementStatus)
		}
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	ix := newTestIndex(t)
	query := make([]float32, testDim)
	query[0] = 1

	results, err := ix.Search(query, 5, nil)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results on empty corpus, got %d", len(results))
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	ix := newTestIndex(t)
	rec := &models.InvoiceRecord{
		RawContent: "whatever",
		Embedding:  make([]float32, testDim+1),
	}

	_, err := ix.Add(context.Background(), rec)
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if ix.Count() != 0 {
		t.Errorf("failed add mutated the index: count = %d", ix.Count())
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	ix := newTestIndex(t)
	if _, err := ix.Search(make([]float32, testDim-1), 3, nil); err == nil {
		t.Error("expected error for mismatched query dimension")
	}
}

func TestConcurrentAdds(t *testing.T) {
	ix := newTestIndex(t)

	contents := []string{"first invoice", "second invoice"}
	var wg sync.WaitGroup
	errs := make([]error, len(contents))
	recs := make([]*models.InvoiceRecord, len(contents))

	for i, content := range contents {
		i, content := i, content
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs[i] = &models.InvoiceRecord{EmployeeName: "Bob", InvoiceFilename: content, RawContent: content}
			_, errs[i] = ix.Add(context.Background(), recs[i])
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Add %d error: %v", i, err)
		}
	}
	if ix.Count() != len(contents) {
		t.Fatalf("expected %d records, got %d", len(contents), ix.Count())
	}
	for _, rec := range recs {
		results, err := ix.Search(rec.Embedding, 1, nil)
		if err != nil || len(results) != 1 {
			t.Fatalf("Search after concurrent add: results=%d err=%v", len(results), err)
		}
		if results[0].Record.ID != rec.ID {
			t.Errorf("record %s not independently retrievable", rec.InvoiceFilename)
		}
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	emb := llm.NewMockEmbedder(testDim)
	a, _ := emb.EmbedTexts(context.Background(), []string{"same text"})
	b, _ := emb.EmbedTexts(context.Background(), []string{"same text"})

	na, nb := Normalize(a[0]), Normalize(b[0])
	for i := range na {
		if na[i] != nb[i] {
			t.Fatalf("normalized embeddings differ at %d: %v != %v", i, na[i], nb[i])
		}
	}

	var norm float64
	for _, v := range na {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("normalized vector has squared norm %v, want 1.0", norm)
	}
}

func TestStatistics(t *testing.T) {
	ix := newTestIndex(t)
	addRecord(t, ix, "Alice", "a.pdf", "hotel", models.StatusDeclined)
	bob := &models.InvoiceRecord{
		EmployeeName:        "Bob",
		InvoiceFilename:     "b.pdf",
		ReimbursementStatus: models.StatusFullyReimbursed,
		ReimbursedAmount:    42.5,
		RawContent:          "meal",
	}
	if _, err := ix.Add(context.Background(), bob); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	stats := ix.Statistics()
	if stats.TotalAnalyses != 2 {
		t.Errorf("TotalAnalyses = %d, want 2", stats.TotalAnalyses)
	}
	if stats.StatusDistribution[string(models.StatusDeclined)] != 1 {
		t.Errorf("declined count = %d, want 1", stats.StatusDistribution[string(models.StatusDeclined)])
	}
	if len(stats.Employees) != 2 {
		t.Errorf("employees = %v, want 2 entries", stats.Employees)
	}
	if stats.TotalReimbursed != 42.5 {
		t.Errorf("TotalReimbursed = %v, want 42.5", stats.TotalReimbursed)
	}
}
