package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"invoicerag/internal/core"
	"invoicerag/internal/models"
)

// ErrEmbedding marks a failure computing an embedding for a single record.
// It never aborts a batch; the remaining records are still processed.
var ErrEmbedding = errors.New("embedding failed")

// WriteError reports a failed Add or Persist. The index is left exactly as it
// was before the call that failed.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("vectorindex: %s: %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// SearchResult is one scored match returned by Search.
type SearchResult struct {
	Record *models.InvoiceRecord
	Score  float64
}

// Stats aggregates the stored analyses for the statistics endpoint.
type Stats struct {
	TotalAnalyses      int            `json:"total_analyses"`
	Employees          []string       `json:"employees"`
	StatusDistribution map[string]int `json:"status_distribution"`
	TotalReimbursed    float64        `json:"total_reimbursed"`
	AverageReimbursed  float64        `json:"average_reimbursed"`
}

// Index is a flat inner-product similarity index over analyzed invoices,
// with a parallel metadata store kept in one-to-one correspondence by
// position. Vectors are unit-normalized at embed time so the inner product
// equals cosine similarity.
type Index struct {
	embedder core.EmbeddingProvider
	dim      int

	mu      sync.RWMutex
	vectors [][]float32
	records []*models.InvoiceRecord
	idToPos map[string]int

	snapshot  *Snapshot
	persistMu sync.Mutex
	dirty     atomic.Bool
}

// New builds an empty index of the embedder's dimension. If snap is non-nil
// the index persists to it after writes and can reload from it on startup.
func New(embedder core.EmbeddingProvider, snap *Snapshot) *Index {
	return &Index{
		embedder: embedder,
		dim:      embedder.Dimension(),
		idToPos:  make(map[string]int),
		snapshot: snap,
	}
}

// Add embeds the record's RawContent if it carries no embedding, normalizes
// the vector and appends vector and metadata as one atomic pair. The record's
// ID and CreatedAt are assigned here. The embedding is computed before the
// write lock is taken so CPU-bound embedding never blocks readers.
func (ix *Index) Add(ctx context.Context, rec *models.InvoiceRecord) (string, error) {
	if rec == nil {
		return "", &WriteError{Op: "add", Err: errors.New("nil record")}
	}

	vec := rec.Embedding
	if vec == nil {
		vecs, err := ix.embedder.EmbedTexts(ctx, []string{rec.RawContent})
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if len(vecs) != 1 {
			return "", fmt.Errorf("%w: got %d vectors, want 1", ErrEmbedding, len(vecs))
		}
		vec = vecs[0]
	}
	if len(vec) != ix.dim {
		return "", &WriteError{Op: "add", Err: fmt.Errorf("dimension mismatch: got %d want %d", len(vec), ix.dim)}
	}
	vec = Normalize(vec)

	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()
	rec.Embedding = vec

	ix.mu.Lock()
	ix.vectors = append(ix.vectors, vec)
	ix.records = append(ix.records, rec)
	ix.idToPos[rec.ID] = len(ix.records) - 1
	ix.mu.Unlock()
	ix.dirty.Store(true)

	// Snapshot failures do not undo the in-memory write; the index stays
	// dirty and the snapshot is retried on the next persist opportunity.
	if err := ix.Persist(); err != nil {
		log.Printf("vectorindex: snapshot failed after add, will retry: %v", err)
	}

	return rec.ID, nil
}

// Search scores the query vector against every stored vector and returns the
// top k by descending inner product. pred, when non-nil, is applied during
// the scan so the result holds exactly k matches whenever at least k records
// satisfy it. Equal scores keep insertion order.
func (ix *Index) Search(query []float32, k int, pred func(*models.InvoiceRecord) bool) ([]SearchResult, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d want %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	candidates := make([]SearchResult, 0, len(ix.records))
	for i, rec := range ix.records {
		if pred != nil && !pred(rec) {
			continue
		}
		candidates = append(candidates, SearchResult{Record: rec, Score: Dot(ix.vectors[i], query)})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

// All returns every stored record matching pred (all records when pred is
// nil), in insertion order.
func (ix *Index) All(pred func(*models.InvoiceRecord) bool) []*models.InvoiceRecord {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*models.InvoiceRecord, 0, len(ix.records))
	for _, rec := range ix.records {
		if pred != nil && !pred(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Get returns the record with the given id.
func (ix *Index) Get(id string) (*models.InvoiceRecord, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	pos, ok := ix.idToPos[id]
	if !ok {
		return nil, false
	}
	return ix.records[pos], true
}

// Count returns the number of stored records.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Dimension returns the configured embedding dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Statistics aggregates status distribution and reimbursement totals over
// all stored analyses.
func (ix *Index) Statistics() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stats := Stats{
		StatusDistribution: make(map[string]int),
		Employees:          []string{},
	}
	seen := make(map[string]bool)
	var reimbursed int

	for _, rec := range ix.records {
		stats.TotalAnalyses++
		stats.StatusDistribution[string(rec.ReimbursementStatus)]++
		if rec.EmployeeName != "" && !seen[rec.EmployeeName] {
			seen[rec.EmployeeName] = true
			stats.Employees = append(stats.Employees, rec.EmployeeName)
		}
		if rec.ReimbursedAmount > 0 {
			stats.TotalReimbursed += rec.ReimbursedAmount
			reimbursed++
		}
	}
	sort.Strings(stats.Employees)
	if reimbursed > 0 {
		stats.AverageReimbursed = stats.TotalReimbursed / float64(reimbursed)
	}
	return stats
}

// Normalize scales v to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// Dot computes the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
