package archive

import "context"

// Archiver keeps original uploaded documents retrievable after analysis.
// Archival is best-effort: a failed store is logged by the caller and never
// fails the analysis that triggered it.
type Archiver interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}
