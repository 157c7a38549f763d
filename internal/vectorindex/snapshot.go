package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"invoicerag/internal/models"
)

// Snapshot locates the two co-located on-disk artifacts of an index: the
// binary vector file and the JSON metadata file. The pair is versioned
// together; Load rejects a snapshot whose halves disagree.
type Snapshot struct {
	dir          string
	vectorsPath  string
	metadataPath string
}

// NewSnapshot creates the snapshot directory if needed.
func NewSnapshot(dir, vectorsFile, metadataFile string) (*Snapshot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Snapshot{
		dir:          dir,
		vectorsPath:  filepath.Join(dir, vectorsFile),
		metadataPath: filepath.Join(dir, metadataFile),
	}, nil
}

// Persist writes the current index state to the snapshot pair when there are
// unsnapshotted writes. Concurrent persists are serialized; the in-memory
// state is copied under the read lock and file writes happen outside it.
// Each file is written to a temp path and renamed into place so a crash
// never leaves a half-written artifact.
func (ix *Index) Persist() error {
	if ix.snapshot == nil {
		return nil
	}

	ix.persistMu.Lock()
	defer ix.persistMu.Unlock()

	if !ix.dirty.Swap(false) {
		return nil
	}

	ix.mu.RLock()
	vectors := make([][]float32, len(ix.vectors))
	copy(vectors, ix.vectors)
	records := make([]*models.InvoiceRecord, len(ix.records))
	copy(records, ix.records)
	ix.mu.RUnlock()

	if err := ix.snapshot.write(vectors, records, ix.dim); err != nil {
		ix.dirty.Store(true)
		return &WriteError{Op: "persist", Err: err}
	}
	return nil
}

// Load replaces the in-memory state with the most recent valid snapshot.
// A missing snapshot is not an error: the index starts empty. A corrupt or
// mismatched pair is logged and likewise treated as empty rather than
// crashing startup.
func (ix *Index) Load() error {
	if ix.snapshot == nil {
		return nil
	}

	vectors, records, err := ix.snapshot.read(ix.dim)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("vectorindex: no snapshot found, starting empty")
			return nil
		}
		log.Printf("vectorindex: snapshot unreadable, starting empty: %v", err)
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = vectors
	ix.records = records
	ix.idToPos = make(map[string]int, len(records))
	for i, rec := range records {
		rec.Embedding = vectors[i]
		ix.idToPos[rec.ID] = i
	}
	log.Printf("vectorindex: loaded snapshot with %d records", len(records))
	return nil
}

func (s *Snapshot) write(vectors [][]float32, records []*models.InvoiceRecord, dim int) error {
	vecData, err := encodeVectors(vectors, dim)
	if err != nil {
		return err
	}
	metaData, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := writeAtomic(s.vectorsPath, vecData); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := writeAtomic(s.metadataPath, metaData); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *Snapshot) read(dim int) ([][]float32, []*models.InvoiceRecord, error) {
	vecData, err := os.ReadFile(s.vectorsPath)
	if err != nil {
		return nil, nil, err
	}
	metaData, err := os.ReadFile(s.metadataPath)
	if err != nil {
		return nil, nil, err
	}

	vectors, err := decodeVectors(vecData, dim)
	if err != nil {
		return nil, nil, err
	}
	var records []*models.InvoiceRecord
	if err := json.Unmarshal(metaData, &records); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(records) != len(vectors) {
		return nil, nil, fmt.Errorf("snapshot mismatch: %d vectors, %d metadata entries", len(vectors), len(records))
	}
	return vectors, records, nil
}

// encodeVectors serializes vectors as little-endian binary: a count and
// dimension header followed by the packed float32 values.
func encodeVectors(vectors [][]float32, dim int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vectors))); err != nil {
		return nil, fmt.Errorf("write vector count: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(dim)); err != nil {
		return nil, fmt.Errorf("write vector dimension: %w", err)
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector dimension mismatch: got %d want %d", len(v), dim)
		}
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("write vector values: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeVectors(data []byte, dim int) ([][]float32, error) {
	buf := bytes.NewReader(data)
	var count, storedDim int32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read vector count: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &storedDim); err != nil {
		return nil, fmt.Errorf("read vector dimension: %w", err)
	}
	if int(storedDim) != dim {
		return nil, fmt.Errorf("snapshot dimension mismatch: got %d want %d", storedDim, dim)
	}
	if count < 0 || int64(count)*int64(dim)*4 > int64(buf.Len()) {
		return nil, fmt.Errorf("vector count %d inconsistent with %d payload bytes", count, buf.Len())
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		v := make([]float32, dim)
		if err := binary.Read(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
