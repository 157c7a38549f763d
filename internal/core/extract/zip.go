package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
)

// InvoiceFile is one PDF pulled out of an uploaded archive.
type InvoiceFile struct {
	Filename string
	Data     []byte
}

// maxEntrySize bounds a single archive entry so a crafted ZIP cannot exhaust
// memory.
const maxEntrySize = 50 << 20

// InvoicesFromZip returns every PDF inside the archive. Non-PDF entries and
// unreadable entries are skipped with a log line rather than failing the
// batch; directory components are stripped from entry names.
func InvoicesFromZip(data []byte) ([]InvoiceFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var files []InvoiceFile
	for _, entry := range zr.File {
		name := filepath.Base(entry.Name)
		if entry.FileInfo().IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		if entry.UncompressedSize64 > maxEntrySize {
			log.Printf("extract: skipping %s: entry too large (%d bytes)", name, entry.UncompressedSize64)
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			log.Printf("extract: skipping %s: %v", name, err)
			continue
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
		rc.Close()
		if err != nil {
			log.Printf("extract: skipping %s: %v", name, err)
			continue
		}
		files = append(files, InvoiceFile{Filename: name, Data: content})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no PDF invoices found in archive")
	}
	return files, nil
}
