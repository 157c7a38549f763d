package extract

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
)

// PDFExtractor pulls plain text out of PDF bytes via docconv.
type PDFExtractor struct {
	useReadability bool
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{useReadability: false}
}

// Text converts a PDF into whitespace-normalized plain text. An empty
// extraction is an error: an invoice with no readable text cannot be
// analyzed.
func (e *PDFExtractor) Text(data []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}

	var b strings.Builder
	for _, line := range strings.Split(res.Body, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return text, nil
}
