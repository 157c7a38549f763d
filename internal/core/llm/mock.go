package llm

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"math"

	"invoicerag/internal/core"
)

// MockEmbedder produces deterministic, unit-normalized embeddings derived
// from an MD5 hash of the input text. The same text always yields the same
// vector, which is all the retrieval tests need.
type MockEmbedder struct {
	Dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 128
	}
	return &MockEmbedder{Dim: dim}
}

func (e *MockEmbedder) Dimension() int { return e.Dim }

func (e *MockEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *MockEmbedder) embedOne(text string) []float32 {
	hash := md5.Sum([]byte(text))
	vec := make([]float32, e.Dim)
	for i := range vec {
		hashIdx := (i * 4) % len(hash)
		seed := binary.LittleEndian.Uint32(append(hash[hashIdx:], hash[:4]...))
		vec[i] = float32(seed%1000)/500.0 - 1.0
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		inv := float32(1 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// MockLLM returns scripted responses in order, then repeats the last one.
// Set Err to simulate an unavailable collaborator.
type MockLLM struct {
	Responses []string
	Err       error
	Calls     []string
	next      int
}

func (m *MockLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	m.Calls = append(m.Calls, userPrompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", errors.New("mock llm: no responses configured")
	}
	if m.next < len(m.Responses)-1 {
		m.next++
		return m.Responses[m.next-1], nil
	}
	return m.Responses[len(m.Responses)-1], nil
}

var (
	_ core.EmbeddingProvider = (*MockEmbedder)(nil)
	_ core.LLMProvider       = (*MockLLM)(nil)
)
