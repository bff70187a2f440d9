// Package encoder converts intent events and boundaries into the
// fixed-size vectors the enforcement engine compares. The pipeline is
// slot text, 384-d embedding, 32-d sparse projection, L2 normalise.
package encoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
)

// EmbedDim is the required output dimensionality of every embedder.
const EmbedDim = 384

// Embedder produces a fixed-dimension text embedding. Implementations
// must return exactly EmbedDim components or an error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPEmbedder struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewHTTPEmbedder returns an embedder against an OpenAI-compatible
// embeddings API. baseURL carries no trailing slash.
func NewHTTPEmbedder(baseURL, model, apiKey string, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		baseURL: baseURL,
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed fetches one embedding. Any transport or shape error is
// returned to the caller, which fails closed.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding request: status %d: %s", resp.StatusCode, msg)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) != 1 {
		return nil, fmt.Errorf("embed response: got %d embeddings, want 1", len(parsed.Data))
	}
	if got := len(parsed.Data[0].Embedding); got != EmbedDim {
		return nil, fmt.Errorf("embed response: dimension %d, want %d", got, EmbedDim)
	}
	return parsed.Data[0].Embedding, nil
}

// HashEmbedder derives a deterministic pseudo-embedding from the text
// alone. It preserves exact-text equality (identical texts embed
// identically, distinct texts are near-orthogonal with high
// probability) but carries no semantic similarity. Used in dev mode
// and tests where no embedding service is reachable.
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, EmbedDim)
	var counter [8]byte
	seed := xxhash.Sum64String(text)
	for i := 0; i < EmbedDim; i++ {
		binary.LittleEndian.PutUint64(counter[:], seed+uint64(i))
		h := xxhash.Sum64(counter[:])
		// Map the hash into [-1, 1).
		out[i] = float32(int64(h)) / float32(math.MaxInt64)
	}
	return out, nil
}
