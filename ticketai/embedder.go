package ticketai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrEmbedding marks provider failures from the embedding client. Callers
// must not persist anything when they see it; no partial vectors are ever
// returned alongside it.
var ErrEmbedding = errors.New("ticketai: embedding failed")

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type httpEmbedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	dimension  int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewHTTPEmbedder builds an embedding client against an OpenAI compatible
// /embeddings endpoint using the shared AI configuration.
func NewHTTPEmbedder(cfg Config) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ticketai: embedding API key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("ticketai: invalid embedding base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(cfg.EmbeddingModel)
	if modelID == "" {
		modelID = "text-embedding-3-small"
	}

	return &httpEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		modelID:    modelID,
		dimension:  cfg.Dimension,
	}, nil
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected a single vector, got %d", ErrEmbedding, len(vectors))
	}
	return vectors[0], nil
}

func (e *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e == nil {
		return nil, errors.New("ticketai: embedder is not configured")
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: input text is empty", ErrEmbedding)
	}
	// Every input must carry text: dropping blanks silently would misalign
	// the returned vectors with the caller's slice.
	sanitized := make([]string, len(texts))
	for i, item := range texts {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: input text at position %d is empty", ErrEmbedding, i)
		}
		// newlines degrade embedding quality with these models
		sanitized[i] = strings.ReplaceAll(trimmed, "\n", " ")
	}

	payload := embeddingRequest{
		Model: e.modelID,
		Input: sanitized,
	}
	if e.dimension > 0 {
		dim := e.dimension
		payload.Dimensions = &dim
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("ticketai: encode embedding payload: %w", err)
	}

	endpoint := e.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("ticketai: create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %s: %s", ErrEmbedding, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEmbedding, err)
	}

	if len(decoded.Data) != len(sanitized) {
		return nil, fmt.Errorf("%w: response count mismatch (expected %d, got %d)", ErrEmbedding, len(sanitized), len(decoded.Data))
	}

	// Results are placed by the provider's index field so a reordered
	// response still lines up with the input slice.
	vectors := make([][]float32, len(sanitized))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: response index %d out of range", ErrEmbedding, item.Index)
		}
		if vectors[item.Index] != nil {
			return nil, fmt.Errorf("%w: duplicate response index %d", ErrEmbedding, item.Index)
		}
		vector := make([]float32, 0, len(item.Embedding))
		for _, value := range item.Embedding {
			vector = append(vector, float32(value))
		}
		if e.dimension > 0 && len(vector) != e.dimension {
			return nil, fmt.Errorf("%w: vector length %d does not match expected %d", ErrEmbedding, len(vector), e.dimension)
		}
		vectors[item.Index] = vector
	}

	return vectors, nil
}
