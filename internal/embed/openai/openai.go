// Package openai implements embed.Provider for OpenAI-compatible embedding APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"github.com/efebarandurmaz/semanticvideo/internal/embed"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements embed.Provider for OpenAI-compatible APIs.
//
// Text inputs go through the standard /embeddings endpoint. Image inputs
// require a multimodal embedding server (Jina, CLIP-serving gateways,
// infinity) that accepts {"image": "<base64>"} entries in the input array;
// text and images must share one vector space for video search to rank
// frames against text queries.
type Client struct {
	api     *oai.Client
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates an OpenAI-compatible embedding provider.
func New(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = "clip-vit-base-patch32"
	}

	cfg := oai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &Client{
		api:     oai.NewClientWithConfig(cfg),
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// NewFromConfig adapts New to the factory constructor signature.
func NewFromConfig(cfg embed.ProviderConfig) (embed.Provider, error) {
	return New(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
}

func (c *Client) Name() string { return "openai" }

// EmbedTexts embeds a batch of texts in one API call.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, oai.EmbeddingRequest{
		Input: texts,
		Model: oai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed texts: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// EmbedImage embeds a single encoded image via the multimodal embeddings
// request body. go-openai has no image-input embedding call, so this goes
// over raw HTTP against the same endpoint.
func (c *Client) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("embed image: empty payload")
	}

	body := map[string]any{
		"model": c.model,
		"input": []map[string]string{
			{"image": base64.StdEncoding.EncodeToString(data)},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed image: %s: %s", resp.Status, respBody)
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embed image: empty response")
	}

	return result.Data[0].Embedding, nil
}
