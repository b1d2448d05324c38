// Package openai embeds text through any OpenAI-compatible /embeddings
// endpoint, including Ollama's /v1 API.
package openai

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/retry"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client implements domain.Embedder.
type Client struct {
	client *openai.Client
	model  openai.EmbeddingModel
	policy retry.Policy

	mu        sync.RWMutex
	dimension int
}

// NewClient creates an embeddings client. The API key is read from the
// environment variable named by APIKeyEnv; local servers accept any key.
func NewClient(cfg Config) *Client {
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		key = "ollama"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	oc := openai.DefaultConfig(key)
	oc.BaseURL = cfg.BaseURL
	return &Client{
		client: openai.NewClientWithConfig(oc),
		model:  openai.EmbeddingModel(cfg.Model),
		policy: retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryDelay, Timeout: cfg.Timeout},
	}
}

func (c *Client) Name() string { return "openai" }

// Prepare learns the vector dimension from the first corpus entry.
func (c *Client) Prepare(ctx context.Context, corpus []string) error {
	if c.Dimension() > 0 || len(corpus) == 0 {
		return nil
	}
	_, err := c.Embed(ctx, corpus[0])
	return err
}

// Dimension is zero until the first successful Embed.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := retry.Do(ctx, c.policy, "embed", func(ctx context.Context) ([]float32, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: c.model,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, errors.New("no embedding returned")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(out)
	}
	c.mu.Unlock()
	return out, nil
}
