package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel = "text-embedding-3-small"
	defaultChatModel  = "gpt-4o-mini"
	defaultTimeout    = 30 * time.Second
	defaultBatchSize  = 64
	maxRetries        = 3
)

// Client talks to an OpenAI-compatible API and implements both Embedder
// and ChatModel.
type Client struct {
	baseURL     string
	apiKey      string
	embedModel  string
	chatModel   string
	dimension   int
	batchSize   int
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// NewClient creates a provider client from configuration. The API key is
// read from the environment variable named in cfg.APIKeyEnv so the key
// itself never appears in config files.
func NewClient(cfg config.ProviderConfig, log *logger.Logger, m *metrics.Metrics) (*Client, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, errors.New(errors.CodeValidation,
				fmt.Sprintf("missing API key in env %s", cfg.APIKeyEnv))
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = defaultChatModel
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = defaultTimeout
	}
	batchSize := cfg.EmbedBatch
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		embedModel:  embedModel,
		chatModel:   chatModel,
		dimension:   cfg.EmbedDim,
		batchSize:   batchSize,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
		metrics:     m,
	}, nil
}

// Dimension returns the configured embedding dimensionality.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in configured batch sizes and returns one
// vector per input, in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.EmbedRequests.Inc()
		defer func() {
			c.metrics.EmbedLatency.Observe(float64(time.Since(start).Milliseconds()))
		}()
	}

	reqBody := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	if err := c.doJSON(ctx, "/embeddings", reqBody, &out); err != nil {
		return nil, err
	}

	if len(out.Data) != len(texts) {
		return nil, errors.New(errors.CodeInternal,
			fmt.Sprintf("embedding count mismatch: got %d, want %d", len(out.Data), len(texts)))
	}

	// Responses may arrive out of order, the index field is authoritative
	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// Complete runs a single chat completion.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.ChatRequests.Inc()
		defer func() {
			c.metrics.ChatLatency.Observe(float64(time.Since(start).Milliseconds()))
		}()
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.User})

	reqBody := map[string]any{
		"model":       c.chatModel,
		"messages":    messages,
		"temperature": temperature,
	}
	if maxTokens > 0 {
		reqBody["max_tokens"] = maxTokens
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage TokenUsage `json:"usage"`
	}

	if err := c.doJSON(ctx, "/chat/completions", reqBody, &out); err != nil {
		return nil, err
	}

	if len(out.Choices) == 0 {
		return nil, errors.New(errors.CodeInternal, "no completion returned")
	}

	return &ChatResponse{
		Text:  out.Choices[0].Message.Content,
		Usage: out.Usage,
	}, nil
}

// doJSON posts a JSON body and decodes the JSON response, retrying on
// 429 and 5xx with exponential backoff.
func (c *Client) doJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal request", err)
	}

	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrap(errors.CodeTimeout, "request cancelled", ctx.Err())
			case <-time.After(retryDelay(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return errors.Wrap(errors.CodeInternal, "failed to build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("provider returned %s", resp.Status)
			if retryAfter > 0 && attempt < maxRetries {
				select {
				case <-ctx.Done():
					return errors.Wrap(errors.CodeTimeout, "request cancelled", ctx.Err())
				case <-time.After(retryAfter):
				}
			}
			continue
		}

		if resp.StatusCode >= 300 {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return errors.New(errors.CodeUnavailable,
				fmt.Sprintf("provider returned %s: %s", resp.Status, string(payload)))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		_ = resp.Body.Close()
		if err != nil {
			return errors.Wrap(errors.CodeInternal, "failed to decode response", err)
		}
		return nil
	}

	return errors.Wrap(errors.CodeUnavailable, "provider request failed after retries", lastErr)
}

// parseRetryAfter parses a Retry-After header in seconds form.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryDelay returns the backoff delay for an attempt, capped at 5s.
func retryDelay(attempt int) time.Duration {
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
