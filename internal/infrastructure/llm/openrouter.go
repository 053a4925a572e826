package llm

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

	"go.uber.org/zap"

	"MediMind/internal/config"
	"MediMind/internal/ports"
)

// ErrEmptyReply is returned when the provider answers without any choice.
var ErrEmptyReply = errors.New("inference reply has no choices")

const promptTemplate = `You are a medical prescription parser.
Extract structured data from the prescription text below.
Required fields:
- medicine_name
- dosage (how many tablets/capsules per time)
- quantity (total prescribed)
- frequency (times per day or instructions like 'after food')
- timings (morning, afternoon, evening, night)

Prescription text:
%s

Return output as strict JSON list of objects.
Example:
[
  {
    "medicine_name": "Paracetamol",
    "dosage": "1 tablet",
    "quantity": "10",
    "frequency": "2 times a day",
    "timings": ["morning", "night"]
  }
]`

// OpenRouterClient implements ports.StructuredExtractor against an
// OpenAI-compatible chat completions endpoint.
type OpenRouterClient struct {
	endpoint    string
	model       string
	apiKey      string
	referer     string
	title       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	logger      *zap.Logger
}

var _ ports.StructuredExtractor = (*OpenRouterClient)(nil)

// NewOpenRouterClient builds a client from configuration.
func NewOpenRouterClient(cfg config.LLMConfig, logger *zap.Logger) *OpenRouterClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenRouterClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		referer:     cfg.Referer,
		title:       cfg.Title,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With(zap.String("component", "llm")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// BuildPrompt embeds the OCR text into the extraction instructions.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

// Extract asks the model to structure the text and returns the first choice
// verbatim. The reply is not validated here.
func (c *OpenRouterClient) Extract(ctx context.Context, text string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("openrouter client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("openrouter client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: BuildPrompt(text)}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("openrouter error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrEmptyReply
	}

	reply := decoded.Choices[0].Message.Content
	c.logger.Debug("completion received",
		zap.String("model", c.model),
		zap.Duration("took", time.Since(started)),
		zap.Int("reply_length", len(reply)),
	)
	return reply, nil
}
