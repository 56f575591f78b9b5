package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/internal/llm"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Config for the Anthropic Messages API.
type Config struct {
	APIKey          string
	BaseURL         string // default https://api.anthropic.com
	Model           string // e.g., "claude-3-5-sonnet-latest"
	Temperature     float32
	MaxTokens       int
	Timeout         time.Duration
	LenientOptional bool
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *llm.RateLimiter
	logger  *slog.Logger
}

type message struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float32   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient builds a client for /v1/messages. limiter may be nil.
func NewClient(cfg Config, limiter *llm.RateLimiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, limiter: limiter, logger: logger}
}

func (c *Client) Name() string { return "anthropic" }

// ExtractEntities implements llm.EntityExtractor. The schema travels in the
// system prompt; the reply is the first text block.
func (c *Client) ExtractEntities(ctx context.Context, req llm.ExtractRequest) ([]llm.Entity, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	var content []any
	attach := false
	if ok, _, mt := llm.ShouldAttachImage(req); ok && (mt == "image/png" || mt == "image/jpeg") {
		if b64, err := llm.ReadImageBase64(req.ImagePath); err == nil {
			content = append(content, map[string]any{
				"type":   "image",
				"source": map[string]any{"type": "base64", "media_type": mt, "data": b64},
			})
			attach = true
		}
	}
	content = append(content, map[string]any{
		"type": "text",
		"text": llm.BuildUserPrompt(req, attach) + "\n\nReturn ONLY JSON that matches the provided schema.",
	})

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"backend", c.Name(),
		"model", c.cfg.Model,
		"document_id", req.DocumentID,
		"page", req.PageIndex,
		"text_len", len(req.Text),
		"image_attached", attach,
	)

	schemaJSON, _ := json.Marshal(llm.BuildEntityJSONSchema())
	body := messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      llm.BuildSystemPrompt(req) + "\nJSON Schema:\n" + string(schemaJSON),
		Temperature: c.cfg.Temperature,
		Messages:    []message{{Role: "user", Content: content}},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": apiVersion,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("anthropic: %w", err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, raw, fmt.Errorf("decode anthropic response: %w", err)
	}
	if resp.Error != nil {
		return nil, raw, fmt.Errorf("anthropic: %s: %s", resp.Error.Type, resp.Error.Message)
	}
	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, raw, errors.New("anthropic: response has no text content")
	}

	entities, cleaned, err := llm.DecodeEntities([]byte(stripFence(text)), c.cfg.LenientOptional, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, cleaned, err
	}
	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"page", req.PageIndex,
		"entities", len(entities),
		"stop_reason", resp.StopReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return entities, cleaned, nil
}

// stripFence removes a markdown code fence around the JSON reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
