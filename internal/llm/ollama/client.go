package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/internal/llm"
)

// Config for a local Ollama server.
type Config struct {
	BaseURL         string // default http://localhost:11434
	Model           string // e.g., "llama3.1:8b"
	Temperature     float32
	Timeout         time.Duration
	LenientOptional bool
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *llm.RateLimiter
	logger  *slog.Logger
}

// NewClient builds a client for Ollama's /api/chat endpoint. limiter may be nil.
func NewClient(cfg Config, limiter *llm.RateLimiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1:8b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, limiter: limiter, logger: logger}
}

func (c *Client) Name() string { return "ollama" }

// ExtractEntities implements llm.EntityExtractor using /api/chat with format=json.
func (c *Client) ExtractEntities(ctx context.Context, req llm.ExtractRequest) ([]llm.Entity, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	attach := false
	user := map[string]any{"role": "user"}
	if ok, _, _ := llm.ShouldAttachImage(req); ok {
		if b64, err := llm.ReadImageBase64(req.ImagePath); err == nil {
			user["images"] = []string{b64}
			attach = true
		}
	}
	user["content"] = llm.BuildUserPrompt(req, attach) + "\n\nReturn ONLY JSON that matches the provided schema."

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
	body := map[string]any{
		"model":  c.cfg.Model,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": c.cfg.Temperature,
		},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(req) + "\nJSON Schema:\n" + string(schemaJSON)},
			user,
		},
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/chat"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, nil, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("ollama: %w", err)
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, raw, fmt.Errorf("decode ollama response: %w", err)
	}

	entities, cleaned, err := llm.DecodeEntities([]byte(strings.TrimSpace(resp.Message.Content)), c.cfg.LenientOptional, c.logger)
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
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return entities, cleaned, nil
}
