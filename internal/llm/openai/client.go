package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/internal/llm"
)

// ExtractEntities implements llm.EntityExtractor using chat/completions in JSON mode.
// Low-confidence OCR pages also carry the page image.
func (c *Client) ExtractEntities(ctx context.Context, req llm.ExtractRequest) ([]llm.Entity, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	attach, dataURL, _ := llm.ShouldAttachImage(req)
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"backend", c.Name(),
		"model", c.cfg.Model,
		"document_id", req.DocumentID,
		"page", req.PageIndex,
		"text_len", len(req.Text),
		"ocr_confidence", req.OCRConfidence,
		"image_attached", attach,
	)

	schema := llm.BuildEntityJSONSchema()
	user := llm.BuildUserPrompt(req, attach) + "\n\nReturn ONLY JSON that matches the provided schema."
	var userContent any = user
	if attach {
		userContent = []map[string]any{
			{"type": "text", "text": user},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(req)},
			{"role": "user", "content": userContent},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, httpErr := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if httpErr != nil {
		var se *llm.StatusError
		if errors.As(httpErr, &se) && se.Status == 429 {
			c.limiter.RecordRateLimited(se.RetryAfter)
		}
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("openai: %w", httpErr)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("no choices in openai response")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	entities, cleaned, err := llm.DecodeEntities(content, c.cfg.LenientOptional, c.logger)
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

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
