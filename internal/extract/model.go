package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/llm"
)

// Model extracts candidates through a language model backend.
type Model struct {
	client  llm.EntityExtractor
	timeout time.Duration
	logger  *slog.Logger
}

// NewModel wraps client; timeout bounds each page call (0 disables the deadline).
func NewModel(client llm.EntityExtractor, timeout time.Duration, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{client: client, timeout: timeout, logger: logger}
}

func (m *Model) Method() constants.ExtractionMethod { return constants.MethodModel }

func (m *Model) Extract(ctx context.Context, in PageInput) ([]entity.Candidate, error) {
	callCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	ents, _, err := m.client.ExtractEntities(callCtx, llm.ExtractRequest{
		DocumentID:    in.DocumentID.String(),
		PageIndex:     in.PageIndex,
		Text:          in.Text,
		PrevTail:      in.PrevTail,
		NextHead:      in.NextHead,
		Language:      in.Language,
		ImagePath:     in.ImagePath,
		OCRConfidence: in.OCRConfidence,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: page %d after %s", common.ErrExtractionTimeout, in.PageIndex, m.timeout)
		}
		return nil, fmt.Errorf("model %s page %d: %w", m.client.Name(), in.PageIndex, err)
	}

	out := make([]entity.Candidate, 0, len(ents))
	dropped := 0
	for _, e := range ents {
		c, ok := m.toCandidate(in, e)
		if !ok {
			dropped++
			continue
		}
		c.Seq = len(out)
		out = append(out, c)
	}

	m.logger.Info("extract.model.ok",
		"backend", m.client.Name(),
		"document_id", in.DocumentID,
		"page", in.PageIndex,
		"candidates", len(out),
		"dropped", dropped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (m *Model) toCandidate(in PageInput, e llm.Entity) (entity.Candidate, bool) {
	t, ok := constants.CanonicalizeEntityType(e.EntityType)
	if !ok {
		return entity.Candidate{}, false
	}
	fields := e.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	if t == constants.EntitySample {
		entity.ExpandSampleFields(fields)
	}
	required := t.RequiredField()
	if s, _ := fields[required].(string); strings.TrimSpace(s) == "" {
		if t == constants.EntityCoordinate && strings.TrimSpace(e.SourceText) != "" {
			fields[required] = strings.TrimSpace(e.SourceText)
		} else {
			m.logger.Debug("extract.model.missing_field", "page", in.PageIndex, "entity_type", t, "field", required)
			return entity.Candidate{}, false
		}
	}

	conf := constants.DefaultModelConfidence
	if e.Confidence != nil {
		conf = clamp01(*e.Confidence)
	}
	return entity.Candidate{
		Type:       t,
		PageIndex:  in.PageIndex,
		Span:       locate(in.Text, e.SourceText, fields[required]),
		Fields:     fields,
		Confidence: conf,
		Method:     constants.MethodModel,
	}, true
}

// locate finds the model's quoted source text in the page. Text the model
// paraphrased keeps only the span text with Start/End -1.
func locate(text, source string, fallback any) entity.Span {
	source = strings.TrimSpace(source)
	if source == "" {
		source, _ = fallback.(string)
	}
	if source == "" {
		return entity.Span{Start: -1, End: -1}
	}
	if i := strings.Index(text, source); i >= 0 {
		return entity.Span{Start: i, End: i + len(source), Text: source}
	}
	if i := strings.Index(strings.ToLower(text), strings.ToLower(source)); i >= 0 && len(strings.ToLower(text)) == len(text) {
		return entity.Span{Start: i, End: i + len(source), Text: text[i : i+len(source)]}
	}
	return entity.Span{Start: -1, End: -1, Text: source}
}
