package llm

import "context"

// ExtractRequest is one page handed to a model backend.
type ExtractRequest struct {
	DocumentID string
	PageIndex  int
	Text       string

	// Neighboring page text for tables that continue across a page break.
	// Entities must not be sourced from it.
	PrevTail string
	NextHead string

	Language string

	ImagePath     string
	OCRConfidence float64
}

// Entity is the normalized shape we want from the model.
type Entity struct {
	EntityType string         `json:"entity_type"`
	SourceText string         `json:"source_text"`
	Fields     map[string]any `json:"fields"`
	Confidence *float64       `json:"confidence,omitempty"`
}

type ExtractResponse struct {
	Entities []Entity `json:"entities"`
}

// EntityExtractor is the interface the extraction stage depends on.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, req ExtractRequest) ([]Entity, []byte /*rawJSON*/, error)
	Name() string
}
