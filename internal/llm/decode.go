package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// DecodeEntities turns model message content into entities:
// sanitize, validate strictly, then (if lenient) drop offending entities and re-validate.
func DecodeEntities(content []byte, lenient bool, logger *slog.Logger) ([]Entity, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema := BuildEntityJSONSchema()

	cleaned, _, err := NormalizeAndSanitizeJSON(content, logger)
	if err != nil {
		return nil, content, err
	}

	if err := ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		if !lenient {
			return nil, cleaned, fmt.Errorf("schema validation failed: %w", err)
		}
		kept, dropped, lErr := DropInvalidEntities(cleaned)
		if lErr != nil {
			return nil, cleaned, fmt.Errorf("lenient sanitize failed: %w", lErr)
		}
		if vErr := ValidateJSONAgainstSchema(schema, kept); vErr != nil {
			return nil, kept, fmt.Errorf("schema validation failed: %w", vErr)
		}
		logger.Warn("llm.extract.lenient_sanitize_applied", "dropped_entities", dropped)
		cleaned = kept
	}

	var out ExtractResponse
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return nil, cleaned, fmt.Errorf("unmarshal entities: %w", err)
	}
	return out.Entities, cleaned, nil
}
