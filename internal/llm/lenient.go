package llm

import (
	"encoding/json"
	"fmt"
)

// DropInvalidEntities removes entities that individually fail the entity schema,
// so the rest of the page still validates. Returns the indexes that were dropped.
func DropInvalidEntities(doc []byte) ([]byte, []int, error) {
	var resp struct {
		Entities []json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal(doc, &resp); err != nil {
		return nil, nil, err
	}

	schema := BuildSingleEntitySchema()
	kept := make([]json.RawMessage, 0, len(resp.Entities))
	var dropped []int
	for i, e := range resp.Entities {
		if err := ValidateJSONAgainstSchema(schema, e); err != nil {
			dropped = append(dropped, i)
			continue
		}
		kept = append(kept, e)
	}

	b, err := json.Marshal(map[string]any{"entities": kept})
	if err != nil {
		return nil, nil, fmt.Errorf("lenient: encode: %w", err)
	}
	return b, dropped, nil
}
