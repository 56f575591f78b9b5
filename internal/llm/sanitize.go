package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/geoextract/constants"
)

var numericFields = []string{"value", "detection_limit", "depth_from", "depth_to", "depth_m", "strike", "dip", "azimuth"}

// NormalizeAndSanitizeJSON
// - Canonicalizes entity_type synonyms (drill_hole -> drillhole)
// - Drops null/empty fields
// - Coerces numeric strings for known numeric fields
// - Removes unknown keys on entities (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	// some models answer with a bare array or a differently named key
	if _, ok := doc["entities"]; !ok {
		for _, alt := range []string{"results", "items", "data"} {
			if v, ok := doc[alt]; ok {
				doc["entities"] = v
				dropped = append(dropped, alt+"->entities")
				break
			}
		}
	}
	for k := range maps.Clone(doc) {
		if k != "entities" {
			delete(doc, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	items, _ := doc["entities"].([]any)
	out := make([]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("entities[%d](type)", i))
			continue
		}
		if s, ok := m["entity_type"].(string); ok {
			if t, ok := constants.CanonicalizeEntityType(s); ok {
				m["entity_type"] = string(t)
			}
		}
		if s, ok := m["source_text"].(string); ok {
			m["source_text"] = strings.TrimSpace(s)
		}
		switch c := m["confidence"].(type) {
		case nil:
			delete(m, "confidence")
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil {
				m["confidence"] = f
			} else {
				delete(m, "confidence")
				dropped = append(dropped, fmt.Sprintf("entities[%d].confidence", i))
			}
		}
		for k := range maps.Clone(m) {
			switch k {
			case "entity_type", "source_text", "fields", "confidence":
			default:
				delete(m, k)
				dropped = append(dropped, fmt.Sprintf("entities[%d].%s(unknown)", i, k))
			}
		}
		fields, _ := m["fields"].(map[string]any)
		if fields == nil {
			fields = map[string]any{}
		}
		sanitizeFields(fields)
		if id, ok := fields["sample_id"]; ok {
			if _, has := fields["id"]; !has {
				fields["id"] = id
			}
			delete(fields, "sample_id")
		}
		if assays, ok := fields["assays"].([]any); ok {
			for _, a := range assays {
				if am, ok := a.(map[string]any); ok {
					sanitizeFields(am)
				}
			}
		}
		m["fields"] = fields
		out = append(out, m)
	}
	doc["entities"] = out

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return b, dropped, nil
}

// sanitizeFields drops null/empty values, trims strings and coerces numeric strings in place.
func sanitizeFields(fields map[string]any) {
	for k, v := range maps.Clone(fields) {
		switch t := v.(type) {
		case nil:
			delete(fields, k)
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				delete(fields, k)
				continue
			}
			fields[k] = s
		}
	}
	for _, k := range numericFields {
		s, ok := fields[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "°"), "m"))
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
			fields[k] = f
		} else {
			delete(fields, k)
		}
	}
}
