package llm

import "github.com/joseph-ayodele/geoextract/constants"

// BuildEntityJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass it to the model as a structured output constraint and also use it locally to validate.
func BuildEntityJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"entities": map[string]any{
				"type":  "array",
				"items": BuildSingleEntitySchema(),
			},
		},
		"required": []string{"entities"},
	}
}

// BuildSingleEntitySchema constrains one entity; each type names its required field.
func BuildSingleEntitySchema() map[string]any {
	var rules []any
	for _, t := range constants.EntityTypes() {
		rules = append(rules, map[string]any{
			"if": map[string]any{
				"properties": map[string]any{"entity_type": map[string]any{"const": string(t)}},
			},
			"then": map[string]any{
				"properties": map[string]any{"fields": fieldsSchema(t)},
			},
		})
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"entity_type": map[string]any{"type": "string", "enum": constants.EntityTypesAsStrings()},
			"source_text": map[string]any{"type": "string", "minLength": 1},
			"fields":      map[string]any{"type": "object"},
			"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"entity_type", "source_text", "fields"},
		"allOf":    rules,
	}
}

func fieldsSchema(t constants.EntityType) map[string]any {
	var props map[string]any
	switch t {
	case constants.EntityCoordinate:
		props = map[string]any{
			"raw":    nonEmptyString(),
			"datum":  map[string]any{"type": "string"},
			"format": map[string]any{"type": "string"},
		}
	case constants.EntitySample:
		props = map[string]any{
			"id": nonEmptyString(),
			"assays": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"element":         nonEmptyString(),
						"value":           map[string]any{"type": "number"},
						"unit":            map[string]any{"type": "string"},
						"detection_limit": map[string]any{"type": "number"},
					},
					"required": []string{"element", "value", "unit"},
				},
			},
			"lithology": map[string]any{"type": "string"},
			"depth_m":   map[string]any{"type": "number"},
		}
	case constants.EntityDrillHole:
		props = map[string]any{
			"hole_id":    nonEmptyString(),
			"depth_from": map[string]any{"type": "number"},
			"depth_to":   map[string]any{"type": "number"},
			"lithology":  map[string]any{"type": "string"},
			"azimuth":    map[string]any{"type": "number"},
			"dip":        map[string]any{"type": "number"},
		}
	case constants.EntityObservation:
		props = map[string]any{
			"description": nonEmptyString(),
			"category":    map[string]any{"type": "string", "enum": []string{"structural", "lithology", "alteration", "mineralization", "other"}},
			"strike":      map[string]any{"type": "number"},
			"dip":         map[string]any{"type": "number"},
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{t.RequiredField()},
	}
}

func nonEmptyString() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}
