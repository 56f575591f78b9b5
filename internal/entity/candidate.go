package entity

import (
	"maps"
	"slices"

	"github.com/joseph-ayodele/geoextract/constants"
)

// Span locates extracted text inside a page. Start is -1 when the text
// could not be located (model output that paraphrased the source).
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Located reports whether the span has byte offsets.
func (s Span) Located() bool { return s.Start >= 0 && s.End > s.Start }

// Overlaps reports whether two spans cover the same source text.
func (s Span) Overlaps(o Span) bool {
	if s.Located() && o.Located() {
		return s.Start < o.End && o.Start < s.End
	}
	return s.Text != "" && s.Text == o.Text
}

// NormalizedCoordinate is a WGS84 decimal-degree position plus its source notation.
type NormalizedCoordinate struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Format   string  `json:"format"`
	Original string  `json:"original"`
}

// Candidate is a proposed geological fact. Type selects which Fields are meaningful.
type Candidate struct {
	Type       constants.EntityType       `json:"entity_type"`
	PageIndex  int                        `json:"page_index"`
	Span       Span                       `json:"span"`
	Fields     map[string]any             `json:"fields"`
	Confidence float64                    `json:"confidence"`
	Method     constants.ExtractionMethod `json:"method"`
	Seq        int                        `json:"seq"`
	Coordinate *NormalizedCoordinate      `json:"coordinate,omitempty"`
	Notes      []string                   `json:"notes,omitempty"`
}

// Clone returns a copy that shares nothing mutable with c.
func (c Candidate) Clone() Candidate {
	out := c
	out.Fields = maps.Clone(c.Fields)
	out.Notes = slices.Clone(c.Notes)
	if c.Coordinate != nil {
		nc := *c.Coordinate
		out.Coordinate = &nc
	}
	return out
}

// String field accessor; "" when absent or not a string.
func (c Candidate) String(key string) string {
	if s, ok := c.Fields[key].(string); ok {
		return s
	}
	return ""
}

// Float field accessor accepting the numeric shapes JSON decoding produces.
func (c Candidate) Float(key string) (float64, bool) {
	switch v := c.Fields[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Assay is one element measurement of a sample.
type Assay struct {
	Element        string   `json:"element"`
	Value          float64  `json:"value"`
	Unit           string   `json:"unit"`
	DetectionLimit *float64 `json:"detection_limit,omitempty"`
}

// ExpandSampleFields puts a sample's fields in record shape: the identifier
// under "id" and each assay as a numeric field keyed by element symbol
// ("Cu": 0.45). The first assay of an element wins; the typed "assays" list
// is kept for unit and detection limit checks. fields is modified in place.
func ExpandSampleFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	if id, ok := fields["sample_id"]; ok {
		if _, has := fields["id"]; !has {
			fields["id"] = id
		}
		delete(fields, "sample_id")
	}
	for _, a := range (Candidate{Fields: fields}).Assays() {
		if a.Element == "" || a.Element == "id" || a.Element == "assays" {
			continue
		}
		if _, taken := fields[a.Element]; !taken {
			fields[a.Element] = a.Value
		}
	}
	return fields
}

// Assays returns the typed assay list of a sample candidate.
func (c Candidate) Assays() []Assay {
	switch v := c.Fields["assays"].(type) {
	case []Assay:
		return v
	case []any:
		out := make([]Assay, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			a := Assay{}
			a.Element, _ = m["element"].(string)
			a.Unit, _ = m["unit"].(string)
			if f, ok := m["value"].(float64); ok {
				a.Value = f
			}
			if f, ok := m["detection_limit"].(float64); ok {
				a.DetectionLimit = &f
			}
			out = append(out, a)
		}
		return out
	}
	return nil
}
