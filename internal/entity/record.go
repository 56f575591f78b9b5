package entity

import (
	"maps"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/constants"
)

// Source is the provenance of a record.
type Source struct {
	DocumentID uuid.UUID `json:"document_id"`
	PageIndex  int       `json:"page_index"`
	TextSpan   string    `json:"text_span"`
}

// Record is a validated candidate; the unit that is exported and archived.
type Record struct {
	EntityType           constants.EntityType       `json:"entity_type"`
	Fields               map[string]any             `json:"fields"`
	NormalizedCoordinate *NormalizedCoordinate      `json:"normalized_coordinate"`
	Confidence           float64                    `json:"confidence"`
	Method               constants.ExtractionMethod `json:"method"`
	Status               constants.RecordStatus     `json:"status"`
	Reason               string                     `json:"reason,omitempty"`
	Source               Source                     `json:"source"`
	Seq                  int                        `json:"seq"`
}

// Geolocated reports whether the record belongs in a geometry export.
func (r Record) Geolocated() bool {
	return r.NormalizedCoordinate != nil && r.Status != constants.StatusRejected
}

// Clone returns a copy that shares nothing mutable with r. Nested values in
// Fields (assay lists) are shared.
func (r Record) Clone() Record {
	out := r
	out.Fields = maps.Clone(r.Fields)
	if r.NormalizedCoordinate != nil {
		nc := *r.NormalizedCoordinate
		out.NormalizedCoordinate = &nc
	}
	return out
}

// CloneRecords clones every record of rs.
func CloneRecords(rs []Record) []Record {
	if rs == nil {
		return nil
	}
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}
