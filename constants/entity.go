package constants

import (
	"strings"
)

// EntityType is the discriminator of a candidate entity.
type EntityType string

const (
	EntityCoordinate  EntityType = "coordinate"
	EntitySample      EntityType = "sample"
	EntityDrillHole   EntityType = "drillhole"
	EntityObservation EntityType = "observation"
)

// allEntityTypes is also the output order within a page.
var allEntityTypes = []EntityType{
	EntityCoordinate,
	EntitySample,
	EntityDrillHole,
	EntityObservation,
}

func EntityTypes() []EntityType {
	out := make([]EntityType, len(allEntityTypes))
	copy(out, allEntityTypes)
	return out
}

func EntityTypesAsStrings() []string {
	result := make([]string, len(allEntityTypes))
	for i, t := range allEntityTypes {
		result[i] = string(t)
	}
	return result
}

// Rank returns the position of t in the output order; unknown types sort last.
func (t EntityType) Rank() int {
	for i, x := range allEntityTypes {
		if x == t {
			return i
		}
	}
	return len(allEntityTypes)
}

// RequiredField is the field an entity must carry to be structurally valid.
func (t EntityType) RequiredField() string {
	switch t {
	case EntityCoordinate:
		return "raw"
	case EntitySample:
		return "id"
	case EntityDrillHole:
		return "hole_id"
	case EntityObservation:
		return "description"
	}
	return ""
}

// CanonicalizeEntityType maps model output labels onto an EntityType.
func CanonicalizeEntityType(input string) (EntityType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]EntityType{
		"coordinates":             EntityCoordinate,
		"coordinate":              EntityCoordinate,
		"location":                EntityCoordinate,
		"locations":               EntityCoordinate,
		"point":                   EntityCoordinate,
		"samples":                 EntitySample,
		"assay":                   EntitySample,
		"assays":                  EntitySample,
		"drill_hole":              EntityDrillHole,
		"drill_holes":             EntityDrillHole,
		"drillholes":              EntityDrillHole,
		"drill hole":              EntityDrillHole,
		"observations":            EntityObservation,
		"geological_observation":  EntityObservation,
		"geological_observations": EntityObservation,
	}
	if t, ok := synonyms[normalized]; ok {
		return t, true
	}
	for _, t := range allEntityTypes {
		if normalized == string(t) {
			return t, true
		}
	}
	return "", false
}

// ExtractionMethod tags how a candidate was produced.
type ExtractionMethod string

const (
	MethodPattern ExtractionMethod = "pattern"
	MethodModel   ExtractionMethod = "model"
)

// RecordStatus is the validation outcome of a record.
type RecordStatus string

const (
	StatusAccepted RecordStatus = "accepted"
	StatusFlagged  RecordStatus = "flagged"
	StatusRejected RecordStatus = "rejected"
)

// Validation reasons. These strings end up in exports; keep them stable.
const (
	ReasonOutOfExpectedRange   = "coordinate-out-of-expected-range"
	ReasonOutOfRange           = "coordinate-out-of-range"
	ReasonUnparseable          = "unparseable-coordinate"
	ReasonUnsupportedSystem    = "coordinate-system-unsupported"
	ReasonDatumAssumed         = "datum-assumed-wgs84"
	ReasonDuplicateSampleID    = "duplicate-sample-id"
	ReasonBelowThreshold       = "below-confidence-threshold"
	ReasonMissingField         = "missing-required-field"
	ReasonNegativeAssay        = "negative-assay-value"
	ReasonUnknownUnit          = "unknown-assay-unit"
	ReasonUnknownElement       = "unknown-element"
	ReasonDetectionLimit       = "detection-limit-exceeds-value"
	ReasonInvalidDepth         = "invalid-depth-interval"
	ReasonStructuralOutOfRange = "structural-measurement-out-of-range"
)

// Coverage gap reasons.
const (
	GapRasterizeFailed   = "rasterize-failed"
	GapRecognitionFailed = "recognition-unavailable"
	GapExtractionTimeout = "extraction-timeout"
	GapExtractionFailed  = "extraction-failed"
	GapCancelled         = "cancelled"
)
