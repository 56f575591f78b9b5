package validate

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/coords"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

func cand(t constants.EntityType, page, seq int, conf float64, fields map[string]any) entity.Candidate {
	return entity.Candidate{
		Type:       t,
		PageIndex:  page,
		Seq:        seq,
		Confidence: conf,
		Fields:     fields,
		Method:     constants.MethodPattern,
		Span:       entity.Span{Start: seq, End: seq + 1, Text: "x"},
	}
}

func sample(page, seq int, id string, assays ...entity.Assay) entity.Candidate {
	f := map[string]any{"id": id}
	if len(assays) > 0 {
		f["assays"] = assays
	}
	return cand(constants.EntitySample, page, seq, 1, f)
}

func validateOne(t *testing.T, c entity.Candidate) entity.Record {
	t.Helper()
	out := New(0.6, nil).Validate(uuid.New(), []entity.Candidate{c})
	require.Len(t, out, 1)
	return out[0]
}

func TestValidate_CoordinateScenarios(t *testing.T) {
	raw := "LAT: 35.4717 LON: -117.6797"
	c := cand(constants.EntityCoordinate, 0, 0, 1, map[string]any{"raw": raw})
	c.Span.Text = raw

	inside, err := coords.NewNormalizer(&entity.BBox{MinLat: 34, MaxLat: 36, MinLon: -118, MaxLon: -117}, nil).Normalize(c)
	require.NoError(t, err)
	docID := uuid.New()
	rec := New(0.6, nil).Validate(docID, []entity.Candidate{inside})[0]
	assert.Equal(t, constants.StatusAccepted, rec.Status)
	assert.Empty(t, rec.Reason)
	require.NotNil(t, rec.NormalizedCoordinate)
	assert.InDelta(t, 35.4717, rec.NormalizedCoordinate.Lat, 1e-9)
	assert.InDelta(t, -117.6797, rec.NormalizedCoordinate.Lon, 1e-9)
	assert.Equal(t, entity.Source{DocumentID: docID, PageIndex: 0, TextSpan: raw}, rec.Source)

	outside, err := coords.NewNormalizer(&entity.BBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, nil).Normalize(c)
	require.NoError(t, err)
	rec = validateOne(t, outside)
	assert.Equal(t, constants.StatusFlagged, rec.Status)
	assert.Equal(t, constants.ReasonOutOfExpectedRange, rec.Reason)
	assert.Nil(t, rec.NormalizedCoordinate)
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		cand   entity.Candidate
		status constants.RecordStatus
		reason string
	}{
		{
			name:   "clean sample",
			cand:   sample(0, 0, "SR-1", entity.Assay{Element: "Cu", Value: 0.45, Unit: "%"}),
			status: constants.StatusAccepted,
		},
		{
			name: "out of range coordinate",
			cand: func() entity.Candidate {
				c := cand(constants.EntityCoordinate, 0, 0, 1, map[string]any{"raw": "LAT: 95 LON: 10"})
				c.Coordinate = &entity.NormalizedCoordinate{Lat: 95, Lon: 10, Format: coords.NotationDecimal}
				return c
			}(),
			status: constants.StatusRejected,
			reason: constants.ReasonOutOfRange,
		},
		{
			name:   "below threshold",
			cand:   cand(constants.EntityObservation, 0, 0, 0.59, map[string]any{"description": "granite"}),
			status: constants.StatusFlagged,
			reason: constants.ReasonBelowThreshold,
		},
		{
			name:   "threshold is inclusive",
			cand:   cand(constants.EntityObservation, 0, 0, 0.6, map[string]any{"description": "granite"}),
			status: constants.StatusAccepted,
		},
		{
			name:   "missing required field",
			cand:   cand(constants.EntitySample, 0, 0, 1, map[string]any{"id": "  "}),
			status: constants.StatusRejected,
			reason: "missing-required-field:id",
		},
		{
			name:   "negative assay",
			cand:   sample(0, 0, "SR-1", entity.Assay{Element: "Au", Value: -1, Unit: "ppm"}),
			status: constants.StatusRejected,
			reason: constants.ReasonNegativeAssay,
		},
		{
			name:   "unknown unit and element",
			cand:   sample(0, 0, "SR-1", entity.Assay{Element: "Xx", Value: 1, Unit: "furlongs"}),
			status: constants.StatusFlagged,
			reason: constants.ReasonUnknownUnit + "; " + constants.ReasonUnknownElement,
		},
		{
			name:   "oxide analyte",
			cand:   sample(0, 0, "SR-1", entity.Assay{Element: "Fe2O3", Value: 12, Unit: "wt%"}),
			status: constants.StatusAccepted,
		},
		{
			name: "detection limit above value",
			cand: func() entity.Candidate {
				dl := 0.5
				return sample(0, 0, "SR-1", entity.Assay{Element: "Ag", Value: 0.1, Unit: "g/t", DetectionLimit: &dl})
			}(),
			status: constants.StatusFlagged,
			reason: constants.ReasonDetectionLimit,
		},
		{
			name:   "inverted depth interval",
			cand:   cand(constants.EntityDrillHole, 0, 0, 1, map[string]any{"hole_id": "DDH-1", "depth_from": 25.0, "depth_to": 10.0}),
			status: constants.StatusRejected,
			reason: constants.ReasonInvalidDepth,
		},
		{
			name:   "strike out of range",
			cand:   cand(constants.EntityObservation, 0, 0, 1, map[string]any{"description": "strike 400 dip 30", "strike": 400.0, "dip": 30.0}),
			status: constants.StatusRejected,
			reason: constants.ReasonStructuralOutOfRange,
		},
		{
			name: "unparseable coordinate note",
			cand: func() entity.Candidate {
				c := cand(constants.EntityCoordinate, 0, 0, 1, map[string]any{"raw": "near the mill"})
				c.Notes = []string{constants.ReasonUnparseable}
				return c
			}(),
			status: constants.StatusRejected,
			reason: constants.ReasonUnparseable,
		},
		{
			name: "rejected outranks flagged, reasons in rule order",
			cand: func() entity.Candidate {
				c := cand(constants.EntityCoordinate, 0, 0, 0.2, map[string]any{"raw": "x"})
				c.Coordinate = &entity.NormalizedCoordinate{Lat: 10, Lon: 200}
				c.Notes = []string{constants.ReasonDatumAssumed}
				return c
			}(),
			status: constants.StatusRejected,
			reason: constants.ReasonOutOfRange + "; " + constants.ReasonBelowThreshold + "; " + constants.ReasonDatumAssumed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validateOne(t, tt.cand)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.reason, rec.Reason)
		})
	}
}

func TestValidate_DuplicateSampleIDsFlagEverySharer(t *testing.T) {
	cands := []entity.Candidate{
		sample(0, 0, "SR-004"),
		sample(0, 1, "SR-005"),
		sample(2, 0, "sr-004 "),
	}
	out := New(0.6, nil).Validate(uuid.New(), cands)

	require.Len(t, out, 3)
	assert.Equal(t, constants.StatusFlagged, out[0].Status)
	assert.Equal(t, constants.ReasonDuplicateSampleID, out[0].Reason)
	assert.Equal(t, constants.StatusAccepted, out[1].Status)
	assert.Equal(t, constants.StatusFlagged, out[2].Status)
}

func TestValidate_BelowThresholdNeverAccepted(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	v := New(0.6, nil)
	var cands []entity.Candidate
	for i := 0; i < 500; i++ {
		cands = append(cands, cand(constants.EntityObservation, i%7, i, r.Float64(), map[string]any{"description": "d"}))
	}
	for _, rec := range v.Validate(uuid.New(), cands) {
		if rec.Confidence < 0.6 {
			assert.NotEqual(t, constants.StatusAccepted, rec.Status)
		}
	}
}

func TestValidate_OrderingIsDeterministic(t *testing.T) {
	cands := []entity.Candidate{
		cand(constants.EntityObservation, 1, 0, 1, map[string]any{"description": "a"}),
		sample(0, 2, "S-2"),
		cand(constants.EntityCoordinate, 1, 1, 1, map[string]any{"raw": "r"}),
		sample(0, 1, "S-1"),
		cand(constants.EntityDrillHole, 0, 0, 1, map[string]any{"hole_id": "DDH-1"}),
		cand(constants.EntityCoordinate, 0, 3, 1, map[string]any{"raw": "r"}),
	}
	docID := uuid.New()
	v := New(0.6, nil)
	want := v.Validate(docID, cands)

	type key struct {
		page int
		typ  constants.EntityType
		seq  int
	}
	var got []key
	for _, r := range want {
		got = append(got, key{r.Source.PageIndex, r.EntityType, r.Seq})
	}
	assert.Equal(t, []key{
		{0, constants.EntityCoordinate, 3},
		{0, constants.EntitySample, 1},
		{0, constants.EntitySample, 2},
		{0, constants.EntityDrillHole, 0},
		{1, constants.EntityCoordinate, 1},
		{1, constants.EntityObservation, 0},
	}, got)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]entity.Candidate(nil), cands...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, v.Validate(docID, shuffled))
	}
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	c := sample(0, 0, "SR-1")
	out := New(0.6, nil).Validate(uuid.New(), []entity.Candidate{c})
	out[0].Fields["id"] = "changed"
	assert.Equal(t, "SR-1", c.Fields["id"])
}

func TestCount(t *testing.T) {
	recs := []entity.Record{{Status: constants.StatusAccepted}, {Status: constants.StatusFlagged}, {Status: constants.StatusAccepted}}
	assert.Equal(t, map[constants.RecordStatus]int{constants.StatusAccepted: 2, constants.StatusFlagged: 1}, Count(recs))
}
