package validate

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/coords"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Validator applies consistency rules to a document's candidates and assigns
// each one a status. It holds no per-call state.
type Validator struct {
	threshold float64
	logger    *slog.Logger
}

func New(threshold float64, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{threshold: threshold, logger: logger}
}

// verdict collects reasons in rule order; the worst status wins.
type verdict struct {
	status  constants.RecordStatus
	reasons []string
}

func (v *verdict) add(status constants.RecordStatus, reason string) {
	for _, r := range v.reasons {
		if r == reason {
			return
		}
	}
	v.reasons = append(v.reasons, reason)
	if severity(status) > severity(v.status) {
		v.status = status
	}
}

func severity(s constants.RecordStatus) int {
	switch s {
	case constants.StatusRejected:
		return 2
	case constants.StatusFlagged:
		return 1
	}
	return 0
}

// Validate returns one record per candidate ordered by page index, entity
// type, then extraction order. The same input always yields the same output.
func (v *Validator) Validate(docID uuid.UUID, cands []entity.Candidate) []entity.Record {
	sorted := make([]entity.Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PageIndex != b.PageIndex {
			return a.PageIndex < b.PageIndex
		}
		if a.Type != b.Type {
			return a.Type.Rank() < b.Type.Rank()
		}
		return a.Seq < b.Seq
	})

	dupes := duplicateSampleIDs(sorted)

	out := make([]entity.Record, 0, len(sorted))
	for _, c := range sorted {
		vd := verdict{status: constants.StatusAccepted}

		if c.Coordinate != nil && !coords.InRange(c.Coordinate.Lat, c.Coordinate.Lon) {
			vd.add(constants.StatusRejected, constants.ReasonOutOfRange)
		}
		if c.Type == constants.EntitySample && dupes[sampleKey(c)] {
			vd.add(constants.StatusFlagged, constants.ReasonDuplicateSampleID)
		}
		if c.Confidence < v.threshold {
			vd.add(constants.StatusFlagged, constants.ReasonBelowThreshold)
		}
		if f := c.Type.RequiredField(); f == "" || !present(c.Fields[f]) {
			name := f
			if name == "" {
				name = "entity_type"
			}
			vd.add(constants.StatusRejected, fmt.Sprintf("%s:%s", constants.ReasonMissingField, name))
		}
		switch c.Type {
		case constants.EntitySample:
			checkAssays(&vd, c.Assays())
		case constants.EntityDrillHole:
			checkDepths(&vd, c)
		case constants.EntityObservation:
			checkStructural(&vd, c)
		}
		for _, n := range c.Notes {
			if n == constants.ReasonUnparseable {
				vd.add(constants.StatusRejected, n)
			} else {
				vd.add(constants.StatusFlagged, n)
			}
		}

		var nc *entity.NormalizedCoordinate
		if c.Coordinate != nil {
			cc := *c.Coordinate
			nc = &cc
		}
		out = append(out, entity.Record{
			EntityType:           c.Type,
			Fields:               c.Clone().Fields,
			NormalizedCoordinate: nc,
			Confidence:           c.Confidence,
			Method:               c.Method,
			Status:               vd.status,
			Reason:               strings.Join(vd.reasons, "; "),
			Source:               entity.Source{DocumentID: docID, PageIndex: c.PageIndex, TextSpan: c.Span.Text},
			Seq:                  c.Seq,
		})
	}

	counts := Count(out)
	v.logger.Debug("validate.ok",
		"document_id", docID,
		"records", len(out),
		"accepted", counts[constants.StatusAccepted],
		"flagged", counts[constants.StatusFlagged],
		"rejected", counts[constants.StatusRejected],
	)
	return out
}

// Count tallies records by status.
func Count(records []entity.Record) map[constants.RecordStatus]int {
	out := map[constants.RecordStatus]int{}
	for _, r := range records {
		out[r.Status]++
	}
	return out
}

func sampleKey(c entity.Candidate) string {
	return strings.ToUpper(strings.TrimSpace(c.String("id")))
}

func duplicateSampleIDs(cands []entity.Candidate) map[string]bool {
	seen := map[string]int{}
	for _, c := range cands {
		if c.Type != constants.EntitySample {
			continue
		}
		if k := sampleKey(c); k != "" {
			seen[k]++
		}
	}
	out := map[string]bool{}
	for k, n := range seen {
		if n > 1 {
			out[k] = true
		}
	}
	return out
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	}
	return true
}

func checkAssays(vd *verdict, assays []entity.Assay) {
	for _, a := range assays {
		if a.Value < 0 {
			vd.add(constants.StatusRejected, constants.ReasonNegativeAssay)
		}
		if !constants.IsAssayUnit(a.Unit) {
			vd.add(constants.StatusFlagged, constants.ReasonUnknownUnit)
		}
		if !constants.IsAnalyte(strings.TrimSpace(a.Element)) {
			vd.add(constants.StatusFlagged, constants.ReasonUnknownElement)
		}
		if a.DetectionLimit != nil && *a.DetectionLimit > a.Value {
			vd.add(constants.StatusFlagged, constants.ReasonDetectionLimit)
		}
	}
}

func checkDepths(vd *verdict, c entity.Candidate) {
	from, okFrom := c.Float("depth_from")
	to, okTo := c.Float("depth_to")
	if (okFrom && from < 0) || (okTo && to < 0) || (okFrom && okTo && from >= to) {
		vd.add(constants.StatusRejected, constants.ReasonInvalidDepth)
	}
}

func checkStructural(vd *verdict, c entity.Candidate) {
	if strike, ok := c.Float("strike"); ok && (strike < 0 || strike > 360) {
		vd.add(constants.StatusRejected, constants.ReasonStructuralOutOfRange)
	}
	if dip, ok := c.Float("dip"); ok && (dip < 0 || dip > 90) {
		vd.add(constants.StatusRejected, constants.ReasonStructuralOutOfRange)
	}
}
