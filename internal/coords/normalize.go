package coords

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

var reDatum = regexp.MustCompile(`(?i)\b(NAD\s*-?\s*27|NAD\s*-?\s*83|WGS\s*-?\s*84)\b`)

// DetectDatum returns the canonical datum named in s ("NAD27", "NAD83", "WGS84") or "".
func DetectDatum(s string) string {
	m := reDatum.FindString(s)
	if m == "" {
		return ""
	}
	return strings.ToUpper(strings.NewReplacer(" ", "", "-", "").Replace(m))
}

// Normalizer converts coordinate candidates to WGS84 decimal degrees.
type Normalizer struct {
	roi    *entity.BBox
	logger *slog.Logger
}

// NewNormalizer returns a Normalizer; roi may be nil.
func NewNormalizer(roi *entity.BBox, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{roi: roi, logger: logger}
}

// Normalize parses the candidate's raw notation. Non-coordinate candidates pass through.
// The returned candidate is always usable: an unparseable notation comes back
// with a note and ErrUnparseableCoordinate, which is data-level, not fatal.
func (n *Normalizer) Normalize(c entity.Candidate) (entity.Candidate, error) {
	out := c.Clone()
	if out.Type != constants.EntityCoordinate {
		return out, nil
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	raw := out.String("raw")
	if raw == "" {
		raw = out.Span.Text
	}

	datum := out.String("datum")
	if datum == "" {
		datum = DetectDatum(raw + " " + out.Span.Text)
	}
	if datum != "" {
		datum = DetectDatum(datum)
		out.Fields["datum"] = datum
	}
	if datum == "NAD27" {
		out.Notes = appendNote(out.Notes, constants.ReasonDatumAssumed)
	}

	h := hints{utmZone: out.String("utm_zone"), south: strings.EqualFold(out.String("hemisphere"), "S") || reSouthHint.MatchString(raw)}
	valid, outOfRange := candidates(raw, h)

	switch {
	case len(valid) > 0:
		chosen, ok := n.pick(valid)
		if !ok {
			out.Notes = appendNote(out.Notes, constants.ReasonOutOfExpectedRange)
			return out, nil
		}
		out.Coordinate = &entity.NormalizedCoordinate{Lat: chosen.lat, Lon: chosen.lon, Format: chosen.format, Original: chosen.original}
		return out, nil
	case len(outOfRange) > 0:
		// kept so the validator can reject it with the offending values
		p := outOfRange[0]
		out.Coordinate = &entity.NormalizedCoordinate{Lat: p.lat, Lon: p.lon, Format: p.format, Original: p.original}
		return out, nil
	case rePLSS.MatchString(raw) || out.String("system") == NotationPLSS:
		out.Fields["system"] = NotationPLSS
		out.Notes = appendNote(out.Notes, constants.ReasonUnsupportedSystem)
		return out, nil
	}

	out.Notes = appendNote(out.Notes, constants.ReasonUnparseable)
	return out, fmt.Errorf("%w: %q", common.ErrUnparseableCoordinate, raw)
}

// pick applies the region-of-interest tie-break: the first point (priority order)
// inside the ROI, or the first point when no ROI is set.
func (n *Normalizer) pick(points []point) (point, bool) {
	if n.roi == nil {
		return points[0], true
	}
	for _, p := range points {
		if n.roi.Contains(p.lat, p.lon) {
			return p, true
		}
	}
	n.logger.Debug("coords.outside_roi", "candidates", len(points), "first", points[0].original)
	return point{}, false
}

func appendNote(notes []string, note string) []string {
	for _, x := range notes {
		if x == note {
			return notes
		}
	}
	return append(notes, note)
}

// NormalizeAll normalizes every candidate, keeping order. Unparseable
// coordinates are counted, not returned as errors.
func (n *Normalizer) NormalizeAll(cands []entity.Candidate) ([]entity.Candidate, int) {
	out := make([]entity.Candidate, len(cands))
	unparseable := 0
	for i, c := range cands {
		nc, err := n.Normalize(c)
		if err != nil {
			unparseable++
			n.logger.Debug("coords.unparseable", "page", c.PageIndex, "raw", c.String("raw"), "error", err)
		}
		out[i] = nc
	}
	return out, unparseable
}
