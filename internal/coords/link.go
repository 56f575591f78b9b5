package coords

import (
	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// LinkSamples ties each sample to the nearest resolved coordinate on the same
// page whose text lies within window bytes of the sample's text. A linked
// sample takes a copy of that coordinate and gains location, location_lat and
// location_lon fields. Samples that already carry a coordinate are left alone.
// Candidates are returned in input order.
func LinkSamples(cands []entity.Candidate, window int) ([]entity.Candidate, int) {
	byPage := map[int][]int{}
	for i, c := range cands {
		if c.Type == constants.EntityCoordinate && c.Coordinate != nil && c.Span.Located() &&
			InRange(c.Coordinate.Lat, c.Coordinate.Lon) {
			byPage[c.PageIndex] = append(byPage[c.PageIndex], i)
		}
	}

	out := make([]entity.Candidate, len(cands))
	copy(out, cands)
	linked := 0
	for i, s := range out {
		if s.Type != constants.EntitySample || s.Coordinate != nil || !s.Span.Located() {
			continue
		}
		best, bestGap := -1, window+1
		for _, j := range byPage[s.PageIndex] {
			if g := gap(s.Span, cands[j].Span); g < bestGap {
				best, bestGap = j, g
			}
		}
		if best < 0 {
			continue
		}
		loc := cands[best]
		s = s.Clone()
		if s.Fields == nil {
			s.Fields = map[string]any{}
		}
		raw := loc.String("raw")
		if raw == "" {
			raw = loc.Coordinate.Original
		}
		s.Fields["location"] = raw
		s.Fields["location_lat"] = loc.Coordinate.Lat
		s.Fields["location_lon"] = loc.Coordinate.Lon
		nc := *loc.Coordinate
		s.Coordinate = &nc
		out[i] = s
		linked++
	}
	return out, linked
}

// gap is the byte distance between two spans; 0 when they overlap.
func gap(a, b entity.Span) int {
	switch {
	case a.End <= b.Start:
		return b.Start - a.End
	case b.End <= a.Start:
		return a.Start - b.End
	}
	return 0
}
