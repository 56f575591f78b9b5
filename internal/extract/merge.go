package extract

import (
	"sort"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Merge combines pattern and model candidates of one page. For overlapping
// spans of the same entity type one candidate survives, chosen by policy;
// under prefer-confidence ties go to the pattern candidate. Seq is reassigned
// in span order, unlocated model candidates last.
func Merge(policy string, pattern, model []entity.Candidate) []entity.Candidate {
	keepPattern := make([]bool, len(pattern))
	for i := range keepPattern {
		keepPattern[i] = true
	}
	var out []entity.Candidate

	for _, mc := range model {
		var overlaps []int
		best := -1.0
		for i, pc := range pattern {
			if pc.Type == mc.Type && pc.Span.Overlaps(mc.Span) {
				overlaps = append(overlaps, i)
				if pc.Confidence > best {
					best = pc.Confidence
				}
			}
		}
		if len(overlaps) == 0 {
			out = append(out, mc.Clone())
			continue
		}
		var modelWins bool
		switch policy {
		case constants.MergePreferModel:
			modelWins = true
		case constants.MergePreferPattern:
		default:
			modelWins = mc.Confidence > best
		}
		if !modelWins {
			continue
		}
		for _, i := range overlaps {
			keepPattern[i] = false
		}
		out = append(out, mc.Clone())
	}

	for i, pc := range pattern {
		if keepPattern[i] {
			out = append(out, pc.Clone())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Span.Located() != b.Span.Located() {
			return a.Span.Located()
		}
		if a.Span.Located() && a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Type != b.Type {
			return a.Type.Rank() < b.Type.Rank()
		}
		if a.Method != b.Method {
			return a.Method == constants.MethodPattern
		}
		return a.Seq < b.Seq
	})
	for i := range out {
		out[i].Seq = i
	}
	return out
}
