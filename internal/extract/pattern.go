package extract

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/coords"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

const assayWindow = 300

const (
	idPattern   = `[A-Z]{1,5}-?\d{1,6}[A-Z]?`
	holePattern = `[A-Z]{2,5}-?\d{1,5}[A-Z]?`
	depth       = `\d+(?:\.\d+)?`
)

var (
	reSampleID = regexp.MustCompile(`(?i:\bsample(?:\s+(?:id|no\.?|number|#))?)\s*[:#]?\s*(` + idPattern + `)\b`)
	reAssay    = regexp.MustCompile(`\b(TREO|[A-Z][a-z]?\d*(?:[A-Z][a-z]?\d*)*)\s*[:=]?\s*(<\s*)?(\d+(?:\.\d+)?)\s*(?i:(wt%|vol%|%|ppm|ppb|ppt|g/t|mg/t|oz/t|lb/t))`)

	reHoleRef     = regexp.MustCompile(`(?i:\b(?:drill\s*)?hole)\s*(?:(?i:id|no\.?)\s*)?[:#]?\s*(` + holePattern + `)\b`)
	reFromTo      = regexp.MustCompile(`(?i:\bfrom)\s+(` + depth + `)\s*m?\s*(?i:to)\s+(` + depth + `)(?:\s*m\b)?`)
	reIntervalRow = regexp.MustCompile(`(?m)^[ \t]*(?:(` + holePattern + `)[ \t]+)?(` + depth + `)[ \t]*(?:-|–|to)[ \t]*(` + depth + `)[ \t]*m?\b[ \t]+([A-Za-z][^\n]{0,80})$`)

	reStrikeDip = regexp.MustCompile(`(?i)\bstrike\s*(?:of\s*)?[:=]?\s*(\d{1,3}(?:\.\d+)?)\s*°?\s*[,;/]?\s*(?:and\s+)?(?:a\s+)?dip\s*(?:of\s*)?[:=]?\s*(\d{1,3}(?:\.\d+)?)\s*°?` +
		`(?:\s*(?:to(?:wards)?\s+(?:the\s+)?)?(NE|NW|SE|SW|N|E|S|W)\b)?`)

	reQuadrant = regexp.MustCompile(`\b([NS])\s?(\d{1,2})\s?([EW])\s*/\s*(\d{1,2})\s?(NE|NW|SE|SW|N|E|S|W)?\b`)

	reSouthernHemisphere = regexp.MustCompile(`(?i)\bsouth(?:ern)?\s+hemisphere\b`)
)

var keywordRes = map[string]*regexp.Regexp{}

func init() {
	for _, cat := range constants.ObservationCategories {
		for _, kw := range constants.ObservationKeywords[cat] {
			keywordRes[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		}
	}
}

// Pattern is the deterministic regex extractor.
type Pattern struct {
	penaltyWeight float64
	logger        *slog.Logger
}

// NewPattern returns a pattern extractor. penaltyWeight scales how much low OCR
// confidence on a span lowers the candidate's confidence.
func NewPattern(penaltyWeight float64, logger *slog.Logger) *Pattern {
	if logger == nil {
		logger = slog.Default()
	}
	if penaltyWeight < 0 {
		penaltyWeight = 0
	}
	return &Pattern{penaltyWeight: penaltyWeight, logger: logger}
}

func (p *Pattern) Method() constants.ExtractionMethod { return constants.MethodPattern }

func (p *Pattern) Extract(ctx context.Context, in PageInput) ([]entity.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	pg := &page{in: in, ocr: entity.OCRResult{Tokens: in.Tokens}, penalty: p.penaltyWeight}

	pg.coordinates()
	pg.samples()
	pg.drillholes()
	pg.structural()
	pg.keywordObservations()

	out := pg.out
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start < out[j].Span.Start
		}
		return out[i].Type.Rank() < out[j].Type.Rank()
	})
	for i := range out {
		out[i].Seq = i
	}

	p.logger.Debug("extract.pattern.ok",
		"document_id", in.DocumentID,
		"page", in.PageIndex,
		"candidates", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// page accumulates candidates for one PageInput.
type page struct {
	in      PageInput
	ocr     entity.OCRResult
	penalty float64
	out     []entity.Candidate
	claimed []entity.Span
}

func (pg *page) confidence(start, end int) float64 {
	mean, ok := pg.ocr.SpanConfidence(start, end)
	if !ok {
		return 1
	}
	return clamp01(1 - pg.penalty*(1-mean))
}

func (pg *page) add(t constants.EntityType, start, end int, fields map[string]any, claim bool) {
	span := entity.Span{Start: start, End: end, Text: pg.in.Text[start:end]}
	pg.out = append(pg.out, entity.Candidate{
		Type:       t,
		PageIndex:  pg.in.PageIndex,
		Span:       span,
		Fields:     fields,
		Confidence: pg.confidence(start, end),
		Method:     constants.MethodPattern,
	})
	if claim {
		pg.claimed = append(pg.claimed, span)
	}
}

func (pg *page) isClaimed(start, end int) bool {
	s := entity.Span{Start: start, End: end}
	for _, c := range pg.claimed {
		if c.Overlaps(s) {
			return true
		}
	}
	return false
}

func (pg *page) coordinates() {
	text := pg.in.Text
	zone := coords.ZoneHint(text)
	if zone == "" {
		zone = coords.ZoneHint(pg.in.PrevTail)
	}
	south := reSouthernHemisphere.MatchString(pg.in.PrevTail + "\n" + text)

	for _, m := range coords.FindAll(text) {
		fields := map[string]any{"raw": m.Text}
		line := lineAround(text, m.Start, m.End)
		if d := coords.DetectDatum(line); d != "" {
			fields["datum"] = d
		}
		switch m.Format {
		case coords.NotationUTM:
			if zone != "" {
				fields["utm_zone"] = zone
			}
			if south {
				fields["hemisphere"] = "S"
			}
		case coords.NotationPLSS:
			fields["system"] = coords.NotationPLSS
		}
		pg.add(constants.EntityCoordinate, m.Start, m.End, fields, false)
	}
}

func (pg *page) samples() {
	text := pg.in.Text
	ids := reSampleID.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range ids {
		regionEnd := len(text)
		if i+1 < len(ids) {
			regionEnd = ids[i+1][0]
		}
		if j := strings.Index(text[loc[1]:regionEnd], "\n\n"); j >= 0 {
			regionEnd = loc[1] + j
		}
		regionEnd = min(regionEnd, loc[1]+assayWindow)

		end := loc[1]
		var assays []entity.Assay
		for _, a := range reAssay.FindAllStringSubmatchIndex(text[loc[1]:regionEnd], -1) {
			sub := func(g int) string {
				if a[2*g] < 0 {
					return ""
				}
				return text[loc[1]+a[2*g] : loc[1]+a[2*g+1]]
			}
			v, err := strconv.ParseFloat(sub(3), 64)
			if err != nil {
				continue
			}
			assay := entity.Assay{Element: sub(1), Value: v, Unit: strings.ToLower(sub(4))}
			if sub(2) != "" {
				dl := v
				assay.DetectionLimit = &dl
			}
			assays = append(assays, assay)
			end = loc[1] + a[1]
		}

		fields := map[string]any{"id": text[loc[2]:loc[3]]}
		if len(assays) > 0 {
			fields["assays"] = assays
		}
		pg.add(constants.EntitySample, loc[0], end, entity.ExpandSampleFields(fields), true)
	}
}

func (pg *page) drillholes() {
	text := pg.in.Text

	for _, loc := range reHoleRef.FindAllStringSubmatchIndex(text, -1) {
		holeID := text[loc[2]:loc[3]]
		sentEnd := sentenceEnd(text, loc[1])
		rest := text[loc[1]:sentEnd]
		intervals := reFromTo.FindAllStringSubmatchIndex(rest, -1)
		if len(intervals) == 0 {
			fields := map[string]any{"hole_id": holeID}
			if lith := findLithology(rest); lith != "" {
				fields["lithology"] = lith
			}
			pg.add(constants.EntityDrillHole, loc[0], loc[1], fields, true)
			continue
		}
		for k, iv := range intervals {
			from, _ := strconv.ParseFloat(rest[iv[2]:iv[3]], 64)
			to, _ := strconv.ParseFloat(rest[iv[4]:iv[5]], 64)
			descEnd := len(rest)
			if k+1 < len(intervals) {
				descEnd = intervals[k+1][0]
			}
			fields := map[string]any{"hole_id": holeID, "depth_from": from, "depth_to": to}
			end := loc[1] + iv[1]
			if lith := findLithology(rest[iv[1]:descEnd]); lith != "" {
				fields["lithology"] = lith
				end = loc[1] + iv[1] + lithologyEnd(rest[iv[1]:descEnd], lith)
			} else if lith := findLithology(rest[:iv[0]]); k == 0 && lith != "" {
				fields["lithology"] = lith
			}
			start := loc[0]
			if k > 0 {
				start = loc[1] + iv[0]
			}
			pg.add(constants.EntityDrillHole, start, end, fields, true)
		}
	}

	current := lastHoleID(pg.in.PrevTail)
	for _, loc := range reIntervalRow.FindAllStringSubmatchIndex(text, -1) {
		if loc[2] >= 0 {
			current = text[loc[2]:loc[3]]
		} else if h := lastHoleID(text[:loc[0]]); h != "" {
			current = h
		}
		if pg.isClaimed(loc[0], loc[1]) {
			continue
		}
		if current == "" {
			continue
		}
		from, _ := strconv.ParseFloat(text[loc[4]:loc[5]], 64)
		to, _ := strconv.ParseFloat(text[loc[6]:loc[7]], 64)
		desc := strings.TrimSpace(text[loc[8]:loc[9]])
		fields := map[string]any{"hole_id": current, "depth_from": from, "depth_to": to, "description": desc}
		if lith := findLithology(desc); lith != "" {
			fields["lithology"] = lith
		}
		start := loc[2]
		if start < 0 {
			start = loc[4]
		}
		pg.add(constants.EntityDrillHole, start, loc[8]+len(desc), fields, true)
	}
}

func (pg *page) structural() {
	text := pg.in.Text
	for _, loc := range reStrikeDip.FindAllStringSubmatchIndex(text, -1) {
		strike, _ := strconv.ParseFloat(text[loc[2]:loc[3]], 64)
		dip, _ := strconv.ParseFloat(text[loc[4]:loc[5]], 64)
		fields := map[string]any{
			"category":    constants.ObservationStructural,
			"description": text[loc[0]:loc[1]],
			"strike":      strike,
			"dip":         dip,
		}
		if loc[6] >= 0 {
			fields["dip_direction"] = strings.ToUpper(text[loc[6]:loc[7]])
		}
		pg.add(constants.EntityObservation, loc[0], loc[1], fields, true)
	}
	for _, loc := range reQuadrant.FindAllStringSubmatchIndex(text, -1) {
		if pg.isClaimed(loc[0], loc[1]) {
			continue
		}
		angle, _ := strconv.ParseFloat(text[loc[4]:loc[5]], 64)
		dip, _ := strconv.ParseFloat(text[loc[8]:loc[9]], 64)
		fields := map[string]any{
			"category":    constants.ObservationStructural,
			"description": text[loc[0]:loc[1]],
			"strike":      quadrantAzimuth(text[loc[2]:loc[3]], angle, text[loc[6]:loc[7]]),
			"dip":         dip,
		}
		if loc[10] >= 0 {
			fields["dip_direction"] = text[loc[10]:loc[11]]
		}
		pg.add(constants.EntityObservation, loc[0], loc[1], fields, true)
	}
}

func (pg *page) keywordObservations() {
	text := pg.in.Text
	for _, s := range sentences(text) {
		if pg.isClaimed(s[0], s[1]) {
			continue
		}
		sent := text[s[0]:s[1]]
		category, keywords := classify(sent)
		if category == "" {
			continue
		}
		fields := map[string]any{
			"category":    category,
			"description": sent,
			"keywords":    keywords,
		}
		pg.add(constants.EntityObservation, s[0], s[1], fields, false)
	}
}

// classify returns the first matching category in ObservationCategories order
// and every keyword found in the sentence.
func classify(sent string) (string, []string) {
	var category string
	var found []string
	for _, cat := range constants.ObservationCategories {
		for _, kw := range constants.ObservationKeywords[cat] {
			if keywordRes[kw].MatchString(sent) {
				if category == "" {
					category = cat
				}
				found = append(found, kw)
			}
		}
	}
	return category, found
}

func findLithology(s string) string {
	best, bestAt := "", -1
	for _, l := range constants.Lithologies() {
		if loc := keywordRes[l].FindStringIndex(s); loc != nil && (bestAt < 0 || loc[0] < bestAt) {
			best, bestAt = l, loc[0]
		}
	}
	return best
}

func lithologyEnd(s, lith string) int {
	loc := keywordRes[lith].FindStringIndex(s)
	if loc == nil {
		return 0
	}
	return loc[1]
}

// lastHoleID returns the hole id mentioned last in s, from prose or a table row.
func lastHoleID(s string) string {
	id, at := "", -1
	for _, loc := range reHoleRef.FindAllStringSubmatchIndex(s, -1) {
		if loc[2] > at {
			id, at = s[loc[2]:loc[3]], loc[2]
		}
	}
	for _, loc := range reIntervalRow.FindAllStringSubmatchIndex(s, -1) {
		if loc[2] > at {
			id, at = s[loc[2]:loc[3]], loc[2]
		}
	}
	return id
}

// quadrantAzimuth converts a quadrant bearing such as N45E or S30W to degrees.
func quadrantAzimuth(ns string, angle float64, ew string) float64 {
	switch ns + ew {
	case "NE":
		return angle
	case "NW":
		return 360 - angle
	case "SE":
		return 180 - angle
	default:
		return 180 + angle
	}
}

// sentences splits text on line breaks and on . ! ? followed by whitespace,
// returning trimmed [start, end) byte ranges.
func sentences(text string) [][2]int {
	var out [][2]int
	emit := func(s, e int) {
		for s < e && isSpace(text[s]) {
			s++
		}
		for e > s && isSpace(text[e-1]) {
			e--
		}
		if e > s {
			out = append(out, [2]int{s, e})
		}
	}
	start := 0
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\n':
			emit(start, i)
			start = i + 1
		case (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || isSpace(text[i+1])):
			emit(start, i+1)
			start = i + 1
		}
	}
	emit(start, len(text))
	return out
}

func sentenceEnd(text string, from int) int {
	limit := min(len(text), from+assayWindow)
	for i := from; i < limit; i++ {
		c := text[i]
		if c == '\n' {
			return i
		}
		if c == '.' && (i+1 == len(text) || isSpace(text[i+1])) {
			return i
		}
	}
	return limit
}

func lineAround(text string, start, end int) string {
	s := strings.LastIndexByte(text[:start], '\n') + 1
	e := strings.IndexByte(text[end:], '\n')
	if e < 0 {
		return text[s:]
	}
	return text[s : end+e]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
