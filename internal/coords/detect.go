package coords

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Notations recorded on a NormalizedCoordinate.
const (
	NotationDMS     = "dms"
	NotationUTM     = "utm"
	NotationDecimal = "decimal"
	NotationPLSS    = "plss"
)

// Match is one coordinate notation found in text.
type Match struct {
	Start  int
	End    int
	Text   string
	Format string
}

type point struct {
	lat, lon float64
	format   string
	original string
}

// hints carries page-level context a notation may omit.
type hints struct {
	utmZone string // e.g. "11S"
	south   bool
}

type detector struct {
	name   string
	format string
	re     *regexp.Regexp
	group  int // submatch whose start marks the span start; 0 = whole match
	parse  func(m []string, h hints) (lat, lon float64, err error)
}

const (
	num      = `\d+(?:\.\d+)?`
	quoteSec = `(?:"|″|”|'')?`
	quoteMin = `['′’]`
)

var (
	reDMS        = regexp.MustCompile(`(?i)(\d{1,2})\s*°\s*(` + num + `)\s*` + quoteMin + `\s*(?:(` + num + `)\s*` + quoteSec + `)?\s*([NS])[\s,;/]*` +
		`(\d{1,3})\s*°\s*(` + num + `)\s*` + quoteMin + `\s*(?:(` + num + `)\s*` + quoteSec + `)?\s*([EW])\b`)
	reUTM        = regexp.MustCompile(`(?i)\b(?:(?:zone\s*)?(\d{1,2})\s?([C-HJ-NP-X])?\s*[,;]?\s*)?(\d{6}(?:\.\d+)?)\s*m?\s*E\b\s*[,;/]?\s*(\d{5,7}(?:\.\d+)?)\s*m?\s*N\b`)
	reHemi       = regexp.MustCompile(`(?i)\b(\d{1,2}(?:\.\d+)?)\s*°?\s*([NS])\b\s*[,;/]?\s*(\d{1,3}(?:\.\d+)?)\s*°?\s*([EW])\b`)
	reLabelled   = regexp.MustCompile(`(?i)\blat(?:itude)?\.?\s*[:=]?\s*(-?\d{1,2}(?:\.\d+)?)\s*°?\s*([NS])?\b[\s,;/]*` +
		`(?:lon(?:g(?:itude)?)?|lng)\.?\s*[:=]?\s*(-?\d{1,3}(?:\.\d+)?)(?:\s*°?\s*([EW]))?\b`)
	reSignedPair = regexp.MustCompile(`(?:^|[^\w.\-])(-?\d{1,2}\.\d{3,})\s*,\s*(-?\d{1,3}\.\d{3,})\b`)
	rePLSS       = regexp.MustCompile(`(?i)\bT\.?\s*(\d{1,3})\s*([NS])\b\.?,?\s*R\.?\s*(\d{1,3})\s*([EW])\b\.?(?:,?\s*Sec(?:tion)?\.?\s*(\d{1,2}))?`)

	reZoneHint  = regexp.MustCompile(`(?i)\bzone\s*(\d{1,2})\s?([C-HJ-NP-X])?\b`)
	reSouthHint = regexp.MustCompile(`(?i)\bsouth(?:ern)?\s+hemisphere\b`)
)

// detectors in priority order.
var detectors = []detector{
	{name: "dms", format: NotationDMS, re: reDMS, parse: parseDMS},
	{name: "utm", format: NotationUTM, re: reUTM, parse: parseUTM},
	{name: "hemisphere", format: NotationDecimal, re: reHemi, parse: parseHemisphere},
	{name: "labelled", format: NotationDecimal, re: reLabelled, parse: parseLabelled},
	{name: "signed-pair", format: NotationDecimal, re: reSignedPair, group: 1, parse: parseSignedPair},
}

// FindAll locates coordinate notations in text, including PLSS descriptions.
// Overlapping matches resolve in detector priority order; results are sorted by Start.
func FindAll(text string) []Match {
	var out []Match
	claimed := func(s, e int) bool {
		for _, m := range out {
			if s < m.End && m.Start < e {
				return true
			}
		}
		return false
	}
	all := append(append([]detector(nil), detectors...), detector{format: NotationPLSS, re: rePLSS})
	for _, d := range all {
		for _, loc := range d.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if d.group > 0 && loc[2*d.group] >= 0 {
				start = loc[2*d.group]
			}
			if claimed(start, end) {
				continue
			}
			out = append(out, Match{Start: start, End: end, Text: text[start:end], Format: d.format})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ZoneHint returns the first "Zone NN[L]" mention in text, e.g. "11S".
func ZoneHint(text string) string {
	m := reZoneHint.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + strings.ToUpper(m[2])
}

// candidates runs every detector over raw and returns parsed points in priority order.
// Points outside the WGS84 range are returned separately.
func candidates(raw string, h hints) (valid, outOfRange []point) {
	for _, d := range detectors {
		for _, m := range d.re.FindAllStringSubmatch(raw, -1) {
			lat, lon, err := d.parse(m, h)
			if err != nil {
				continue
			}
			p := point{lat: lat, lon: lon, format: d.format, original: strings.TrimLeft(strings.TrimSpace(m[0]), "([{,;:")}
			if InRange(lat, lon) {
				valid = append(valid, p)
			} else {
				outOfRange = append(outOfRange, p)
			}
		}
	}
	return valid, outOfRange
}

// InRange reports whether lat/lon are valid WGS84 decimal degrees.
func InRange(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lon)
}

func parseF(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func dmsToDecimal(d, m, s string) (float64, error) {
	deg, err := parseF(d)
	if err != nil {
		return 0, err
	}
	min, err := parseF(m)
	if err != nil {
		return 0, err
	}
	var sec float64
	if s != "" {
		if sec, err = parseF(s); err != nil {
			return 0, err
		}
	}
	if min >= 60 || sec >= 60 {
		return 0, fmt.Errorf("minutes/seconds out of range in %s°%s'%s", d, m, s)
	}
	if s != "" && min != math.Trunc(min) {
		return 0, fmt.Errorf("fractional minutes with seconds")
	}
	return deg + min/60 + sec/3600, nil
}

func hemiSign(v float64, hemi string) float64 {
	v = math.Abs(v)
	switch strings.ToUpper(hemi) {
	case "S", "W":
		return -v
	}
	return v
}

func parseDMS(m []string, _ hints) (float64, float64, error) {
	lat, err := dmsToDecimal(m[1], m[2], m[3])
	if err != nil {
		return 0, 0, err
	}
	lon, err := dmsToDecimal(m[5], m[6], m[7])
	if err != nil {
		return 0, 0, err
	}
	return hemiSign(lat, m[4]), hemiSign(lon, m[8]), nil
}

func parseUTM(m []string, h hints) (float64, float64, error) {
	zoneStr, band := m[1], strings.ToUpper(m[2])
	if zoneStr == "" && h.utmZone != "" {
		hm := reZoneHint.FindStringSubmatch("zone " + h.utmZone)
		if hm != nil {
			zoneStr, band = hm[1], strings.ToUpper(hm[2])
		}
	}
	if zoneStr == "" {
		return 0, 0, fmt.Errorf("utm zone missing")
	}
	zone, err := strconv.Atoi(zoneStr)
	if err != nil {
		return 0, 0, err
	}
	e, err := parseF(m[3])
	if err != nil {
		return 0, 0, err
	}
	n, err := parseF(m[4])
	if err != nil {
		return 0, 0, err
	}
	p := UTMPoint{Zone: zone, North: !h.south, Easting: e, Northing: n}
	if band != "" {
		north, ok := BandNorth(band[0])
		if !ok {
			return 0, 0, fmt.Errorf("invalid utm band %q", band)
		}
		p.Band, p.North = band[0], north
	}
	return FromUTM(p)
}

func parseHemisphere(m []string, _ hints) (float64, float64, error) {
	lat, err := parseF(m[1])
	if err != nil {
		return 0, 0, err
	}
	lon, err := parseF(m[3])
	if err != nil {
		return 0, 0, err
	}
	return hemiSign(lat, m[2]), hemiSign(lon, m[4]), nil
}

func parseLabelled(m []string, _ hints) (float64, float64, error) {
	lat, err := parseF(m[1])
	if err != nil {
		return 0, 0, err
	}
	lon, err := parseF(m[3])
	if err != nil {
		return 0, 0, err
	}
	if m[2] != "" {
		lat = hemiSign(lat, m[2])
	}
	if m[4] != "" {
		lon = hemiSign(lon, m[4])
	}
	return lat, lon, nil
}

func parseSignedPair(m []string, _ hints) (float64, float64, error) {
	lat, err := parseF(m[1])
	if err != nil {
		return 0, 0, err
	}
	lon, err := parseF(m[2])
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
