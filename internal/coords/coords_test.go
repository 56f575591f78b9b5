package coords

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

func coordCandidate(raw string) entity.Candidate {
	return entity.Candidate{
		Type:   constants.EntityCoordinate,
		Span:   entity.Span{Start: 0, End: len(raw), Text: raw},
		Fields: map[string]any{"raw": raw},
	}
}

func TestToUTM_KnownPoints(t *testing.T) {
	p, err := ToUTM(0, -117)
	require.NoError(t, err)
	assert.Equal(t, 11, p.Zone)
	assert.InDelta(t, 500000, p.Easting, 1e-6)
	assert.InDelta(t, 0, p.Northing, 1e-6)

	// k0 times the WGS84 meridian arc to 45°N
	p, err = ToUTM(45, -117)
	require.NoError(t, err)
	assert.InDelta(t, 4982950.40, p.Northing, 0.5)
	assert.Equal(t, byte('T'), p.Band)

	p, err = ToUTM(-33.8688, 151.2093)
	require.NoError(t, err)
	assert.Equal(t, 56, p.Zone)
	assert.False(t, p.North)
	assert.Equal(t, byte('H'), p.Band)

	_, err = ToUTM(85, 0)
	assert.Error(t, err)
}

func TestFromUTM_InvertsToUTM(t *testing.T) {
	for _, pt := range [][2]float64{{35.4717, -117.6797}, {-33.8688, 151.2093}, {64.1466, -21.9426}, {0.5, 6.1}, {-45, 170.2}} {
		p, err := ToUTM(pt[0], pt[1])
		require.NoError(t, err)
		lat, lon, err := FromUTM(p)
		require.NoError(t, err)
		assert.InDelta(t, pt[0], lat, 1e-7, "lat for %v", pt)
		assert.InDelta(t, pt[1], lon, 1e-7, "lon for %v", pt)
	}
}

func TestFromUTM_Errors(t *testing.T) {
	_, _, err := FromUTM(UTMPoint{Zone: 61, Easting: 500000, Northing: 1})
	assert.Error(t, err)
	_, _, err = FromUTM(UTMPoint{Zone: 11, Easting: 50, Northing: 1})
	assert.Error(t, err)
}

func TestBandNorth(t *testing.T) {
	for _, b := range []byte("NPQRSTUVWX") {
		north, ok := BandNorth(b)
		assert.True(t, ok)
		assert.True(t, north, string(b))
	}
	for _, b := range []byte("CDEFGHJKLM") {
		north, ok := BandNorth(b)
		assert.True(t, ok)
		assert.False(t, north, string(b))
	}
	_, ok := BandNorth('I')
	assert.False(t, ok)
}

func TestFindAll(t *testing.T) {
	text := "Collar 35°28'18\"N 117°40'47\"W (NAD27). Grid Zone 11S 456789mE 3912345mN. " +
		"Camp LAT: 35.47 LON: -117.68 and claims in T12N R5E Section 14."
	got := FindAll(text)

	require.Len(t, got, 4)
	assert.Equal(t, NotationDMS, got[0].Format)
	assert.Equal(t, NotationUTM, got[1].Format)
	assert.Equal(t, "Zone 11S 456789mE 3912345mN", got[1].Text)
	assert.Equal(t, NotationDecimal, got[2].Format)
	assert.Equal(t, "LAT: 35.47 LON: -117.68", got[2].Text)
	assert.Equal(t, NotationPLSS, got[3].Format)
	for _, m := range got {
		assert.Equal(t, m.Text, text[m.Start:m.End])
	}
}

func TestFindAll_LabelledSpanEndsAtValue(t *testing.T) {
	cases := map[string]string{
		"Camp LAT: 35.47 LON: -117.68 and more":    "LAT: 35.47 LON: -117.68",
		"Camp LAT 35.47 N LON 117.68 W near creek": "LAT 35.47 N LON 117.68 W",
		"lat=35.47, lon=-117.68 Elevation 1200 m":  "lat=35.47, lon=-117.68",
		"LAT: 35.47 LON: -117.68° then":            "LAT: 35.47 LON: -117.68",
	}
	for text, want := range cases {
		got := FindAll(text)
		require.Len(t, got, 1, text)
		assert.Equal(t, want, got[0].Text, text)
	}
}

func TestFindAll_SignedPairSpan(t *testing.T) {
	text := "Pit centre (35.4717, -117.6797) sampled"
	got := FindAll(text)
	require.Len(t, got, 1)
	assert.Equal(t, "35.4717, -117.6797", got[0].Text)
}

func TestNormalize_Notations(t *testing.T) {
	tests := []struct {
		raw    string
		lat    float64
		lon    float64
		format string
		eps    float64
	}{
		{raw: "LAT: 35.4717 LON: -117.6797", lat: 35.4717, lon: -117.6797, format: NotationDecimal, eps: 1e-9},
		{raw: "Latitude 12.5 S, Longitude 45.25 E", lat: -12.5, lon: 45.25, format: NotationDecimal, eps: 1e-9},
		{raw: "35.47° N, 117.68° W", lat: 35.47, lon: -117.68, format: NotationDecimal, eps: 1e-9},
		{raw: "35°28'18\"N 117°40'47\"W", lat: 35 + 28.0/60 + 18.0/3600, lon: -(117 + 40.0/60 + 47.0/3600), format: NotationDMS, eps: 1e-9},
		{raw: "35°28.3'N 117°40.78'W", lat: 35 + 28.3/60, lon: -(117 + 40.78/60), format: NotationDMS, eps: 1e-9},
		{raw: "-33.868800, 151.209300", lat: -33.8688, lon: 151.2093, format: NotationDecimal, eps: 1e-9},
	}
	n := NewNormalizer(nil, nil)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			out, err := n.Normalize(coordCandidate(tt.raw))
			require.NoError(t, err)
			require.NotNil(t, out.Coordinate)
			assert.InDelta(t, tt.lat, out.Coordinate.Lat, tt.eps)
			assert.InDelta(t, tt.lon, out.Coordinate.Lon, tt.eps)
			assert.Equal(t, tt.format, out.Coordinate.Format)
			assert.Empty(t, out.Notes)
		})
	}
}

func TestNormalize_UTM(t *testing.T) {
	p, err := ToUTM(35.4717, -117.6797)
	require.NoError(t, err)
	raw := fmt.Sprintf("Zone 11S %.0fE %.0fN", p.Easting, p.Northing)

	out, err := NewNormalizer(nil, nil).Normalize(coordCandidate(raw))
	require.NoError(t, err)
	require.NotNil(t, out.Coordinate)
	assert.Equal(t, NotationUTM, out.Coordinate.Format)
	assert.InDelta(t, 35.4717, out.Coordinate.Lat, 1e-5)
	assert.InDelta(t, -117.6797, out.Coordinate.Lon, 1e-5)
}

func TestNormalize_UTMZoneFromHint(t *testing.T) {
	c := coordCandidate("456789E 3912345N")
	_, err := NewNormalizer(nil, nil).Normalize(c)
	assert.ErrorIs(t, err, common.ErrUnparseableCoordinate)

	c.Fields["utm_zone"] = "11S"
	out, err := NewNormalizer(nil, nil).Normalize(c)
	require.NoError(t, err)
	require.NotNil(t, out.Coordinate)
	assert.InDelta(t, 35.35, out.Coordinate.Lat, 0.1)
	assert.InDelta(t, -117.48, out.Coordinate.Lon, 0.1)
}

func TestNormalize_UTMSouthernBand(t *testing.T) {
	p, err := ToUTM(-33.8688, 151.2093)
	require.NoError(t, err)
	raw := fmt.Sprintf("Zone 56H %.1fmE %.1fmN", p.Easting, p.Northing)

	out, err := NewNormalizer(nil, nil).Normalize(coordCandidate(raw))
	require.NoError(t, err)
	assert.InDelta(t, -33.8688, out.Coordinate.Lat, 1e-6)
	assert.InDelta(t, 151.2093, out.Coordinate.Lon, 1e-6)
}

func TestNormalize_RegionOfInterest(t *testing.T) {
	inside := &entity.BBox{MinLat: 34, MaxLat: 36, MinLon: -118, MaxLon: -117}
	outside := &entity.BBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}
	raw := "LAT: 35.4717 LON: -117.6797"

	out, err := NewNormalizer(inside, nil).Normalize(coordCandidate(raw))
	require.NoError(t, err)
	require.NotNil(t, out.Coordinate)
	assert.InDelta(t, 35.4717, out.Coordinate.Lat, 1e-9)

	out, err = NewNormalizer(outside, nil).Normalize(coordCandidate(raw))
	require.NoError(t, err)
	assert.Nil(t, out.Coordinate)
	assert.Equal(t, []string{constants.ReasonOutOfExpectedRange}, out.Notes)
}

func TestNormalize_TieBreakPrefersROI(t *testing.T) {
	raw := "LAT: 10.5 LON: 20.5 (alt 35.4717, -117.6797)"

	out, err := NewNormalizer(nil, nil).Normalize(coordCandidate(raw))
	require.NoError(t, err)
	assert.InDelta(t, 10.5, out.Coordinate.Lat, 1e-9)

	roi := &entity.BBox{MinLat: 34, MaxLat: 36, MinLon: -118, MaxLon: -117}
	out, err = NewNormalizer(roi, nil).Normalize(coordCandidate(raw))
	require.NoError(t, err)
	assert.InDelta(t, 35.4717, out.Coordinate.Lat, 1e-9)
	assert.Equal(t, "35.4717, -117.6797", out.Coordinate.Original)
}

func TestNormalize_SpecialCases(t *testing.T) {
	n := NewNormalizer(nil, nil)

	out, err := n.Normalize(coordCandidate("T12N R5E Section 14"))
	require.NoError(t, err)
	assert.Nil(t, out.Coordinate)
	assert.Equal(t, NotationPLSS, out.Fields["system"])
	assert.Contains(t, out.Notes, constants.ReasonUnsupportedSystem)

	out, err = n.Normalize(coordCandidate("35°28'18\"N 117°40'47\"W NAD27"))
	require.NoError(t, err)
	assert.NotNil(t, out.Coordinate)
	assert.Equal(t, "NAD27", out.Fields["datum"])
	assert.Contains(t, out.Notes, constants.ReasonDatumAssumed)

	out, err = n.Normalize(coordCandidate("LAT: 95.0 LON: 10.0"))
	require.NoError(t, err)
	require.NotNil(t, out.Coordinate)
	assert.False(t, InRange(out.Coordinate.Lat, out.Coordinate.Lon))

	out, err = n.Normalize(coordCandidate("near the old mill"))
	assert.True(t, errors.Is(err, common.ErrUnparseableCoordinate))
	assert.Contains(t, out.Notes, constants.ReasonUnparseable)

	sample := entity.Candidate{Type: constants.EntitySample, Fields: map[string]any{"id": "SR-1"}}
	out, err = n.Normalize(sample)
	require.NoError(t, err)
	assert.Nil(t, out.Coordinate)
}

// Parsing, formatting back to decimal degrees and re-parsing must agree.
func TestRoundTrip(t *testing.T) {
	points := [][2]float64{{35.4717, -117.6797}, {-33.8688, 151.2093}, {64.1466, -21.9426}, {-0.75, -78.5}, {51.5007, -0.1246}}
	formats := map[string]func(lat, lon float64) string{
		"decimal": FormatDecimal,
		"dms":     FormatDMS,
		"utm": func(lat, lon float64) string {
			s, err := FormatUTM(lat, lon)
			require.NoError(t, err)
			return s
		},
	}
	n := NewNormalizer(nil, nil)
	const eps = 1e-5
	for name, format := range formats {
		for _, pt := range points {
			t.Run(fmt.Sprintf("%s/%v", name, pt), func(t *testing.T) {
				first, err := n.Normalize(coordCandidate(format(pt[0], pt[1])))
				require.NoError(t, err)
				require.NotNil(t, first.Coordinate)
				assert.InDelta(t, pt[0], first.Coordinate.Lat, eps)
				assert.InDelta(t, pt[1], first.Coordinate.Lon, eps)

				again, err := n.Normalize(coordCandidate(FormatDecimal(first.Coordinate.Lat, first.Coordinate.Lon)))
				require.NoError(t, err)
				require.NotNil(t, again.Coordinate)
				assert.InDelta(t, first.Coordinate.Lat, again.Coordinate.Lat, eps)
				assert.InDelta(t, first.Coordinate.Lon, again.Coordinate.Lon, eps)
			})
		}
	}
}

func TestDetectDatum(t *testing.T) {
	assert.Equal(t, "NAD27", DetectDatum("datum: NAD 27"))
	assert.Equal(t, "NAD83", DetectDatum("NAD-83 grid"))
	assert.Equal(t, "WGS84", DetectDatum("wgs84"))
	assert.Empty(t, DetectDatum("no datum"))
}

func TestZoneHint(t *testing.T) {
	assert.Equal(t, "11S", ZoneHint("All coordinates UTM zone 11s unless noted"))
	assert.Equal(t, "", ZoneHint("no zone given"))
}

func TestLinkSamples(t *testing.T) {
	located := func(page, start, end int, lat, lon float64) entity.Candidate {
		return entity.Candidate{
			Type:       constants.EntityCoordinate,
			PageIndex:  page,
			Span:       entity.Span{Start: start, End: end},
			Fields:     map[string]any{"raw": fmt.Sprintf("%g, %g", lat, lon)},
			Coordinate: &entity.NormalizedCoordinate{Lat: lat, Lon: lon, Format: NotationDecimal},
		}
	}
	sample := func(page, start, end int, id string) entity.Candidate {
		return entity.Candidate{
			Type:      constants.EntitySample,
			PageIndex: page,
			Span:      entity.Span{Start: start, End: end},
			Fields:    map[string]any{"id": id},
		}
	}

	cands := []entity.Candidate{
		located(0, 0, 20, 35.1, -117.1),
		sample(0, 25, 60, "near-first"),
		located(0, 200, 220, 35.2, -117.2),
		sample(0, 150, 190, "near-second"),
		sample(0, 400, 420, "too-far"),
		sample(1, 0, 10, "other-page"),
		located(0, 500, 520, 95, -117.3),
		sample(0, 525, 540, "invalid-coordinate"),
		sample(0, -1, -1, "paraphrased"),
	}

	out, linked := LinkSamples(cands, constants.SampleLinkWindow)
	require.Len(t, out, len(cands))
	assert.Equal(t, 2, linked)

	assert.Equal(t, 35.1, out[1].Fields["location_lat"])
	assert.Equal(t, "35.1, -117.1", out[1].Fields["location"])
	assert.Equal(t, -117.2, out[3].Fields["location_lon"])
	for _, i := range []int{4, 5, 7, 8} {
		assert.NotContains(t, out[i].Fields, "location", out[i].Fields["id"])
	}
	require.NotNil(t, out[1].Coordinate)
	assert.Equal(t, 35.1, out[1].Coordinate.Lat)
	assert.NotSame(t, cands[0].Coordinate, out[1].Coordinate)
	require.NotNil(t, out[3].Coordinate)
	assert.Equal(t, 35.2, out[3].Coordinate.Lat)
	for _, i := range []int{4, 5, 7, 8} {
		assert.Nil(t, out[i].Coordinate)
	}
	assert.NotContains(t, cands[1].Fields, "location", "input candidates are not modified")
}
