package coords

import (
	"fmt"
	"math"
)

// WGS84 ellipsoid and UTM projection constants.
const (
	wgs84A        = 6378137.0
	wgs84F        = 1 / 298.257223563
	utmK0         = 0.9996
	utmFalseEast  = 500000.0
	utmFalseNorth = 10000000.0
)

// Krüger series coefficients, third order in n.
var (
	tmN = wgs84F / (2 - wgs84F)
	tmA = wgs84A / (1 + tmN) * (1 + tmN*tmN/4 + tmN*tmN*tmN*tmN/64)

	tmAlpha = [3]float64{
		tmN/2 - 2*tmN*tmN/3 + 5*tmN*tmN*tmN/16,
		13*tmN*tmN/48 - 3*tmN*tmN*tmN/5,
		61 * tmN * tmN * tmN / 240,
	}
	tmBeta = [3]float64{
		tmN/2 - 2*tmN*tmN/3 + 37*tmN*tmN*tmN/96,
		tmN*tmN/48 + tmN*tmN*tmN/15,
		17 * tmN * tmN * tmN / 480,
	}
	tmDelta = [3]float64{
		2*tmN - 2*tmN*tmN/3 - 2*tmN*tmN*tmN,
		7*tmN*tmN/3 - 8*tmN*tmN*tmN/5,
		56 * tmN * tmN * tmN / 15,
	}
)

const bandLetters = "CDEFGHJKLMNPQRSTUVWX"

// UTMPoint is a position in a UTM zone.
type UTMPoint struct {
	Zone     int
	Band     byte // latitude band letter, 0 when unknown
	North    bool
	Easting  float64
	Northing float64
}

func centralMeridian(zone int) float64 {
	return float64(zone)*6 - 183
}

// BandNorth reports the hemisphere of a latitude band letter: N..X north, C..M south.
func BandNorth(band byte) (north bool, ok bool) {
	if band >= 'a' && band <= 'z' {
		band -= 'a' - 'A'
	}
	i := indexByte(bandLetters, band)
	if i < 0 {
		return false, false
	}
	return band >= 'N', true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// FromUTM converts a UTM position to WGS84 decimal degrees.
func FromUTM(p UTMPoint) (lat, lon float64, err error) {
	if p.Zone < 1 || p.Zone > 60 {
		return 0, 0, fmt.Errorf("utm zone %d out of range", p.Zone)
	}
	if p.Easting < 100000 || p.Easting > 900000 {
		return 0, 0, fmt.Errorf("utm easting %.1f out of range", p.Easting)
	}
	if p.Northing < 0 || p.Northing > utmFalseNorth {
		return 0, 0, fmt.Errorf("utm northing %.1f out of range", p.Northing)
	}

	n0 := 0.0
	if !p.North {
		n0 = utmFalseNorth
	}
	xi := (p.Northing - n0) / (utmK0 * tmA)
	eta := (p.Easting - utmFalseEast) / (utmK0 * tmA)

	xiP, etaP := xi, eta
	for j := 1; j <= 3; j++ {
		b := tmBeta[j-1]
		xiP -= b * math.Sin(2*float64(j)*xi) * math.Cosh(2*float64(j)*eta)
		etaP -= b * math.Cos(2*float64(j)*xi) * math.Sinh(2*float64(j)*eta)
	}
	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j := 1; j <= 3; j++ {
		phi += tmDelta[j-1] * math.Sin(2*float64(j)*chi)
	}
	lambda := math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	lat = phi * 180 / math.Pi
	lon = centralMeridian(p.Zone) + lambda*180/math.Pi
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	return lat, lon, nil
}

// ToUTM projects WGS84 decimal degrees into the standard UTM zone for lon.
// Latitudes outside [-80, 84] are not covered by UTM.
func ToUTM(lat, lon float64) (UTMPoint, error) {
	if lat < -80 || lat > 84 {
		return UTMPoint{}, fmt.Errorf("latitude %.6f outside utm coverage", lat)
	}
	if lon < -180 || lon > 180 {
		return UTMPoint{}, fmt.Errorf("longitude %.6f out of range", lon)
	}
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone > 60 {
		zone = 60
	}

	phi := lat * math.Pi / 180
	dLambda := (lon - centralMeridian(zone)) * math.Pi / 180

	k := 2 * math.Sqrt(tmN) / (1 + tmN)
	t := math.Sinh(math.Atanh(math.Sin(phi)) - k*math.Atanh(k*math.Sin(phi)))
	xiP := math.Atan2(t, math.Cos(dLambda))
	etaP := math.Atanh(math.Sin(dLambda) / math.Sqrt(1+t*t))

	xi, eta := xiP, etaP
	for j := 1; j <= 3; j++ {
		a := tmAlpha[j-1]
		xi += a * math.Sin(2*float64(j)*xiP) * math.Cosh(2*float64(j)*etaP)
		eta += a * math.Cos(2*float64(j)*xiP) * math.Sinh(2*float64(j)*etaP)
	}

	p := UTMPoint{
		Zone:     zone,
		Band:     bandFor(lat),
		North:    lat >= 0,
		Easting:  utmFalseEast + utmK0*tmA*eta,
		Northing: utmK0 * tmA * xi,
	}
	if !p.North {
		p.Northing += utmFalseNorth
	}
	return p, nil
}

func bandFor(lat float64) byte {
	i := int(math.Floor((lat + 80) / 8))
	if i < 0 {
		i = 0
	}
	if i >= len(bandLetters) {
		i = len(bandLetters) - 1
	}
	return bandLetters[i]
}
