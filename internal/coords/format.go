package coords

import (
	"fmt"
	"math"
)

// FormatDecimal renders a signed decimal-degree pair with six decimals.
func FormatDecimal(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

// FormatDMS renders degrees, minutes and seconds with hemisphere letters.
func FormatDMS(lat, lon float64) string {
	return dms(lat, "N", "S") + " " + dms(lon, "E", "W")
}

func dms(v float64, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
	}
	total := math.Round(math.Abs(v)*3600*100) / 100
	deg := math.Floor(total / 3600)
	min := math.Floor((total - deg*3600) / 60)
	sec := total - deg*3600 - min*60
	return fmt.Sprintf(`%d°%02d'%05.2f"%s`, int(deg), int(min), sec, hemi)
}

// FormatUTM renders the position in its standard UTM zone, e.g. "Zone 11S 456789.0mE 3912345.0mN".
func FormatUTM(lat, lon float64) (string, error) {
	p, err := ToUTM(lat, lon)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Zone %d%c %.1fmE %.1fmN", p.Zone, p.Band, p.Easting, p.Northing), nil
}
