package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/validate"
)

const crsWGS84 = "urn:ogc:def:crs:EPSG::4326"

type FeatureCollection struct {
	Type     string    `json:"type"`
	CRS      CRS       `json:"crs"`
	Features []Feature `json:"features"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

type CRS struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Point coordinates are [lon, lat].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// reserved holds record-level names; colliding field keys get a "field_" prefix.
var reserved = map[string]struct{}{}

func init() {
	for _, c := range baseColumns {
		reserved[c] = struct{}{}
	}
}

func propertyName(key string) string {
	if _, clash := reserved[key]; clash {
		return "field_" + key
	}
	return key
}

// Features builds one point feature per accepted or flagged record that has
// a normalized coordinate, in record order.
func Features(records []entity.Record) []Feature {
	features := make([]Feature, 0, len(records))
	for _, r := range records {
		if !r.Geolocated() {
			continue
		}
		c := r.NormalizedCoordinate
		props := map[string]any{
			"entity_type":         r.EntityType,
			"status":              r.Status,
			"confidence":          r.Confidence,
			"method":              r.Method,
			"page_index":          r.Source.PageIndex,
			"text_span":           r.Source.TextSpan,
			"document_id":         r.Source.DocumentID,
			"seq":                 r.Seq,
			"coordinate_format":   c.Format,
			"coordinate_original": c.Original,
		}
		if r.Reason != "" {
			props["reason"] = r.Reason
		}
		for k, v := range r.Fields {
			if v == nil {
				continue
			}
			props[propertyName(k)] = v
		}
		features = append(features, Feature{
			Type:       "Feature",
			Geometry:   Point{Type: "Point", Coordinates: [2]float64{c.Lon, c.Lat}},
			Properties: props,
		})
	}
	return features
}

// GeoJSON encodes the geolocated records of rs as a FeatureCollection.
func (s *Service) GeoJSON(rs entity.ResultSet, meta *Metadata) ([]byte, error) {
	start := time.Now()
	fc := FeatureCollection{
		Type:     "FeatureCollection",
		CRS:      CRS{Type: "name", Properties: map[string]string{"name": crsWGS84}},
		Features: Features(rs.Records),
	}
	if meta != nil {
		m := *meta
		m.Totals = totals(rs.Records)
		fc.Metadata = &m
	}

	b, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("geojson encode: %w", err)
	}
	s.logger.Info("export.geojson.ok",
		"job_id", rs.JobID,
		"features", len(fc.Features),
		"records", len(rs.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

func totals(records []entity.Record) StatusTotals {
	n := validate.Count(records)
	return StatusTotals{
		Accepted: n[constants.StatusAccepted],
		Flagged:  n[constants.StatusFlagged],
		Rejected: n[constants.StatusRejected],
	}
}
