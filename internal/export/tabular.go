package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/geoextract/internal/entity"
)

var baseColumns = []string{
	"document_id",
	"page_index",
	"seq",
	"entity_type",
	"status",
	"reason",
	"confidence",
	"method",
	"latitude",
	"longitude",
	"coordinate_format",
	"coordinate_original",
	"text_span",
}

const maxSpanChars = 500

// fieldColumns is the sorted union of field keys across records.
func fieldColumns(records []entity.Record) []string {
	seen := map[string]struct{}{}
	for _, r := range records {
		for k := range r.Fields {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func headers(fields []string) []string {
	out := append([]string(nil), baseColumns...)
	for _, k := range fields {
		out = append(out, propertyName(k))
	}
	return out
}

// row returns typed cell values for one record; nil means empty.
func row(r entity.Record, fields []string) []any {
	out := make([]any, 0, len(baseColumns)+len(fields))
	out = append(out,
		r.Source.DocumentID.String(),
		r.Source.PageIndex,
		r.Seq,
		string(r.EntityType),
		string(r.Status),
		r.Reason,
		r.Confidence,
		string(r.Method),
	)
	if c := r.NormalizedCoordinate; c != nil {
		out = append(out, c.Lat, c.Lon, c.Format, c.Original)
	} else {
		out = append(out, nil, nil, nil, nil)
	}
	out = append(out, truncate(r.Source.TextSpan, maxSpanChars))
	for _, k := range fields {
		v, ok := r.Fields[k]
		if !ok || v == nil {
			out = append(out, nil)
			continue
		}
		switch x := v.(type) {
		case string, bool, int, int64, float64:
			out = append(out, x)
		default:
			out = append(out, cellText(v))
		}
	}
	return out
}

// cellText renders any value as a single cell. Assay lists read as
// "Cu 0.45 %; Au <0.01 ppm".
func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case []entity.Assay:
		parts := make([]string, len(x))
		for i, a := range x {
			parts[i] = assayText(a)
		}
		return strings.Join(parts, "; ")
	case []string:
		return strings.Join(x, "; ")
	}
	if as := (entity.Candidate{Fields: map[string]any{"assays": v}}).Assays(); len(as) > 0 {
		return cellText(as)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func assayText(a entity.Assay) string {
	value := strconv.FormatFloat(a.Value, 'f', -1, 64)
	if a.DetectionLimit != nil && *a.DetectionLimit >= a.Value {
		value = "<" + value
	}
	return a.Element + " " + value + " " + a.Unit
}

// CSV encodes every record, rejected ones included, one row per record.
func (s *Service) CSV(rs entity.ResultSet) ([]byte, error) {
	start := time.Now()
	fields := fieldColumns(rs.Records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers(fields)); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for _, r := range rs.Records {
		cells := row(r, fields)
		rec := make([]string, len(cells))
		for i, c := range cells {
			rec[i] = cellText(c)
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}

	s.logger.Info("export.csv.ok",
		"job_id", rs.JobID,
		"rows", len(rs.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
