package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Format names an export encoding.
type Format string

const (
	GeoJSON Format = "geojson"
	CSV     Format = "csv"
	XLSX    Format = "xlsx"
)

// Formats lists every supported format in the order files are written.
func Formats() []Format { return []Format{GeoJSON, CSV, XLSX} }

// ParseFormat accepts a format name or file extension ("json" maps to GeoJSON).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "geojson", "json":
		return GeoJSON, nil
	case "csv":
		return CSV, nil
	case "xlsx", "excel":
		return XLSX, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the MIME type of an encoded export.
func (f Format) ContentType() string {
	switch f {
	case GeoJSON:
		return "application/geo+json"
	case CSV:
		return "text/csv"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Metadata describes the run that produced a result set. It is embedded in
// GeoJSON output when supplied.
type Metadata struct {
	JobID        uuid.UUID    `json:"job_id"`
	SourceFile   string       `json:"source_file"`
	PageCount    int          `json:"page_count"`
	ProcessedAt  time.Time    `json:"processing_date"`
	OCRBackend   string       `json:"ocr_engine"`
	ModelBackend string       `json:"llm_model"`
	Language     string       `json:"language"`
	Totals       StatusTotals `json:"totals"`
	PagesFailed  []int        `json:"pages_failed,omitempty"`
}

type StatusTotals struct {
	Accepted int `json:"accepted"`
	Flagged  int `json:"flagged"`
	Rejected int `json:"rejected"`
}

// MetadataFrom builds export metadata from a finished job snapshot.
func MetadataFrom(job entity.Job) *Metadata {
	m := &Metadata{
		JobID:        job.ID,
		SourceFile:   job.Document.Filename,
		PageCount:    job.Document.PageCount,
		OCRBackend:   job.Config.OCRBackend,
		ModelBackend: job.Config.ModelBackend,
		Language:     job.Config.Language,
	}
	if job.FinishedAt != nil {
		m.ProcessedAt = job.FinishedAt.UTC()
	}
	if job.CoverageGap != nil {
		m.PagesFailed = append([]int(nil), job.CoverageGap.Pages...)
	}
	return m
}

// Service encodes result sets for download or writes them to disk.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Export encodes rs in the given format. meta is optional.
func (s *Service) Export(format Format, rs entity.ResultSet, meta *Metadata) ([]byte, error) {
	switch format {
	case GeoJSON:
		return s.GeoJSON(rs, meta)
	case CSV:
		return s.CSV(rs)
	case XLSX:
		return s.XLSX(rs)
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// WriteFiles writes one file per format into dir, named after the source
// document. It returns the written paths.
func (s *Service) WriteFiles(dir string, rs entity.ResultSet, meta *Metadata, formats ...Format) ([]string, error) {
	if len(formats) == 0 {
		formats = Formats()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := BaseName(rs)
	var paths []string
	for _, f := range formats {
		b, err := s.Export(f, rs, meta)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, base+"."+string(f))
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// BaseName is the file stem used for exports of rs.
func BaseName(rs entity.ResultSet) string {
	name := strings.TrimSuffix(filepath.Base(rs.Filename), filepath.Ext(rs.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return rs.JobID.String()
	}
	return name
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
