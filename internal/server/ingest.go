package server

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/geoextract/internal/ingest"
)

// WithIngestor enables IngestFile and IngestDirectory, which read documents
// from the server's own filesystem.
func (s *JobsService) WithIngestor(ing ingest.Ingestor) *JobsService {
	s.ingestor = ing
	return s
}

// IngestFile expects {path} and returns the ingest outcome.
func (s *JobsService) IngestFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingestor == nil {
		return nil, status.Error(codes.Unimplemented, "path ingestion disabled")
	}
	path := strings.TrimSpace(stringField(req, "path"))
	if path == "" {
		s.logger.Error("ingest request missing path")
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}

	s.logger.Info("starting file ingest", "path", path)
	r, err := s.ingestor.IngestPath(ctx, path)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "ingest: %v", err)
	}
	s.logger.Info("file ingest succeeded", "job_id", r.JobID, "deduplicated", r.Deduplicated)
	return structpb.NewStruct(ingestItem(r))
}

// IngestDirectory expects {root_path, skip_hidden (default true)}.
func (s *JobsService) IngestDirectory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingestor == nil {
		return nil, status.Error(codes.Unimplemented, "path ingestion disabled")
	}
	root := strings.TrimSpace(stringField(req, "root_path"))
	if root == "" {
		s.logger.Error("ingest directory request missing root_path")
		return nil, status.Error(codes.InvalidArgument, "root_path is required")
	}
	skipHidden := true
	if v, ok := req.GetFields()["skip_hidden"]; ok {
		skipHidden = v.GetBoolValue()
	}

	s.logger.Info("starting directory ingest", "root", root, "skip_hidden", skipHidden)
	results, stats, err := s.ingestor.IngestDirectory(ctx, root, skipHidden)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "ingest directory: %v", err)
	}

	items := make([]any, 0, len(results))
	for _, r := range results {
		items = append(items, ingestItem(r))
	}
	return structpb.NewStruct(map[string]any{
		"scanned":      float64(stats.Scanned),
		"matched":      float64(stats.Matched),
		"succeeded":    float64(stats.Succeeded),
		"deduplicated": float64(stats.Deduplicated),
		"failed":       float64(stats.Failed),
		"results":      items,
	})
}

func ingestItem(r ingest.IngestionResult) map[string]any {
	m := map[string]any{
		"source_path":      r.SourcePath,
		"deduplicated":     r.Deduplicated,
		"content_hash_hex": r.HashHex,
		"file_ext":         r.FileExt,
		"error":            r.Err,
	}
	if r.JobID != uuid.Nil {
		m["job_id"] = r.JobID.String()
	}
	if !r.SubmittedAt.IsZero() {
		m["submitted_at"] = r.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return m
}
