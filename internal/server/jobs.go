package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/export"
	"github.com/joseph-ayodele/geoextract/internal/ingest"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
)

// Orchestrator is the subset of jobs.Orchestrator the service drives.
type Orchestrator interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (uuid.UUID, error)
	Status(id uuid.UUID) (entity.Job, error)
	Results(id uuid.UUID) (entity.ResultSet, error)
	Cancel(id uuid.UUID) error
	List() []entity.Job
	Discard(id uuid.UUID) error
}

// Archive serves jobs that are no longer held in memory.
type Archive interface {
	GetJob(ctx context.Context, id uuid.UUID) (entity.Job, error)
	ListRecords(ctx context.Context, jobID uuid.UUID, statuses ...constants.RecordStatus) ([]entity.Record, error)
}

type JobsService struct {
	jobs     Orchestrator
	archive  Archive
	exporter *export.Service
	ingestor ingest.Ingestor
	logger   *slog.Logger
}

// NewJobsService wires the service. archive may be nil.
func NewJobsService(orch Orchestrator, archive Archive, exporter *export.Service, logger *slog.Logger) *JobsService {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	return &JobsService{jobs: orch, archive: archive, exporter: exporter, logger: logger}
}

// Submit expects {filename, content (base64), config{...}} and returns {job_id, state}.
func (s *JobsService) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filename := strings.TrimSpace(stringField(req, "filename"))
	raw := stringField(req, "content")
	if raw == "" {
		return nil, common.InvalidArgumentError("content is required")
	}
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("content must be base64: %v", err)
	}

	var cfg entity.JobConfig
	if v, ok := req.GetFields()["config"]; ok {
		if err := decodeStrict(v.GetStructValue(), &cfg); err != nil {
			return nil, common.InvalidArgumentErrorf("config: %v", err)
		}
	}

	id, err := s.jobs.Submit(ctx, jobs.SubmitRequest{Filename: filename, Content: content, Config: cfg})
	if err != nil {
		s.logger.Warn("server.submit.failed", "filename", filename, "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"job_id": id.String(), "state": string(constants.JobQueued)})
}

// GetStatus expects {job_id} and returns the job snapshot.
func (s *JobsService) GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(req)
	if err != nil {
		return nil, err
	}
	job, err := s.status(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(job)
}

// GetResults expects {job_id} and returns the result set of a completed job.
func (s *JobsService) GetResults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(req)
	if err != nil {
		return nil, err
	}
	rs, _, err := s.results(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(rs)
}

// Cancel expects {job_id}.
func (s *JobsService) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(req)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Cancel(id); err != nil {
		return nil, common.ToStatus(err)
	}
	job, err := s.jobs.Status(id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"job_id": id.String(), "state": string(job.State), "reason": job.Reason})
}

// Export expects {job_id, format} and returns {filename, format, content_type, content (base64)}.
func (s *JobsService) Export(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(req)
	if err != nil {
		return nil, err
	}
	name := stringField(req, "format")
	if name == "" {
		name = string(export.GeoJSON)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return nil, common.InvalidArgumentError(err.Error())
	}

	rs, job, err := s.results(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	b, err := s.exporter.Export(format, rs, export.MetadataFrom(job))
	if err != nil {
		s.logger.Error("server.export.failed", "job_id", id, "format", format, "error", err)
		return nil, common.InternalError(err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"filename":     export.BaseName(rs) + "." + string(format),
		"format":       string(format),
		"content_type": format.ContentType(),
		"content":      base64.StdEncoding.EncodeToString(b),
	})
}

// ListJobs returns {jobs: [...]} in submission order.
func (s *JobsService) ListJobs(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list := s.jobs.List()
	items := make([]any, 0, len(list))
	for _, j := range list {
		m, err := toMap(j)
		if err != nil {
			return nil, common.InternalError(err.Error())
		}
		items = append(items, m)
	}
	return structpb.NewStruct(map[string]any{"jobs": items})
}

// Discard expects {job_id}; it cancels a live job and forgets it.
func (s *JobsService) Discard(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(req)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Discard(id); err != nil {
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"job_id": id.String(), "discarded": true})
}

func (s *JobsService) status(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	job, err := s.jobs.Status(id)
	if errors.Is(err, common.ErrNotFound) && s.archive != nil {
		return s.archive.GetJob(ctx, id)
	}
	return job, err
}

// results falls back to the archive for jobs evicted from memory.
func (s *JobsService) results(ctx context.Context, id uuid.UUID) (entity.ResultSet, entity.Job, error) {
	rs, err := s.jobs.Results(id)
	if err == nil {
		job, _ := s.jobs.Status(id)
		return rs, job, nil
	}
	if !errors.Is(err, common.ErrNotFound) || s.archive == nil {
		return entity.ResultSet{}, entity.Job{}, err
	}

	job, err := s.archive.GetJob(ctx, id)
	if err != nil {
		return entity.ResultSet{}, entity.Job{}, err
	}
	if job.State != constants.JobCompleted {
		return entity.ResultSet{}, job, fmt.Errorf("%w: job %s is %s", common.ErrResultsNotReady, id, job.State)
	}
	records, err := s.archive.ListRecords(ctx, id)
	if err != nil {
		return entity.ResultSet{}, job, err
	}
	return entity.ResultSet{
		JobID:       job.ID,
		DocumentID:  job.Document.ID,
		Filename:    job.Document.Filename,
		Records:     records,
		CoverageGap: job.CoverageGap,
	}, job, nil
}

func jobID(req *structpb.Struct) (uuid.UUID, error) {
	raw := strings.TrimSpace(stringField(req, "job_id"))
	if raw == "" {
		return uuid.Nil, common.InvalidArgumentError("job_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.InvalidArgumentError("job_id must be a UUID")
	}
	return id, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	m, err := toMap(v)
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalError(err.Error())
	}
	return out, nil
}

func decodeStrict(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
