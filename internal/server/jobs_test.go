package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/export"
	"github.com/joseph-ayodele/geoextract/internal/ingest"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
)

type fakeOrchestrator struct {
	mu        sync.Mutex
	submitted []jobs.SubmitRequest
	jobs      map[uuid.UUID]entity.Job
	results   map[uuid.UUID]entity.ResultSet
	submitErr error
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{jobs: map[uuid.UUID]entity.Job{}, results: map[uuid.UUID]entity.ResultSet{}}
}

func (f *fakeOrchestrator) Submit(_ context.Context, req jobs.SubmitRequest) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return uuid.Nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	id := uuid.New()
	f.jobs[id] = entity.Job{ID: id, State: constants.JobQueued, Document: entity.Document{Filename: req.Filename}}
	return id, nil
}

func (f *fakeOrchestrator) Status(id uuid.UUID) (entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return entity.Job{}, common.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeOrchestrator) Results(id uuid.UUID) (entity.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return entity.ResultSet{}, common.ErrJobNotFound
	}
	rs, ok := f.results[id]
	if !ok {
		return entity.ResultSet{}, common.ErrResultsNotReady
	}
	return rs, nil
}

func (f *fakeOrchestrator) Cancel(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return common.ErrJobNotFound
	}
	if j.State.Terminal() {
		return common.ErrJobTerminal
	}
	j.State, j.Reason = constants.JobFailed, constants.FailCancelled
	f.jobs[id] = j
	return nil
}

func (f *fakeOrchestrator) List() []entity.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

func (f *fakeOrchestrator) Discard(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return common.ErrJobNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeOrchestrator) complete(rs entity.ResultSet) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	rs.JobID = id
	f.jobs[id] = entity.Job{
		ID:       id,
		State:    constants.JobCompleted,
		Document: entity.Document{ID: rs.DocumentID, Filename: rs.Filename, PageCount: 2},
		Config:   entity.JobConfig{OCRBackend: constants.OCRTesseract, ModelBackend: constants.ModelNone},
	}
	f.results[id] = rs
	return id
}

type fakeArchive struct {
	job     entity.Job
	records []entity.Record
}

func (a *fakeArchive) GetJob(_ context.Context, id uuid.UUID) (entity.Job, error) {
	if a.job.ID != id {
		return entity.Job{}, common.ErrJobNotFound
	}
	return a.job, nil
}

func (a *fakeArchive) ListRecords(_ context.Context, _ uuid.UUID, _ ...constants.RecordStatus) ([]entity.Record, error) {
	return a.records, nil
}

func startServer(t *testing.T, orch Orchestrator, archive Archive) *JobsClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(nil)))
	RegisterJobsServer(srv, NewJobsService(orch, archive, nil, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewJobsClient(cc)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func sampleResults() entity.ResultSet {
	doc := uuid.New()
	return entity.ResultSet{
		DocumentID: doc,
		Filename:   "survey.pdf",
		Records: []entity.Record{
			{
				EntityType:           constants.EntityCoordinate,
				Fields:               map[string]any{"raw": "35.4717, -117.6797"},
				NormalizedCoordinate: &entity.NormalizedCoordinate{Lat: 35.4717, Lon: -117.6797, Format: "decimal"},
				Confidence:           0.93,
				Method:               constants.MethodPattern,
				Status:               constants.StatusAccepted,
				Source:               entity.Source{DocumentID: doc, PageIndex: 0, TextSpan: "35.4717, -117.6797"},
			},
		},
	}
}

func TestJobsService_Submit(t *testing.T) {
	orch := newFakeOrchestrator()
	client := startServer(t, orch, nil)

	out, err := client.Call(callCtx(t), "Submit", mustStruct(t, map[string]any{
		"filename": "report.pdf",
		"content":  base64.StdEncoding.EncodeToString([]byte("%PDF-1.7")),
		"config": map[string]any{
			"model_backend":        "none",
			"resolution_dpi":       200,
			"confidence_threshold": 0.8,
			"region_of_interest":   map[string]any{"min_lat": 34, "min_lon": -118, "max_lat": 36, "max_lon": -117},
		},
	}))
	require.NoError(t, err)

	id, err := uuid.Parse(out.GetFields()["job_id"].GetStringValue())
	require.NoError(t, err)
	assert.Equal(t, "queued", out.GetFields()["state"].GetStringValue())

	require.Len(t, orch.submitted, 1)
	req := orch.submitted[0]
	assert.Equal(t, "report.pdf", req.Filename)
	assert.Equal(t, []byte("%PDF-1.7"), req.Content)
	assert.Equal(t, 200, req.Config.ResolutionDPI)
	require.NotNil(t, req.Config.ConfidenceThreshold)
	assert.InDelta(t, 0.8, *req.Config.ConfidenceThreshold, 1e-9)
	require.NotNil(t, req.Config.RegionOfInterest)
	assert.Equal(t, -117.0, req.Config.RegionOfInterest.MaxLon)

	_, err = orch.Status(id)
	assert.NoError(t, err)
}

func TestJobsService_SubmitRejects(t *testing.T) {
	orch := newFakeOrchestrator()
	client := startServer(t, orch, nil)
	ctx := callCtx(t)
	content := base64.StdEncoding.EncodeToString([]byte("x"))

	tests := []struct {
		name string
		req  map[string]any
	}{
		{"missing content", map[string]any{"filename": "a.pdf"}},
		{"bad base64", map[string]any{"content": "%%%"}},
		{"unknown config key", map[string]any{"content": content, "config": map[string]any{"dpi": 300}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Call(ctx, "Submit", mustStruct(t, tt.req))
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}

	orch.submitErr = common.ErrQueueClosed
	_, err := client.Call(ctx, "Submit", mustStruct(t, map[string]any{"content": content}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestJobsService_StatusAndResults(t *testing.T) {
	orch := newFakeOrchestrator()
	client := startServer(t, orch, nil)
	ctx := callCtx(t)
	id := orch.complete(sampleResults())

	st, err := client.Call(ctx, "GetStatus", mustStruct(t, map[string]any{"job_id": id.String()}))
	require.NoError(t, err)
	assert.Equal(t, "completed", st.GetFields()["state"].GetStringValue())

	res, err := client.Call(ctx, "GetResults", mustStruct(t, map[string]any{"job_id": id.String()}))
	require.NoError(t, err)
	b, err := res.MarshalJSON()
	require.NoError(t, err)
	var rs entity.ResultSet
	require.NoError(t, json.Unmarshal(b, &rs))
	require.Len(t, rs.Records, 1)
	assert.Equal(t, constants.StatusAccepted, rs.Records[0].Status)
	assert.InDelta(t, -117.6797, rs.Records[0].NormalizedCoordinate.Lon, 1e-9)

	queued, err := orch.Submit(ctx, jobs.SubmitRequest{Content: []byte("x")})
	require.NoError(t, err)
	_, err = client.Call(ctx, "GetResults", mustStruct(t, map[string]any{"job_id": queued.String()}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.Call(ctx, "GetStatus", mustStruct(t, map[string]any{"job_id": uuid.NewString()}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Call(ctx, "GetStatus", mustStruct(t, map[string]any{"job_id": "nope"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestJobsService_ArchiveFallback(t *testing.T) {
	rs := sampleResults()
	archived := entity.Job{ID: uuid.New(), State: constants.JobCompleted, Document: entity.Document{ID: rs.DocumentID, Filename: "old.pdf"}}
	client := startServer(t, newFakeOrchestrator(), &fakeArchive{job: archived, records: rs.Records})
	ctx := callCtx(t)
	req := mustStruct(t, map[string]any{"job_id": archived.ID.String(), "format": "csv"})

	st, err := client.Call(ctx, "GetStatus", req)
	require.NoError(t, err)
	assert.Equal(t, "old.pdf", st.GetFields()["document"].GetStructValue().GetFields()["filename"].GetStringValue())

	out, err := client.Call(ctx, "Export", req)
	require.NoError(t, err)
	assert.Equal(t, "old.csv", out.GetFields()["filename"].GetStringValue())
	body, err := base64.StdEncoding.DecodeString(out.GetFields()["content"].GetStringValue())
	require.NoError(t, err)
	assert.Contains(t, string(body), "35.4717")
}

func TestJobsService_Export(t *testing.T) {
	orch := newFakeOrchestrator()
	client := startServer(t, orch, nil)
	ctx := callCtx(t)
	id := orch.complete(sampleResults())

	for _, f := range export.Formats() {
		t.Run(string(f), func(t *testing.T) {
			out, err := client.Call(ctx, "Export", mustStruct(t, map[string]any{"job_id": id.String(), "format": string(f)}))
			require.NoError(t, err)
			assert.Equal(t, string(f), out.GetFields()["format"].GetStringValue())
			assert.Equal(t, f.ContentType(), out.GetFields()["content_type"].GetStringValue())
			body, err := base64.StdEncoding.DecodeString(out.GetFields()["content"].GetStringValue())
			require.NoError(t, err)
			assert.NotEmpty(t, body)
		})
	}

	out, err := client.Call(ctx, "Export", mustStruct(t, map[string]any{"job_id": id.String()}))
	require.NoError(t, err)
	assert.Equal(t, "geojson", out.GetFields()["format"].GetStringValue())

	_, err = client.Call(ctx, "Export", mustStruct(t, map[string]any{"job_id": id.String(), "format": "pdf"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestJobsService_CancelListDiscard(t *testing.T) {
	orch := newFakeOrchestrator()
	client := startServer(t, orch, nil)
	ctx := callCtx(t)

	id, err := orch.Submit(ctx, jobs.SubmitRequest{Filename: "a.pdf", Content: []byte("x")})
	require.NoError(t, err)
	req := mustStruct(t, map[string]any{"job_id": id.String()})

	out, err := client.Call(ctx, "Cancel", req)
	require.NoError(t, err)
	assert.Equal(t, "failed", out.GetFields()["state"].GetStringValue())
	assert.Equal(t, constants.FailCancelled, out.GetFields()["reason"].GetStringValue())

	_, err = client.Call(ctx, "Cancel", req)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	list, err := client.Call(ctx, "ListJobs", &structpb.Struct{})
	require.NoError(t, err)
	assert.Len(t, list.GetFields()["jobs"].GetListValue().GetValues(), 1)

	_, err = client.Call(ctx, "Discard", req)
	require.NoError(t, err)
	_, err = client.Call(ctx, "Discard", req)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestLoggingInterceptor_EchoesRequestID(t *testing.T) {
	client := startServer(t, newFakeOrchestrator(), nil)
	ctx := metadata.AppendToOutgoingContext(callCtx(t), "x-request-id", "req-42")

	var header metadata.MD
	_, err := client.Call(ctx, "ListJobs", &structpb.Struct{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get("x-request-id"))
}

type fakeIngestor struct{}

func (fakeIngestor) IngestPath(_ context.Context, path string) (ingest.IngestionResult, error) {
	if path == "/bad.txt" {
		return ingest.IngestionResult{}, errors.New("unsupported or missing extension")
	}
	return ingest.IngestionResult{SourcePath: path, JobID: uuid.New(), FileExt: "pdf", SubmittedAt: time.Now()}, nil
}

func (fakeIngestor) IngestDirectory(_ context.Context, root string, skipHidden bool) ([]ingest.IngestionResult, ingest.DirStats, error) {
	res := []ingest.IngestionResult{{SourcePath: root + "/a.pdf", JobID: uuid.New()}, {SourcePath: root + "/b.pdf", Err: "boom"}}
	stats := ingest.DirStats{Scanned: 4, Matched: 2, Succeeded: 1, Failed: 1}
	if !skipHidden {
		stats.Scanned = 9
	}
	return res, stats, nil
}

func TestJobsService_Ingest(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterJobsServer(srv, NewJobsService(newFakeOrchestrator(), nil, nil, nil).WithIngestor(fakeIngestor{}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	client := NewJobsClient(cc)
	ctx := callCtx(t)

	out, err := client.Call(ctx, "IngestFile", mustStruct(t, map[string]any{"path": "/docs/a.pdf"}))
	require.NoError(t, err)
	_, err = uuid.Parse(out.GetFields()["job_id"].GetStringValue())
	assert.NoError(t, err)

	_, err = client.Call(ctx, "IngestFile", mustStruct(t, map[string]any{"path": "/bad.txt"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Call(ctx, "IngestFile", mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	dir, err := client.Call(ctx, "IngestDirectory", mustStruct(t, map[string]any{"root_path": "/docs"}))
	require.NoError(t, err)
	assert.Equal(t, 4.0, dir.GetFields()["scanned"].GetNumberValue())
	items := dir.GetFields()["results"].GetListValue().GetValues()
	require.Len(t, items, 2)
	assert.Equal(t, "boom", items[1].GetStructValue().GetFields()["error"].GetStringValue())

	dir, err = client.Call(ctx, "IngestDirectory", mustStruct(t, map[string]any{"root_path": "/docs", "skip_hidden": false}))
	require.NoError(t, err)
	assert.Equal(t, 9.0, dir.GetFields()["scanned"].GetNumberValue())
}

func TestJobsService_IngestDisabled(t *testing.T) {
	client := startServer(t, newFakeOrchestrator(), nil)
	_, err := client.Call(callCtx(t), "IngestFile", mustStruct(t, map[string]any{"path": "/a.pdf"}))
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
