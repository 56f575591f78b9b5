package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/async"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/pipeline"
)

// Processor runs one document through the pipeline.
type Processor interface {
	Process(ctx context.Context, in pipeline.Input, obs pipeline.Observer) (pipeline.Output, error)
}

// Archive persists terminal jobs.
type Archive interface {
	SaveJob(ctx context.Context, job entity.Job, records []entity.Record) error
}

type SubmitRequest struct {
	Filename string
	Content  []byte
	Config   entity.JobConfig
}

const archiveTimeout = 10 * time.Second

// Orchestrator admits submitted documents FIFO onto a bounded set of job
// workers and tracks each job until it is terminal.
type Orchestrator struct {
	proc    Processor
	archive Archive
	cfg     Config
	queue   *async.ProcessorQueue
	logger  *slog.Logger

	mu    sync.RWMutex
	jobs  map[uuid.UUID]*entry
	order []uuid.UUID
}

// New starts the job workers. archive may be nil.
func New(proc Processor, archive Archive, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		proc:    proc,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
		jobs:    make(map[uuid.UUID]*entry),
	}
	o.queue = async.NewProcessorQueue(o, logger,
		async.WithWorkers(cfg.MaxActiveJobs),
		async.WithQueueSize(cfg.QueueSize),
		async.WithProcessTimeout(cfg.JobTimeout),
	)
	return o
}

// Submit validates the request, registers the job as queued and enqueues it.
// It blocks while the admission queue is full.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	v := common.NewValidator().
		Field("content", req.Content, common.Required, common.MaxBytes(o.cfg.MaxFileSize))
	if err := v.Err(); err != nil {
		return uuid.Nil, err
	}
	cfg := req.Config.WithDefaults(o.cfg.Defaults)
	if err := cfg.Validate(); err != nil {
		return uuid.Nil, err
	}

	now := time.Now()
	job := entity.Job{
		ID: uuid.New(),
		Document: entity.Document{
			ID:        uuid.New(),
			Filename:  req.Filename,
			SizeBytes: int64(len(req.Content)),
		},
		Config:      cfg,
		State:       constants.JobQueued,
		SubmittedAt: now,
	}
	e := newEntry(job, req.Content)

	o.mu.Lock()
	o.jobs[job.ID] = e
	o.order = append(o.order, job.ID)
	o.mu.Unlock()

	o.logger.Info("jobs.submitted",
		"job_id", job.ID,
		"document_id", job.Document.ID,
		"filename", req.Filename,
		"size_bytes", len(req.Content),
		"ocr_backend", cfg.OCRBackend,
		"model_backend", cfg.ModelBackend,
	)

	err := o.queue.Enqueue(ctx, async.Job{ID: job.ID, SubmittedAt: now, TraceID: common.RequestIDFromContext(ctx)})
	if err != nil {
		reason := constants.FailCancelled
		if errors.Is(err, common.ErrQueueClosed) {
			reason = constants.FailShutdown
		}
		o.failQueued(e, reason)
		return job.ID, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

// Handle runs one admitted job; called by the queue workers.
func (o *Orchestrator) Handle(ctx context.Context, aj async.Job) {
	e := o.get(aj.ID)
	if e == nil {
		return
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	e.mu.Lock()
	if e.job.State.Terminal() {
		e.mu.Unlock()
		return
	}
	started := time.Now()
	e.job.StartedAt = &started
	e.advance(constants.JobPreprocessing)
	e.cancel = func() { cancel(common.ErrCancelled) }
	in := pipeline.Input{
		DocumentID: e.job.Document.ID,
		Filename:   e.job.Document.Filename,
		Content:    e.content,
		Config:     e.job.Config,
	}
	e.mu.Unlock()

	o.logger.Info("jobs.state", "job_id", aj.ID, "state", constants.JobPreprocessing, "wait_ms", started.Sub(aj.SubmittedAt).Milliseconds())

	out, err := o.run(common.WithJobID(ctx, aj.ID.String()), in, observer{e: e, o: o})
	if err != nil && errors.Is(context.Cause(ctx), common.ErrCancelled) {
		err = fmt.Errorf("%w: %w", common.ErrCancelled, err)
	}
	o.finish(e, out, err)
}

func (o *Orchestrator) run(ctx context.Context, in pipeline.Input, obs pipeline.Observer) (out pipeline.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", common.ErrInternal, r)
		}
	}()
	return o.proc.Process(ctx, in, obs)
}

func (o *Orchestrator) finish(e *entry, out pipeline.Output, err error) {
	now := time.Now()
	e.mu.Lock()
	if e.job.State.Terminal() {
		e.mu.Unlock()
		return
	}
	var records []entity.Record
	if err == nil && e.cancelReason == "" {
		e.advance(constants.JobCompleted)
		e.job.Document = out.Document
		e.job.CoverageGap = out.CoverageGap.Clone()
		e.job.FinishedAt = &now
		e.results = &entity.ResultSet{
			JobID:       e.job.ID,
			DocumentID:  out.Document.ID,
			Filename:    out.Document.Filename,
			Records:     out.Records,
			CoverageGap: out.CoverageGap.Clone(),
		}
		e.content = nil
		e.cancel = nil
		records = out.Records
	} else {
		if out.Document.Format != "" {
			e.job.Document = out.Document
		}
		e.failLocked(failureReason(err, e.cancelReason), now)
	}
	snap := e.snapshot()
	e.mu.Unlock()

	if err != nil {
		o.logger.Warn("jobs.failed", "job_id", snap.ID, "reason", snap.Reason, "error", err)
	}
	o.settle(e, snap, records)
}

// settle logs, archives and releases waiters of a job that just became terminal.
func (o *Orchestrator) settle(e *entry, snap entity.Job, records []entity.Record) {
	var elapsed time.Duration
	if snap.FinishedAt != nil {
		elapsed = snap.FinishedAt.Sub(snap.SubmittedAt)
	}
	o.logger.Info("jobs.state",
		"job_id", snap.ID,
		"state", snap.State,
		"reason", snap.Reason,
		"pages", snap.Progress.PagesTotal,
		"pages_failed", snap.Progress.PagesFailed,
		"records", len(records),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	if o.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := o.archive.SaveJob(ctx, snap, records); err != nil {
			o.logger.Error("jobs.archive.failed", "job_id", snap.ID, "error", err)
		}
		cancel()
	}
	close(e.done)
}

func failureReason(err error, cancelReason string) string {
	switch {
	case cancelReason != "":
		return cancelReason
	case errors.Is(err, common.ErrUnsupportedFormat):
		return constants.FailUnsupported
	case errors.Is(err, common.ErrCorruptDocument):
		return constants.FailCorrupt
	case errors.Is(err, common.ErrCancelled):
		return constants.FailCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return constants.FailTimeout
	case errors.Is(err, context.Canceled):
		return constants.FailCancelled
	}
	return constants.FailInternal
}

func (o *Orchestrator) failQueued(e *entry, reason string) bool {
	e.mu.Lock()
	if e.job.State != constants.JobQueued || !e.failLocked(reason, time.Now()) {
		e.mu.Unlock()
		return false
	}
	snap := e.snapshot()
	e.mu.Unlock()
	o.settle(e, snap, nil)
	return true
}

func (o *Orchestrator) get(id uuid.UUID) *entry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.jobs[id]
}

// Status returns the latest snapshot of a job.
func (o *Orchestrator) Status(id uuid.UUID) (entity.Job, error) {
	e := o.get(id)
	if e == nil {
		return entity.Job{}, common.ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// Results returns the result set of a completed job.
func (o *Orchestrator) Results(id uuid.UUID) (entity.ResultSet, error) {
	e := o.get(id)
	if e == nil {
		return entity.ResultSet{}, common.ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.State != constants.JobCompleted || e.results == nil {
		return entity.ResultSet{}, fmt.Errorf("%w: job %s is %s", common.ErrResultsNotReady, id, e.job.State)
	}
	rs := *e.results
	rs.Records = entity.CloneRecords(e.results.Records)
	rs.CoverageGap = e.results.CoverageGap.Clone()
	return rs, nil
}

// Cancel fails a queued job immediately; a running job stops scheduling new
// pages and fails with reason cancelled once in-flight pages return.
func (o *Orchestrator) Cancel(id uuid.UUID) error {
	e := o.get(id)
	if e == nil {
		return common.ErrJobNotFound
	}
	return o.cancel(e, constants.FailCancelled)
}

func (o *Orchestrator) cancel(e *entry, reason string) error {
	if o.failQueued(e, reason) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.State.Terminal() {
		return common.ErrJobTerminal
	}
	if e.cancelReason == "" {
		e.cancelReason = reason
	}
	if e.cancel != nil {
		e.cancel()
	}
	o.logger.Info("jobs.cancel.requested", "job_id", e.job.ID, "state", e.job.State, "reason", reason)
	return nil
}

// List returns snapshots of every known job in submission order.
func (o *Orchestrator) List() []entity.Job {
	o.mu.RLock()
	entries := make([]*entry, 0, len(o.order))
	for _, id := range o.order {
		entries = append(entries, o.jobs[id])
	}
	o.mu.RUnlock()

	out := make([]entity.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	return out
}

// Discard cancels the job if it is still live and forgets it.
func (o *Orchestrator) Discard(id uuid.UUID) error {
	e := o.get(id)
	if e == nil {
		return common.ErrJobNotFound
	}
	if err := o.cancel(e, constants.FailCancelled); err != nil && !errors.Is(err, common.ErrJobTerminal) {
		return err
	}

	o.mu.Lock()
	delete(o.jobs, id)
	for i, x := range o.order {
		if x == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	e.mu.Lock()
	e.results = nil
	e.mu.Unlock()
	o.logger.Info("jobs.discarded", "job_id", id)
	return nil
}

// Wait blocks until the job is terminal or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	e := o.get(id)
	if e == nil {
		return entity.Job{}, common.ErrJobNotFound
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return entity.Job{}, ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// Shutdown fails queued jobs, stops admission and waits for running jobs.
// If ctx ends first, running jobs are cancelled with reason shutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.RLock()
	entries := make([]*entry, 0, len(o.jobs))
	for _, id := range o.order {
		entries = append(entries, o.jobs[id])
	}
	o.mu.RUnlock()

	for _, e := range entries {
		o.failQueued(e, constants.FailShutdown)
	}
	err := o.queue.Shutdown(ctx)
	if err != nil {
		for _, e := range entries {
			_ = o.cancel(e, constants.FailShutdown)
		}
	}
	o.logger.Info("jobs.shutdown", "jobs", len(entries), "interrupted", err != nil)
	return err
}
