package jobs

import (
	"sync"
	"time"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// entry is the registry slot of one job. mu serializes every mutation;
// readers only ever see copies.
type entry struct {
	mu           sync.Mutex
	job          entity.Job
	content      []byte
	results      *entity.ResultSet
	cancel       func()
	cancelReason string
	done         chan struct{}
}

func newEntry(job entity.Job, content []byte) *entry {
	return &entry{job: job, content: content, done: make(chan struct{})}
}

// advance moves the job forward; out-of-order or backward moves are ignored.
func (e *entry) advance(state constants.JobState) bool {
	if !e.job.State.CanTransition(state) {
		return false
	}
	e.job.State = state
	return true
}

// failLocked marks the job failed. Caller holds mu.
func (e *entry) failLocked(reason string, now time.Time) bool {
	if !e.advance(constants.JobFailed) {
		return false
	}
	e.job.Reason = reason
	e.job.FinishedAt = &now
	e.content = nil
	e.cancel = nil
	return true
}

func (e *entry) snapshot() entity.Job {
	return cloneJob(e.job)
}

func cloneJob(j entity.Job) entity.Job {
	out := j
	out.CoverageGap = j.CoverageGap.Clone()
	if j.Config.RegionOfInterest != nil {
		roi := *j.Config.RegionOfInterest
		out.Config.RegionOfInterest = &roi
	}
	if j.Config.ConfidenceThreshold != nil {
		t := *j.Config.ConfidenceThreshold
		out.Config.ConfidenceThreshold = &t
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// observer feeds pipeline progress into the entry. Page callbacks arrive
// from concurrent goroutines.
type observer struct {
	e *entry
	o *Orchestrator
}

func (ob observer) Stage(state constants.JobState) {
	ob.e.mu.Lock()
	moved := ob.e.advance(state)
	id := ob.e.job.ID
	ob.e.mu.Unlock()
	if moved {
		ob.o.logger.Info("jobs.state", "job_id", id, "state", state)
	}
}

func (ob observer) PagesTotal(n int) {
	ob.e.mu.Lock()
	defer ob.e.mu.Unlock()
	ob.e.job.Progress.PagesTotal = n
}

func (ob observer) PageDone(_ int, failed bool, candidates int) {
	ob.e.mu.Lock()
	defer ob.e.mu.Unlock()
	ob.e.job.Progress.PagesProcessed++
	if failed {
		ob.e.job.Progress.PagesFailed++
	}
	ob.e.job.Progress.EntitiesTotal += candidates
}

func (ob observer) Validated(records int) {
	ob.e.mu.Lock()
	defer ob.e.mu.Unlock()
	ob.e.job.Progress.EntitiesValidated = records
}
