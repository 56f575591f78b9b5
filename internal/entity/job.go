package entity

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/constants"
)

// Progress counters published with every job snapshot.
type Progress struct {
	PagesTotal        int `json:"pages_total"`
	PagesProcessed    int `json:"pages_processed"`
	PagesFailed       int `json:"pages_failed"`
	EntitiesTotal     int `json:"entities_total"`
	EntitiesValidated int `json:"entities_validated"`
}

// CoverageGap lists pages that produced no (or incomplete) extraction.
type CoverageGap struct {
	Pages   []int          `json:"pages"`
	Reasons map[int]string `json:"reasons"`
}

// Add records a page once; the first reason wins.
func (g *CoverageGap) Add(page int, reason string) {
	if g.Reasons == nil {
		g.Reasons = map[int]string{}
	}
	if _, ok := g.Reasons[page]; ok {
		return
	}
	g.Reasons[page] = reason
	g.Pages = append(g.Pages, page)
	slices.Sort(g.Pages)
}

func (g *CoverageGap) Empty() bool { return g == nil || len(g.Pages) == 0 }

func (g *CoverageGap) Clone() *CoverageGap {
	if g == nil {
		return nil
	}
	out := &CoverageGap{Pages: slices.Clone(g.Pages), Reasons: make(map[int]string, len(g.Reasons))}
	for k, v := range g.Reasons {
		out.Reasons[k] = v
	}
	return out
}

// Job is a read-only snapshot of one document's pipeline run.
type Job struct {
	ID          uuid.UUID          `json:"id"`
	Document    Document           `json:"document"`
	Config      JobConfig          `json:"config"`
	State       constants.JobState `json:"state"`
	Reason      string             `json:"reason,omitempty"`
	Progress    Progress           `json:"progress"`
	CoverageGap *CoverageGap       `json:"coverage_gap,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
}

// ResultSet is what a completed job yields.
type ResultSet struct {
	JobID       uuid.UUID    `json:"job_id"`
	DocumentID  uuid.UUID    `json:"document_id"`
	Filename    string       `json:"filename"`
	Records     []Record     `json:"records"`
	CoverageGap *CoverageGap `json:"coverage_gap,omitempty"`
}
