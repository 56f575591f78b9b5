package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/coords"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/extract"
	"github.com/joseph-ayodele/geoextract/internal/llm"
	"github.com/joseph-ayodele/geoextract/internal/ocr"
	"github.com/joseph-ayodele/geoextract/internal/preprocess"
	"github.com/joseph-ayodele/geoextract/internal/validate"
)

// Rasterizer is the preprocessing stage.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc entity.Document, content []byte, dpi int) (*preprocess.Scratch, []entity.Page, error)
}

// ModelFactory returns the model client for a backend name. It is only
// called for backends other than constants.ModelNone.
type ModelFactory func(backend string) (llm.EntityExtractor, error)

// Observer receives progress as a document moves through the stages.
type Observer interface {
	Stage(state constants.JobState)
	PagesTotal(n int)
	PageDone(index int, failed bool, candidates int)
	Validated(records int)
}

// Input is one document to process.
type Input struct {
	DocumentID uuid.UUID
	Filename   string
	Content    []byte
	Config     entity.JobConfig
}

// Output is a processed document.
type Output struct {
	Document    entity.Document
	Records     []entity.Record
	CoverageGap *entity.CoverageGap
}

type Options struct {
	PenaltyWeight float64
	ModelTimeout  time.Duration
	ModelRetry    common.RetryPolicy
}

// Processor runs preprocess → OCR → extraction → normalization → validation
// for one document. Page work of every document shares one semaphore.
type Processor struct {
	pre    Rasterizer
	ocr    ocr.Factory
	models ModelFactory
	opts   Options
	pages  *semaphore.Weighted
	logger *slog.Logger
}

func NewProcessor(pre Rasterizer, ocrFactory ocr.Factory, models ModelFactory, opts Options, pages *semaphore.Weighted, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if pages == nil {
		pages = semaphore.NewWeighted(1)
	}
	return &Processor{pre: pre, ocr: ocrFactory, models: models, opts: opts, pages: pages, logger: logger}
}

// Process runs the whole pipeline. Document-level failures are returned as
// errors; page-level failures end up in the coverage gap. A cancelled ctx
// stops scheduling new pages and returns ctx.Err().
func (p *Processor) Process(ctx context.Context, in Input, obs Observer) (Output, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	start := time.Now()
	cfg := in.Config
	doc := entity.Document{ID: in.DocumentID, Filename: in.Filename, SizeBytes: int64(len(in.Content))}

	obs.Stage(constants.JobPreprocessing)
	format, err := preprocess.Detect(in.Content)
	if err != nil {
		return Output{Document: doc}, err
	}
	doc.Format = format

	scratch, pages, err := p.pre.Rasterize(ctx, doc, in.Content, cfg.ResolutionDPI)
	if err != nil {
		return Output{Document: doc}, err
	}
	defer scratch.Release()
	doc.PageCount = len(pages)
	obs.PagesTotal(len(pages))

	obs.Stage(constants.JobExtracting)
	recognizer, err := p.ocr.New(cfg.OCRBackend, cfg.Language)
	if err != nil {
		return Output{Document: doc}, fmt.Errorf("ocr backend: %w", err)
	}
	stage, err := p.extractionStage(cfg)
	if err != nil {
		return Output{Document: doc}, err
	}

	gap := &entity.CoverageGap{}
	texts, err := p.recognizeAll(ctx, doc.ID, pages, recognizer, gap)
	if err != nil {
		return Output{Document: doc}, err
	}
	perPage, err := p.extractAll(ctx, doc.ID, cfg, texts, stage, gap, obs)
	if err != nil {
		return Output{Document: doc}, err
	}

	// merge strictly by page index so output never depends on completion order
	var cands []entity.Candidate
	for _, c := range perPage {
		cands = append(cands, c...)
	}
	cands, unparseable := coords.NewNormalizer(cfg.RegionOfInterest, p.logger).NormalizeAll(cands)
	cands, linked := coords.LinkSamples(cands, constants.SampleLinkWindow)

	if err := ctx.Err(); err != nil {
		return Output{Document: doc}, err
	}
	obs.Stage(constants.JobValidating)
	records := validate.New(cfg.Threshold(), p.logger).Validate(doc.ID, cands)
	obs.Validated(len(records))

	out := Output{Document: doc, Records: records}
	if !gap.Empty() {
		out.CoverageGap = gap
	}
	p.logger.Info("pipeline.document.ok",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"pages", len(pages),
		"gap_pages", len(gap.Pages),
		"records", len(records),
		"unparseable_coordinates", unparseable,
		"linked_samples", linked,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (p *Processor) extractionStage(cfg entity.JobConfig) (*extract.Stage, error) {
	pattern := extract.NewPattern(p.opts.PenaltyWeight, p.logger)
	if cfg.ModelBackend == "" || cfg.ModelBackend == constants.ModelNone {
		return extract.NewStage(pattern, nil, cfg.MergePolicy, p.logger), nil
	}
	if p.models == nil {
		return nil, fmt.Errorf("model backend %q not configured", cfg.ModelBackend)
	}
	client, err := p.models(cfg.ModelBackend)
	if err != nil {
		return nil, fmt.Errorf("model backend: %w", err)
	}
	model := extract.NewRetrying(extract.NewModel(client, p.opts.ModelTimeout, p.logger), p.opts.ModelRetry, p.logger)
	return extract.NewStage(pattern, model, cfg.MergePolicy, p.logger), nil
}

type nopObserver struct{}

func (nopObserver) Stage(constants.JobState) {}
func (nopObserver) PagesTotal(int)           {}
func (nopObserver) PageDone(int, bool, int)  {}
func (nopObserver) Validated(int)            {}
