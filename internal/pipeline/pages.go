package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/extract"
	"github.com/joseph-ayodele/geoextract/internal/ocr"
)

type pageText struct {
	index  int
	ok     bool
	image  string
	result entity.OCRResult
}

// lockedGap serializes coverage gap updates from page goroutines.
type lockedGap struct {
	mu  sync.Mutex
	gap *entity.CoverageGap
}

func (g *lockedGap) add(page int, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gap.Add(page, reason)
}

// recognizeAll runs OCR on every rendered page. A page slot is acquired before
// each page is scheduled; once ctx is done no further pages start, while calls
// already running are allowed to finish.
func (p *Processor) recognizeAll(ctx context.Context, docID uuid.UUID, pages []entity.Page, rec ocr.Recognizer, gap *entity.CoverageGap) ([]pageText, error) {
	out := make([]pageText, len(pages))
	lg := &lockedGap{gap: gap}
	var g errgroup.Group

	for i, pg := range pages {
		i, pg := i, pg
		out[i] = pageText{index: pg.Index, image: pg.ImagePath}
		if pg.Err != nil {
			lg.add(pg.Index, constants.GapRasterizeFailed)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if err := p.pages.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer p.pages.Release(1)
			res, err := p.recognize(context.WithoutCancel(ctx), pg, rec)
			if err != nil {
				p.logger.Warn("pipeline.page.ocr_failed", "document_id", docID, "page", pg.Index, "backend", rec.Name(), "error", err)
				lg.add(pg.Index, constants.GapRecognitionFailed)
				return nil
			}
			out[i].result = res
			out[i].ok = true
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) recognize(ctx context.Context, pg entity.Page, rec ocr.Recognizer) (entity.OCRResult, error) {
	if text := ocr.Normalize(pg.TextLayer); text != "" {
		return entity.OCRResult{PageIndex: pg.Index, Text: text, Backend: constants.OCRTextLayer}, nil
	}
	start := time.Now()
	res, err := rec.Recognize(ctx, pg)
	if err != nil {
		return entity.OCRResult{}, err
	}
	res.PageIndex = pg.Index
	p.logger.Debug("pipeline.page.ocr_ok",
		"page", pg.Index,
		"backend", res.Backend,
		"tokens", len(res.Tokens),
		"mean_confidence", res.MeanConfidence(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// extractAll runs the extraction stage per recognized page. Results are
// returned per page slot, in page order.
func (p *Processor) extractAll(ctx context.Context, docID uuid.UUID, cfg entity.JobConfig, texts []pageText, stage *extract.Stage, gap *entity.CoverageGap, obs Observer) ([][]entity.Candidate, error) {
	out := make([][]entity.Candidate, len(texts))
	lg := &lockedGap{gap: gap}
	var g errgroup.Group

	for i, pt := range texts {
		i := i
		if !pt.ok {
			obs.PageDone(pt.index, true, 0)
			continue
		}
		in := extract.PageInput{
			DocumentID:    docID,
			PageIndex:     pt.index,
			Text:          pt.result.Text,
			Tokens:        pt.result.Tokens,
			Language:      cfg.Language,
			ImagePath:     pt.image,
			OCRConfidence: pt.result.MeanConfidence(),
		}
		if i > 0 && texts[i-1].ok {
			in.PrevTail = extract.Tail(texts[i-1].result.Text, extract.ContextChars)
		}
		if i+1 < len(texts) && texts[i+1].ok {
			in.NextHead = extract.Head(texts[i+1].result.Text, extract.ContextChars)
		}

		if ctx.Err() != nil {
			break
		}
		if err := p.pages.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer p.pages.Release(1)
			res, err := stage.Run(context.WithoutCancel(ctx), in)
			if err != nil {
				p.logger.Warn("pipeline.page.extract_failed", "document_id", docID, "page", in.PageIndex, "error", err)
				lg.add(in.PageIndex, constants.GapExtractionFailed)
				obs.PageDone(in.PageIndex, true, 0)
				return nil
			}
			if res.Gap != "" {
				lg.add(in.PageIndex, res.Gap)
			}
			out[i] = res.Candidates
			obs.PageDone(in.PageIndex, false, len(res.Candidates))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
