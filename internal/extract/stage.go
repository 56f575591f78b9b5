package extract

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// PageResult is the merged extraction of one page. Gap is set when the model
// side did not finish; pattern candidates are kept either way.
type PageResult struct {
	Candidates []entity.Candidate
	Gap        string
}

// Stage runs the pattern extractor and, when configured, the model extractor
// concurrently on a page and merges their output.
type Stage struct {
	pattern Extractor
	model   Extractor
	policy  string
	logger  *slog.Logger
}

// NewStage builds a stage; model may be nil for pattern-only extraction.
func NewStage(pattern, model Extractor, policy string, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = constants.MergePreferConfidence
	}
	return &Stage{pattern: pattern, model: model, policy: policy, logger: logger}
}

func (s *Stage) Run(ctx context.Context, in PageInput) (PageResult, error) {
	var (
		g         errgroup.Group
		fromRegex []entity.Candidate
		fromModel []entity.Candidate
		modelErr  error
	)

	g.Go(func() error {
		var err error
		fromRegex, err = s.pattern.Extract(ctx, in)
		return err
	})
	if s.model != nil {
		g.Go(func() error {
			fromModel, modelErr = s.model.Extract(ctx, in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PageResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}

	res := PageResult{}
	if modelErr != nil {
		res.Gap = constants.GapExtractionFailed
		if errors.Is(modelErr, common.ErrExtractionTimeout) {
			res.Gap = constants.GapExtractionTimeout
		}
		s.logger.Warn("extract.model.failed",
			"document_id", in.DocumentID,
			"page", in.PageIndex,
			"gap", res.Gap,
			"error", modelErr,
		)
		fromModel = nil
	}
	res.Candidates = Merge(s.policy, fromRegex, fromModel)
	return res, nil
}
