package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Retrying re-runs an extractor on ErrExtractionTimeout. Other errors are
// returned at once.
type Retrying struct {
	next   Extractor
	policy common.RetryPolicy
	logger *slog.Logger
}

func NewRetrying(next Extractor, policy common.RetryPolicy, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

func (r *Retrying) Method() constants.ExtractionMethod { return r.next.Method() }

func (r *Retrying) Extract(ctx context.Context, in PageInput) ([]entity.Candidate, error) {
	var out []entity.Candidate
	err := r.policy.Do(ctx, func(int) error {
		var err error
		out, err = r.next.Extract(ctx, in)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		r.logger.Warn("extract.retry",
			"method", r.next.Method(),
			"document_id", in.DocumentID,
			"page", in.PageIndex,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
