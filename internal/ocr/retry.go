package ocr

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Retrying retries a Recognizer while it reports ErrRecognitionUnavailable.
type Retrying struct {
	next   Recognizer
	policy common.RetryPolicy
	logger *slog.Logger
}

func NewRetrying(next Recognizer, maxAttempts int, baseDelay, maxDelay time.Duration, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{
		next:   next,
		policy: common.RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay},
		logger: logger,
	}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) Recognize(ctx context.Context, page entity.Page) (entity.OCRResult, error) {
	var res entity.OCRResult
	err := r.policy.Do(ctx, func(int) error {
		var err error
		res, err = r.next.Recognize(ctx, page)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		r.logger.Warn("ocr.retry",
			"backend", r.next.Name(),
			"page", page.Index,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
	})
	if err != nil {
		return entity.OCRResult{}, err
	}
	return res, nil
}
