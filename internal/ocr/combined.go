package ocr

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Combined runs every engine on the page and keeps the result with the
// highest mean token confidence. Blank text never beats non-blank text, and
// ties go to the earlier engine. It fails only when all engines fail.
type Combined struct {
	engines []Recognizer
	logger  *slog.Logger
}

func NewCombined(logger *slog.Logger, engines ...Recognizer) *Combined {
	if logger == nil {
		logger = slog.Default()
	}
	return &Combined{engines: engines, logger: logger}
}

func (c *Combined) Name() string { return constants.OCRCombined }

func (c *Combined) Recognize(ctx context.Context, page entity.Page) (entity.OCRResult, error) {
	results := make([]entity.OCRResult, len(c.engines))
	errs := make([]error, len(c.engines))

	var g errgroup.Group
	for i, e := range c.engines {
		i, e := i, e
		g.Go(func() error {
			results[i], errs[i] = e.Recognize(ctx, page)
			return nil
		})
	}
	_ = g.Wait()

	best := -1
	for i := range c.engines {
		if errs[i] != nil {
			c.logger.Warn("ocr.combined.engine_failed",
				"engine", c.engines[i].Name(),
				"page", page.Index,
				"error", errs[i],
			)
			continue
		}
		if best < 0 || better(results[i], results[best]) {
			best = i
		}
	}
	if best < 0 {
		return entity.OCRResult{}, errors.Join(errs...)
	}

	c.logger.Debug("ocr.combined.selected",
		"engine", c.engines[best].Name(),
		"page", page.Index,
		"confidence", results[best].MeanConfidence(),
	)
	return results[best], nil
}

func better(a, b entity.OCRResult) bool {
	aBlank, bBlank := strings.TrimSpace(a.Text) == "", strings.TrimSpace(b.Text) == ""
	if aBlank != bBlank {
		return bBlank
	}
	return a.MeanConfidence() > b.MeanConfidence()
}
