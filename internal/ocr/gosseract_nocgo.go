//go:build !cgo

package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Gosseract is unavailable without cgo.
type Gosseract struct{}

func NewGosseract(_, _ string, _ *slog.Logger) *Gosseract { return &Gosseract{} }

func (g *Gosseract) Name() string { return constants.OCRGosseract }

func (g *Gosseract) Recognize(_ context.Context, _ entity.Page) (entity.OCRResult, error) {
	return entity.OCRResult{}, fmt.Errorf("%w: built without cgo", common.ErrRecognitionUnavailable)
}
