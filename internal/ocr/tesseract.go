package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Tesseract runs the tesseract CLI in TSV mode.
type Tesseract struct {
	cfg    Config
	lang   string
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, lang string, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{cfg: cfg, lang: lang, runner: runner, logger: logger}
}

func (t *Tesseract) Name() string { return constants.OCRTesseract }

func (t *Tesseract) args(path string) []string {
	args := []string{path, "stdout", "-l", t.lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, "tsv")
}

func (t *Tesseract) Recognize(ctx context.Context, page entity.Page) (entity.OCRResult, error) {
	start := time.Now()
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.args(page.ImagePath)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.OCRResult{}, ctxErr
		}
		return entity.OCRResult{}, fmt.Errorf("%w: tesseract page %d: %v (%s)",
			common.ErrRecognitionUnavailable, page.Index, err, truncate(string(errb), 512))
	}

	text, tokens := parseTSV(out)
	res := entity.OCRResult{
		PageIndex: page.Index,
		Text:      text,
		Tokens:    tokens,
		Backend:   t.Name(),
	}
	t.logger.Debug("ocr.tesseract.ok",
		"page", page.Index,
		"tokens", len(tokens),
		"mean_conf", res.MeanConfidence(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
