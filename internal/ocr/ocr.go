package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Recognizer turns one page image into text plus word tokens.
type Recognizer interface {
	Recognize(ctx context.Context, page entity.Page) (entity.OCRResult, error)
	Name() string
}

type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	TessdataDir string

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Factory builds the recognizer for one job's backend and language.
type Factory interface {
	New(backend, language string) (Recognizer, error)
}

type factory struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewFactory returns a Factory whose recognizers are wrapped in Retrying.
// A nil runner means os/exec.
func NewFactory(cfg Config, runner Runner, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	return &factory{cfg: cfg, runner: runner, logger: logger}
}

func (f *factory) New(backend, language string) (Recognizer, error) {
	lang, ok := constants.Languages[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", language)
	}
	var r Recognizer
	switch backend {
	case constants.OCRTesseract, "":
		r = NewTesseract(f.cfg, lang, f.runner, f.logger)
	case constants.OCRGosseract:
		r = NewGosseract(lang, f.cfg.TessdataDir, f.logger)
	case constants.OCRCombined:
		r = NewCombined(f.logger,
			NewTesseract(f.cfg, lang, f.runner, f.logger),
			NewGosseract(lang, f.cfg.TessdataDir, f.logger),
		)
	default:
		return nil, fmt.Errorf("unsupported ocr backend %q", backend)
	}
	return NewRetrying(r, f.cfg.MaxAttempts, f.cfg.BaseDelay, f.cfg.MaxDelay, f.logger), nil
}
