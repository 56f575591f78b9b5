package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/export"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
	"github.com/joseph-ayodele/geoextract/internal/llm"
	"github.com/joseph-ayodele/geoextract/internal/llm/anthropic"
	"github.com/joseph-ayodele/geoextract/internal/llm/ollama"
	"github.com/joseph-ayodele/geoextract/internal/llm/openai"
	"github.com/joseph-ayodele/geoextract/internal/ocr"
	"github.com/joseph-ayodele/geoextract/internal/pipeline"
	"github.com/joseph-ayodele/geoextract/internal/preprocess"
	"github.com/joseph-ayodele/geoextract/internal/repository"
)

// Stack is the assembled extraction service shared by the binaries.
type Stack struct {
	Config    *common.Config
	Processor *pipeline.Processor
	Jobs      *jobs.Orchestrator
	Archive   *repository.Store // nil when no archive database is configured
	Exporter  *export.Service
	logger    *slog.Logger
}

// NewProcessor wires preprocess → OCR → extraction → validation from cfg.
// runner may be nil (os/exec).
func NewProcessor(cfg *common.Config, runner ocr.Runner, logger *slog.Logger) *pipeline.Processor {
	if logger == nil {
		logger = slog.Default()
	}
	pre := preprocess.New(preprocess.Config{
		Pdftoppm:   cfg.OCR.Pdftoppm,
		ScratchDir: cfg.OCR.ArtifactCacheDir,
		MaxPages:   cfg.OCR.MaxPages,
		Clean:      cfg.OCR.CleanImages,
	}, runner, logger)

	ocrFactory := ocr.NewFactory(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
		MaxAttempts: cfg.OCR.MaxAttempts,
		BaseDelay:   cfg.OCR.BaseDelay,
		MaxDelay:    cfg.OCR.MaxDelay,
	}, runner, logger)

	workers := cfg.Pipeline.PageWorkers
	if workers <= 0 {
		workers = 1
	}
	return pipeline.NewProcessor(pre, ocrFactory, ModelFactory(cfg.LLM, logger),
		pipeline.Options{
			PenaltyWeight: cfg.Pipeline.PenaltyWeight,
			ModelTimeout:  cfg.LLM.Timeout,
			ModelRetry:    cfg.LLM.RetryPolicy(),
		},
		semaphore.NewWeighted(int64(workers)),
		logger,
	)
}

// ModelFactory builds model clients on demand. Clients of one backend share
// a rate limiter, so the configured rate holds across concurrent jobs.
func ModelFactory(cfg common.LLMConfig, logger *slog.Logger) pipeline.ModelFactory {
	if logger == nil {
		logger = slog.Default()
	}
	openaiLimiter := llm.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	ollamaLimiter := llm.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	anthropicLimiter := llm.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)

	return func(backend string) (llm.EntityExtractor, error) {
		switch backend {
		case constants.ModelOpenAI:
			if cfg.APIKey == "" {
				return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", common.ErrInvalidInput)
			}
			return openai.NewClient(openai.Config{
				APIKey:          cfg.APIKey,
				BaseURL:         cfg.BaseURL,
				Model:           cfg.Model,
				Temperature:     cfg.Temperature,
				Timeout:         cfg.Timeout,
				LenientOptional: true,
			}, openaiLimiter, logger), nil
		case constants.ModelOllama:
			return ollama.NewClient(ollama.Config{
				BaseURL:         cfg.OllamaBaseURL,
				Model:           cfg.OllamaModel,
				Temperature:     cfg.Temperature,
				Timeout:         cfg.Timeout,
				LenientOptional: true,
			}, ollamaLimiter, logger), nil
		case constants.ModelAnthropic:
			if cfg.AnthropicAPIKey == "" {
				return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", common.ErrInvalidInput)
			}
			return anthropic.NewClient(anthropic.Config{
				APIKey:          cfg.AnthropicAPIKey,
				BaseURL:         cfg.AnthropicBaseURL,
				Model:           cfg.AnthropicModel,
				Temperature:     cfg.Temperature,
				Timeout:         cfg.Timeout,
				LenientOptional: true,
			}, anthropicLimiter, logger), nil
		}
		return nil, fmt.Errorf("%w: unsupported model backend %q", common.ErrInvalidInput, backend)
	}
}

// Open builds the full stack. The archive is opened (and migrated) only when
// a database is configured.
func Open(ctx context.Context, cfg *common.Config, runner ocr.Runner, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		SQLitePath:       cfg.Database.SQLitePath,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	switch {
	case errors.Is(err, repository.ErrNotConfigured):
		logger.Info("archive disabled: no database configured")
		store = nil
	case err != nil:
		return nil, err
	default:
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	proc := NewProcessor(cfg, runner, logger)

	var archive jobs.Archive
	if store != nil {
		archive = store
	}
	orch := jobs.New(proc, archive, jobs.ConfigFrom(cfg), logger)

	return &Stack{
		Config:    cfg,
		Processor: proc,
		Jobs:      orch,
		Archive:   store,
		Exporter:  export.NewService(logger),
		logger:    logger,
	}, nil
}

// Close drains the job workers (bounded by ctx) and closes the archive.
func (s *Stack) Close(ctx context.Context) error {
	err := s.Jobs.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("jobs.shutdown.incomplete", "error", err)
	}
	if s.Archive != nil {
		s.Archive.Close()
	}
	return err
}
