package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/coords"
	"github.com/joseph-ayodele/geoextract/internal/core"
	"github.com/joseph-ayodele/geoextract/internal/extract"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
	"github.com/joseph-ayodele/geoextract/internal/validate"
)

// llm runs model extraction on a text file several times, which makes
// variance between runs visible.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: llm <text-file> [times]")
		os.Exit(2)
	}
	text, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("read text", "path", os.Args[1], "error", err)
		os.Exit(2)
	}
	times := 3
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	backend := cfg.Defaults.ModelBackend
	if backend == "" || backend == "none" {
		logger.Error("MODEL_BACKEND must be openai, ollama or anthropic")
		os.Exit(2)
	}
	client, err := core.ModelFactory(cfg.LLM, logger)(backend)
	if err != nil {
		logger.Error("model backend", "backend", backend, "error", err)
		os.Exit(2)
	}

	model := extract.NewRetrying(extract.NewModel(client, cfg.LLM.Timeout, logger), cfg.LLM.RetryPolicy(), logger)
	pattern := extract.NewPattern(cfg.Pipeline.PenaltyWeight, logger)
	stage := extract.NewStage(pattern, model, cfg.Defaults.MergePolicy, logger)
	validator := validate.New(cfg.Defaults.ConfidenceThreshold, logger)
	normalizer := coords.NewNormalizer(jobs.DefaultsFrom(cfg.Defaults).RegionOfInterest, logger)

	docID := uuid.New()
	in := extract.PageInput{DocumentID: docID, Text: string(text), Language: cfg.Defaults.Language, OCRConfidence: 1}
	for i := 1; i <= times; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		start := time.Now()
		logger.Info("pipeline.run.start", "iter", i, "backend", backend)

		res, err := stage.Run(ctx, in)
		cancel()
		if err != nil {
			logger.Error("pipeline.run.error", "iter", i, "err", err)
			continue
		}
		cands, _ := normalizer.NormalizeAll(res.Candidates)
		counts := validate.Count(validator.Validate(docID, cands))
		logger.Info("pipeline.run.ok",
			"iter", i,
			"candidates", len(res.Candidates),
			"gap", res.Gap,
			"accepted", counts[constants.StatusAccepted],
			"flagged", counts[constants.StatusFlagged],
			"rejected", counts[constants.StatusRejected],
			"elapsed_ms", time.Since(start).Milliseconds(),
		)

		time.Sleep(750 * time.Millisecond)
	}

	logger.Info("done", "document_id", docID.String(), "times", times)
}
