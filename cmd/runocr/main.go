package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/ocr"
	"github.com/joseph-ayodele/geoextract/internal/preprocess"
)

// runocr rasterizes one document and prints what OCR makes of each page.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage", "cmd", "runocr <file> [tesseract|gosseract]")
		os.Exit(2)
	}
	path := os.Args[1]
	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	backend := cfg.Defaults.OCRBackend
	if len(os.Args) >= 3 {
		backend = os.Args[2]
	}

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pre := preprocess.New(preprocess.Config{
		Pdftoppm:   cfg.OCR.Pdftoppm,
		ScratchDir: cfg.OCR.ArtifactCacheDir,
		MaxPages:   cfg.OCR.MaxPages,
		Clean:      cfg.OCR.CleanImages,
	}, nil, logger)
	doc := entity.Document{ID: uuid.New(), Filename: filepath.Base(path)}
	scratch, pages, err := pre.Rasterize(ctx, doc, content, cfg.Defaults.ResolutionDPI)
	if err != nil {
		logger.Error("preprocess failed", "error", err)
		os.Exit(1)
	}
	defer scratch.Release()

	rec, err := ocr.NewFactory(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
		MaxAttempts: cfg.OCR.MaxAttempts,
		BaseDelay:   cfg.OCR.BaseDelay,
		MaxDelay:    cfg.OCR.MaxDelay,
	}, nil, logger).New(backend, cfg.Defaults.Language)
	if err != nil {
		logger.Error("ocr backend", "backend", backend, "error", err)
		os.Exit(2)
	}

	failed := 0
	for _, pg := range pages {
		if pg.Err != nil {
			logger.Warn("page not rendered", "page", pg.Index, "error", pg.Err)
			failed++
			continue
		}
		start := time.Now()
		res, err := rec.Recognize(ctx, pg)
		if err != nil {
			logger.Error("recognition failed", "page", pg.Index, "error", err)
			failed++
			continue
		}
		logger.Info("text extraction OK",
			"page", pg.Index,
			"backend", res.Backend,
			"tokens", len(res.Tokens),
			"confidence", res.MeanConfidence(),
			"bytes", len(res.Text),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		os.Stdout.WriteString(res.Text + "\n")
	}
	if failed > 0 {
		os.Exit(1)
	}
}
