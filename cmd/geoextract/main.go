package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/export"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
)

var rootCmd = &cobra.Command{
	Use:   "geoextract",
	Short: "Extract coordinates, samples and drill holes from geological reports",
	Long: `geoextract runs scanned or digital geological reports through OCR,
pattern and model extraction, coordinate normalization and validation, and
writes the records as GeoJSON, CSV or XLSX.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Shared flags.
var (
	logLevel   string
	outDir     string
	formatList string
	jobFlags   submitFlags
)

// submitFlags override the configured job defaults.
type submitFlags struct {
	ocr       string
	model     string
	language  string
	dpi       int
	threshold float64
	roi       string
	merge     string
}

var (
	cfg    *common.Config
	logger *slog.Logger
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	pf.StringVarP(&outDir, "out", "o", "", "output directory; overrides OUTPUT_DIR")
	pf.StringVarP(&formatList, "format", "f", "geojson,csv,xlsx", "comma-separated export formats")
	pf.StringVar(&jobFlags.ocr, "ocr", "", "OCR backend (tesseract, gosseract, combined)")
	pf.StringVar(&jobFlags.model, "model", "", "model backend (none, openai, ollama, anthropic)")
	pf.StringVar(&jobFlags.language, "lang", "", "document language (en, fr, es, de, pt)")
	pf.IntVar(&jobFlags.dpi, "dpi", 0, "rasterization resolution")
	pf.Float64Var(&jobFlags.threshold, "threshold", -1, "confidence threshold in [0,1]")
	pf.StringVar(&jobFlags.roi, "roi", "", "region of interest minLat,minLon,maxLat,maxLon")
	pf.StringVar(&jobFlags.merge, "merge", "", "merge policy (prefer-confidence, prefer-pattern, prefer-model)")
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = common.LoadConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if outDir != "" {
		cfg.OutputDir = outDir
	}
	logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return nil
}

// jobConfig merges flag overrides over the configured defaults.
func jobConfig(def common.JobDefaults, f submitFlags) (entity.JobConfig, error) {
	c := jobs.DefaultsFrom(def)
	if f.ocr != "" {
		c.OCRBackend = f.ocr
	}
	if f.model != "" {
		c.ModelBackend = f.model
	}
	if f.language != "" {
		c.Language = f.language
	}
	if f.dpi != 0 {
		c.ResolutionDPI = f.dpi
	}
	if f.threshold >= 0 {
		t := f.threshold
		c.ConfidenceThreshold = &t
	}
	if f.merge != "" {
		c.MergePolicy = f.merge
	}
	if f.roi != "" {
		b, err := common.ParseBBox(f.roi)
		if err != nil {
			return c, fmt.Errorf("--roi: %w", err)
		}
		c.RegionOfInterest = &entity.BBox{MinLat: b[0], MinLon: b[1], MaxLat: b[2], MaxLon: b[3]}
	}
	return c, c.WithDefaults(entity.JobConfig{}).Validate()
}

func parseFormats(s string) ([]export.Format, error) {
	var out []export.Format
	seen := map[export.Format]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := export.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return export.Formats(), nil
	}
	return out, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
