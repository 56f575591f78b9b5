package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
	"github.com/joseph-ayodele/geoextract/internal/ocr"
)

type Config struct {
	Pdftoppm   string // binary name or absolute path; if empty -> "pdftoppm"
	Pdftotext  string // binary name or absolute path; if empty -> "pdftotext"
	ScratchDir string // parent of per-job scratch dirs; empty -> os.TempDir()
	MaxPages   int    // 0 = no limit
	Clean      bool   // binarize page images before OCR
}

// Preprocessor turns submitted bytes into page images.
type Preprocessor struct {
	cfg    Config
	runner ocr.Runner
	logger *slog.Logger
}

// New builds a Preprocessor. A nil runner means os/exec.
func New(cfg Config, runner ocr.Runner, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ocr.NewExecRunner(logger)
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	return &Preprocessor{cfg: cfg, runner: runner, logger: logger}
}

// Detect reports the container format from magic bytes.
func Detect(content []byte) (string, error) {
	format := constants.SniffFormat(content)
	if format == "" {
		return "", fmt.Errorf("%w: unrecognized content", common.ErrUnsupportedFormat)
	}
	return format, nil
}

// Rasterize writes content into a fresh scratch area and renders one image per page.
// The caller owns the returned Scratch and must Release it. On error no scratch is returned.
func (p *Preprocessor) Rasterize(ctx context.Context, doc entity.Document, content []byte, dpi int) (*Scratch, []entity.Page, error) {
	start := time.Now()
	format, err := Detect(content)
	if err != nil {
		return nil, nil, err
	}
	if dpi <= 0 {
		dpi = constants.DefaultDPI
	}

	scratch, err := newScratch(p.cfg.ScratchDir, doc.ID.String(), p.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create scratch: %w", err)
	}

	var pages []entity.Page
	switch format {
	case constants.PDF:
		pages, err = p.rasterizePDF(ctx, scratch, content, dpi)
	default:
		pages, err = p.prepareImage(scratch, content, dpi)
	}
	if err != nil {
		scratch.Release()
		return nil, nil, err
	}

	failed := 0
	for i, pg := range pages {
		if pg.Err != nil {
			failed++
			continue
		}
		if p.cfg.Clean {
			pages[i].ImagePath = p.clean(pg)
		}
	}
	p.logger.Info("preprocess.ok",
		"document_id", doc.ID,
		"format", format,
		"pages", len(pages),
		"pages_failed", failed,
		"dpi", dpi,
		"cleaned", p.cfg.Clean,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return scratch, pages, nil
}

func (p *Preprocessor) prepareImage(scratch *Scratch, content []byte, dpi int) ([]entity.Page, error) {
	cfg, kind, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image header: %v", common.ErrCorruptDocument, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: empty image", common.ErrCorruptDocument)
	}
	path := scratch.Path("page-0000." + kind)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	return []entity.Page{{Index: 0, ImagePath: path, DPI: dpi}}, nil
}

func (p *Preprocessor) rasterizePDF(ctx context.Context, scratch *Scratch, content []byte, dpi int) ([]entity.Page, error) {
	src := scratch.Path("document.pdf")
	if err := os.WriteFile(src, content, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(src, conf); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptDocument, err)
	}
	count, err := api.PageCountFile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: page count: %v", common.ErrCorruptDocument, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no pages", common.ErrCorruptDocument)
	}
	if p.cfg.MaxPages > 0 && count > p.cfg.MaxPages {
		p.logger.Warn("preprocess.pdf.truncated", "pages", count, "max_pages", p.cfg.MaxPages)
		count = p.cfg.MaxPages
	}

	pages := make([]entity.Page, 0, count)
	ok := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pg := entity.Page{Index: i, DPI: dpi}
		pg.ImagePath, pg.Err = p.renderPage(ctx, scratch, src, i, dpi)
		if pg.Err != nil {
			p.logger.Warn("preprocess.page.render_failed", "page", i, "error", pg.Err)
		} else {
			ok++
			pg.TextLayer = p.textLayer(ctx, src, i)
		}
		pages = append(pages, pg)
	}
	if ok == 0 {
		return nil, fmt.Errorf("%w: no page could be rendered", common.ErrCorruptDocument)
	}
	return pages, nil
}

// clean returns the cleaned image path, or the original one when cleaning fails.
func (p *Preprocessor) clean(pg entity.Page) string {
	out, err := cleanImage(pg.ImagePath)
	if err != nil {
		p.logger.Warn("preprocess.page.clean_failed", "page", pg.Index, "error", err)
		return pg.ImagePath
	}
	return out
}

// renderPage runs pdftoppm for a single page so one bad page does not sink the rest.
func (p *Preprocessor) renderPage(ctx context.Context, scratch *Scratch, src string, index, dpi int) (string, error) {
	n := strconv.Itoa(index + 1)
	prefix := scratch.Path(fmt.Sprintf("page-%04d", index))
	// pdftoppm -f N -l N -r 300 -png -singlefile <in.pdf> <scratch/page-000N>
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm,
		"-f", n, "-l", n, "-r", strconv.Itoa(dpi), "-png", "-singlefile", src, prefix)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("pdftoppm page %d: %w (%s)", index, err, bytes.TrimSpace(errb))
	}
	out := prefix + ".png"
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("pdftoppm page %d produced no image: %w", index, err)
	}
	return out, nil
}

// textLayer returns embedded text for one page, or "" when there is none.
func (p *Preprocessor) textLayer(ctx context.Context, src string, index int) string {
	n := strconv.Itoa(index + 1)
	// pdftotext -f N -l N -layout -enc UTF-8 -eol unix <path> -
	out, _, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-f", n, "-l", n, "-layout", "-enc", "UTF-8", "-eol", "unix", src, "-")
	if err != nil {
		p.logger.Debug("preprocess.page.no_text_layer", "page", index, "error", err)
		return ""
	}
	return string(out)
}
