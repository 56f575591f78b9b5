//go:build cgo

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// Gosseract recognizes pages through libtesseract bindings.
type Gosseract struct {
	lang        string
	tessdataDir string
	logger      *slog.Logger
}

func NewGosseract(lang, tessdataDir string, logger *slog.Logger) *Gosseract {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gosseract{lang: lang, tessdataDir: tessdataDir, logger: logger}
}

func (g *Gosseract) Name() string { return constants.OCRGosseract }

func (g *Gosseract) Recognize(ctx context.Context, page entity.Page) (entity.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return entity.OCRResult{}, err
	}
	start := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	if g.tessdataDir != "" {
		if err := client.SetTessdataPrefix(g.tessdataDir); err != nil {
			return entity.OCRResult{}, fmt.Errorf("%w: tessdata prefix: %v", common.ErrRecognitionUnavailable, err)
		}
	}
	if err := client.SetLanguage(g.lang); err != nil {
		return entity.OCRResult{}, fmt.Errorf("%w: set language: %v", common.ErrRecognitionUnavailable, err)
	}
	if err := client.SetImage(page.ImagePath); err != nil {
		return entity.OCRResult{}, fmt.Errorf("%w: set image page %d: %v", common.ErrRecognitionUnavailable, page.Index, err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return entity.OCRResult{}, fmt.Errorf("%w: page %d: %v", common.ErrRecognitionUnavailable, page.Index, err)
	}

	var b strings.Builder
	var tokens []entity.Token
	var prevBottom, prevLeft int
	for i, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" || reNoiseToken.MatchString(word) {
			continue
		}
		if len(tokens) > 0 {
			// a word starting below the previous word, or back at the left, opens a new line
			if box.Box.Min.Y >= prevBottom || box.Box.Min.X < prevLeft {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		tokens = append(tokens, entity.Token{
			Text: word,
			Box: entity.Box{
				X:      box.Box.Min.X,
				Y:      box.Box.Min.Y,
				Width:  box.Box.Dx(),
				Height: box.Box.Dy(),
			},
			Confidence: clamp01(box.Confidence / 100.0),
			Offset:     b.Len(),
		})
		b.WriteString(word)
		prevBottom, prevLeft = boxes[i].Box.Max.Y, boxes[i].Box.Min.X
	}

	g.logger.Debug("ocr.gosseract.ok",
		"page", page.Index,
		"tokens", len(tokens),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return entity.OCRResult{
		PageIndex: page.Index,
		Text:      b.String(),
		Tokens:    tokens,
		Backend:   g.Name(),
	}, nil
}
