package extract

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// ContextChars is how much neighboring page text travels with a page.
const ContextChars = 600

// PageInput is one page of recognized text plus neighbor context.
// PrevTail and NextHead help with tables split across page breaks;
// candidates never take their span from them.
type PageInput struct {
	DocumentID    uuid.UUID
	PageIndex     int
	Text          string
	Tokens        []entity.Token
	PrevTail      string
	NextHead      string
	Language      string
	ImagePath     string
	OCRConfidence float64
}

// Extractor turns a page into candidates.
type Extractor interface {
	Extract(ctx context.Context, in PageInput) ([]entity.Candidate, error)
	Method() constants.ExtractionMethod
}

// Tail returns the last n bytes of s, cut forward to a line start when possible.
func Tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	if i := strings.IndexByte(t, '\n'); i >= 0 && i < len(t)-1 {
		t = t[i+1:]
	}
	return t
}

// Head returns the first n bytes of s, cut back to a line end when possible.
func Head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	h := s[:n]
	if i := strings.LastIndexByte(h, '\n'); i > 0 {
		h = h[:i]
	}
	return h
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
