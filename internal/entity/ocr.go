package entity

// Box is a pixel-space bounding box.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Token is one recognized word. Offset is its byte offset in OCRResult.Text.
type Token struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Offset     int     `json:"offset"`
}

// End returns the byte offset just past the token.
func (t Token) End() int { return t.Offset + len(t.Text) }

// OCRResult is the recognition output for one page.
type OCRResult struct {
	PageIndex int     `json:"page_index"`
	Text      string  `json:"text"`
	Tokens    []Token `json:"tokens"`
	Backend   string  `json:"backend"`
}

// MeanConfidence averages token confidences; 1 when there are no tokens.
func (r OCRResult) MeanConfidence() float64 {
	return MeanTokenConfidence(r.Tokens)
}

// SpanConfidence averages confidences of tokens overlapping [start, end).
// ok is false when no token overlaps.
func (r OCRResult) SpanConfidence(start, end int) (float64, bool) {
	var sum float64
	var n int
	for _, t := range r.Tokens {
		if t.Offset < end && t.End() > start {
			sum += t.Confidence
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func MeanTokenConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 1
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}
