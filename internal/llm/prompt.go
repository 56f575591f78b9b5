package llm

import (
	"strconv"
	"strings"
)

const (
	maxPageChars    = 6000
	maxContextChars = 600
)

// BuildSystemPrompt composes the system message: entity vocabulary and
// strict-but-practical formatting rules.
func BuildSystemPrompt(req ExtractRequest) string {
	parts := []string{
		"You extract geological facts from one page of a geological report. Return ONLY JSON that matches the provided JSON Schema.",
		"Entity types: 'coordinate' (a location as written, fields.raw is the exact notation, e.g. '35°28'18\"N 117°40'47\"W' or 'Zone 11S 456789E 3912345N'; set fields.datum if a datum such as NAD27 is named),",
		"'sample' (fields.id is the sample identifier, plus assays as {element, value, unit}; element is a chemical symbol, unit one of ppm, ppb, %, wt%, g/t, oz/t),",
		"'drillhole' (fields.hole_id, depth_from and depth_to in metres, lithology),",
		"'observation' (fields.description; category structural|lithology|alteration|mineralization|other; strike and dip in degrees when given).",
		"source_text MUST be copied verbatim from the PAGE text, never from the surrounding context.",
		"Do not convert coordinates; report them exactly as written.",
		"Set 'confidence' between 0 and 1 when you can judge it.",
		"Never output null. If a field is not present, omit it.",
	}
	if lang := strings.TrimSpace(req.Language); lang != "" && lang != "en" {
		parts = append(parts, "The report language is '"+lang+"'; keep source_text in that language and field names in English.")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the page text and its neighbor context.
func BuildUserPrompt(req ExtractRequest, imageAttached bool) string {
	var b strings.Builder
	b.WriteString("Page index: ")
	b.WriteString(strconv.Itoa(req.PageIndex))
	b.WriteString("\n")

	if tail := strings.TrimSpace(req.PrevTail); tail != "" {
		b.WriteString("\nContext from the previous page (do not extract from it):\n")
		b.WriteString(clip(tail, maxContextChars, true))
		b.WriteString("\n")
	}

	b.WriteString("\nPAGE text:\n")
	b.WriteString(clip(strings.TrimSpace(req.Text), maxPageChars, false))
	b.WriteString("\n")

	if head := strings.TrimSpace(req.NextHead); head != "" {
		b.WriteString("\nContext from the next page (do not extract from it):\n")
		b.WriteString(clip(head, maxContextChars, false))
		b.WriteString("\n")
	}
	if imageAttached {
		b.WriteString("\nNote: OCR quality is low; an image of the page is attached. Prefer what the image shows, but copy source_text from the PAGE text when it is legible there.\n")
	}
	return b.String()
}

// clip keeps at most n bytes; fromEnd keeps the tail instead of the head.
func clip(s string, n int, fromEnd bool) string {
	if len(s) <= n {
		return s
	}
	if fromEnd {
		return "…" + s[len(s)-n:]
	}
	return s[:n] + "\n…(truncated)"
}
