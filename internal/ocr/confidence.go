package ocr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/geoextract/internal/entity"
)

// TSV columns emitted by `tesseract ... tsv`.
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvCols
)

const wordLevel = "5"

var reNoiseToken = regexp.MustCompile(`^[|_\-=~—–]+$`)

type lineKey struct{ block, par, line int }

// parseTSV builds page text from word rows and records each token's offset
// in that text. Lines break on line change, blank line on block/paragraph change.
func parseTSV(out []byte) (string, []entity.Token) {
	var b strings.Builder
	var tokens []entity.Token
	var prev lineKey
	first := true

	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < tsvCols || cols[colLevel] != wordLevel {
			continue
		}
		word := strings.TrimSpace(cols[colText])
		if word == "" || reNoiseToken.MatchString(word) {
			continue
		}
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil || conf < 0 {
			continue
		}
		key := lineKey{atoi(cols[colBlock]), atoi(cols[colPar]), atoi(cols[colLine])}
		switch {
		case first:
		case key.block != prev.block || key.par != prev.par:
			b.WriteString("\n\n")
		case key.line != prev.line:
			b.WriteString("\n")
		default:
			b.WriteString(" ")
		}
		first = false
		prev = key

		tokens = append(tokens, entity.Token{
			Text: word,
			Box: entity.Box{
				X:      atoi(cols[colLeft]),
				Y:      atoi(cols[colTop]),
				Width:  atoi(cols[colWidth]),
				Height: atoi(cols[colHeight]),
			},
			Confidence: clamp01(conf / 100.0),
			Offset:     b.Len(),
		})
		b.WriteString(word)
	}
	return b.String(), tokens
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
