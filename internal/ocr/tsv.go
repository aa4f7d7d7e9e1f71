package ocr

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// tesseract TSV levels
const (
	LevelPage      = 1
	LevelBlock     = 2
	LevelParagraph = 3
	LevelLine      = 4
	LevelWord      = 5
)

// Word is one level-5 row of tesseract's TSV output. Boxes are in pixels.
type Word struct {
	Page, Block, Paragraph, Line, Number int
	Left, Top, Width, Height             int
	Confidence                           float64
	Text                                 string
}

// LineKey identifies the line a word belongs to.
func (w Word) LineKey() [4]int {
	return [4]int{w.Page, w.Block, w.Paragraph, w.Line}
}

// ParseTSV reads word rows from tesseract TSV output. Rows with conf -1 or blank text are skipped.
func ParseTSV(data []byte) ([]Word, error) {
	var words []Word
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	row := 0
	for sc.Scan() {
		row++
		ln := strings.TrimRight(sc.Text(), "\r")
		if row == 1 || ln == "" {
			continue // header
		}
		cols := strings.SplitN(ln, "\t", 12)
		if len(cols) < 11 {
			return nil, fmt.Errorf("tsv row %d: want 12 columns, got %d", row, len(cols))
		}
		ints := make([]int, 10)
		for i := range ints {
			v, err := strconv.Atoi(strings.TrimSpace(cols[i]))
			if err != nil {
				return nil, fmt.Errorf("tsv row %d column %d: %w", row, i+1, err)
			}
			ints[i] = v
		}
		if ints[0] != LevelWord {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
		if err != nil {
			return nil, fmt.Errorf("tsv row %d conf: %w", row, err)
		}
		text := ""
		if len(cols) == 12 {
			text = strings.TrimSpace(cols[11])
		}
		if conf < 0 || text == "" {
			continue
		}
		words = append(words, Word{
			Page: ints[1], Block: ints[2], Paragraph: ints[3], Line: ints[4], Number: ints[5],
			Left: ints[6], Top: ints[7], Width: ints[8], Height: ints[9],
			Confidence: conf,
			Text:       text,
		})
	}
	return words, sc.Err()
}

// MeanConfidence averages word confidence (0..100).
func MeanConfidence(words []Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}
