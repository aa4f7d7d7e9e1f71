package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/ocr"
)

// Recognizer runs OCR over a local image.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (*ocr.Page, error)
}

// Tesseract adapts local tesseract output to the block shape. Word boxes are
// normalized by the image size and each tesseract line becomes a LINE parent.
type Tesseract struct {
	ocr    Recognizer
	images Images
	logger *slog.Logger
}

func NewTesseract(r Recognizer, images Images, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tesseract{ocr: r, images: images, logger: logger}
}

func (t *Tesseract) Service() constants.CloudService { return constants.ServiceTesseract }

func (t *Tesseract) Fetch(ctx context.Context, pc *entity.PageContext) ([]Block, error) {
	path, err := t.images.Path(pc.Page)
	if err != nil {
		return nil, backendErr(t.Service(), "resolve image", err)
	}
	page, err := t.ocr.Recognize(ctx, path)
	if err != nil {
		return nil, backendErr(t.Service(), "recognize", err)
	}
	blocks := BlocksFromOCR(page)
	t.logger.Info("tesseract page recognized", "page_id", pc.Page.ID, "words", len(page.Words))
	return blocks, nil
}

// BlocksFromOCR converts tesseract words into WORD blocks plus one LINE block per tesseract line.
func BlocksFromOCR(page *ocr.Page) []Block {
	w, h := float64(page.Width), float64(page.Height)
	var (
		lines  []Block
		words  []Block
		lineAt = make(map[[4]int]int)
	)
	for _, word := range page.Words {
		k := word.LineKey()
		id := fmt.Sprintf("w-%d-%d-%d-%d-%d", k[0], k[1], k[2], k[3], word.Number)
		x0, y0 := float64(word.Left)/w, float64(word.Top)/h
		x1, y1 := float64(word.Left+word.Width)/w, float64(word.Top+word.Height)/h
		words = append(words, Block{
			ID:         id,
			Type:       BlockWord,
			Text:       word.Text,
			TextType:   TypePrinted,
			Confidence: word.Confidence,
			Geometry:   Rect(x0, y0, x1, y1),
		})

		i, ok := lineAt[k]
		if !ok {
			i = len(lines)
			lineAt[k] = i
			lines = append(lines, Block{
				ID:            fmt.Sprintf("l-%d-%d-%d-%d", k[0], k[1], k[2], k[3]),
				Type:          BlockLine,
				Geometry:      Rect(x0, y0, x1, y1),
				Relationships: []Relationship{{Type: relationChild}},
			})
		}
		ln := &lines[i]
		lo, hi := ln.Bounds()
		ln.Geometry = Rect(min(lo.X, x0), min(lo.Y, y0), max(hi.X, x1), max(hi.Y, y1))
		ln.Relationships[0].IDs = append(ln.Relationships[0].IDs, id)
	}

	byID := make(map[string]Block, len(words))
	for _, wb := range words {
		byID[wb.ID] = wb
	}
	for i := range lines {
		ids := lines[i].Relationships[0].IDs
		texts := make([]string, 0, len(ids))
		var conf float64
		for _, id := range ids {
			texts = append(texts, byID[id].Text)
			conf += byID[id].Confidence
		}
		lines[i].Text = strings.Join(texts, " ")
		lines[i].Confidence = conf / float64(len(ids))
	}
	return append(lines, words...)
}
