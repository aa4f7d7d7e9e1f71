package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/repository"
)

// ErrNothingToExport is returned for documents without any included text.
var ErrNothingToExport = fmt.Errorf("%w: document has no included text", common.ErrPrecondition)

// DocumentRef addresses a document through its owners.
type DocumentRef struct {
	Organization string
	Collection   string
	Document     string
}

// Service renders a document's included words for download.
type Service struct {
	orgs   repository.OrganizationRepository
	pages  repository.PageRepository
	blocks repository.TextBlockRepository
	logger *slog.Logger
}

func NewService(orgs repository.OrganizationRepository, pages repository.PageRepository, blocks repository.TextBlockRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orgs: orgs, pages: pages, blocks: blocks, logger: logger}
}

// CanExport reports whether any page of the document has an included word.
func (s *Service) CanExport(ctx context.Context, ref DocumentRef) (bool, error) {
	doc, err := s.orgs.GetDocument(ctx, ref.Organization, ref.Collection, ref.Document)
	if err != nil {
		return false, err
	}
	n, err := s.blocks.CountIncludedByDocument(ctx, doc.ID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type pageWords struct {
	page  *entity.Page
	words []*entity.TextBlock
}

func (s *Service) load(ctx context.Context, ref DocumentRef) (*entity.Document, []pageWords, error) {
	doc, err := s.orgs.GetDocument(ctx, ref.Organization, ref.Collection, ref.Document)
	if err != nil {
		return nil, nil, err
	}
	pages, err := s.pages.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, nil, err
	}
	out := make([]pageWords, 0, len(pages))
	total := 0
	for _, p := range pages {
		words, err := s.blocks.ListByPage(ctx, p.ID, constants.PrintInclude)
		if err != nil {
			return nil, nil, err
		}
		total += len(words)
		out = append(out, pageWords{page: p, words: words})
	}
	if total == 0 {
		return nil, nil, common.Precondition("There is no text to export", ErrNothingToExport)
	}
	return doc, out, nil
}

// Text renders included words with one output line per text line. Each page ends with a newline.
func (s *Service) Text(ctx context.Context, ref DocumentRef) ([]byte, error) {
	start := time.Now()
	doc, pages, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, pw := range pages {
		buf.WriteString(PageText(pw.words))
	}
	s.logger.Info("text export ok", "document", doc.Identifier, "pages", len(pages),
		"bytes", buf.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// PageText joins words in reading order, starting a new line whenever the line index grows.
func PageText(words []*entity.TextBlock) string {
	var (
		sb      strings.Builder
		current []string
		line    = -1
	)
	for _, w := range words {
		if line >= 0 && w.Line > line {
			sb.WriteString(strings.Join(current, " "))
			sb.WriteByte('\n')
			current = current[:0]
		}
		line = w.Line
		current = append(current, w.Text)
	}
	sb.WriteString(strings.Join(current, " "))
	sb.WriteByte('\n')
	return sb.String()
}

// XLSX returns a workbook with one row per included word.
func (s *Service) XLSX(ctx context.Context, ref DocumentRef) ([]byte, error) {
	start := time.Now()
	doc, pages, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Words"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Page",
		"Line",
		"Number",
		"Text",
		"Confidence",
		"Confidence Level",
		"Text Type",
		"Review",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, pw := range pages {
		for _, w := range pw.words {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, pw.page.Number)
			write(2, w.Line+1)
			write(3, w.Number+1)
			write(4, w.Text)
			write(5, w.Confidence)
			write(6, w.ConfidenceLevel())
			write(7, w.TextType.Display())
			write(8, w.Review)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "C", 8)
	_ = f.SetColWidth(sheet, "D", "D", 32)
	_ = f.SetColWidth(sheet, "E", "F", 16)
	_ = f.SetColWidth(sheet, "G", "H", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("xlsx export ok", "document", doc.Identifier, "rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}
