package extract

import (
	"context"
	"log/slog"

	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/repository"
	"github.com/libriscan/libriscan/internal/suggest"
)

// Extractor runs a page through its backend and persists the resulting words.
type Extractor struct {
	backends  *Registry
	db        *repository.DB
	blocks    repository.TextBlockRepository
	engine    *suggest.Engine
	batchSize int
	logger    *slog.Logger
}

func NewExtractor(backends *Registry, db *repository.DB, blocks repository.TextBlockRepository, engine *suggest.Engine, batchSize int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = suggest.NewEngine(suggest.DefaultDictionary(), suggest.DefaultMaxResults)
	}
	return &Extractor{backends: backends, db: db, blocks: blocks, engine: engine, batchSize: batchSize, logger: logger}
}

// CanServe reports whether a backend is registered for the page's organization.
func (e *Extractor) CanServe(pc *entity.PageContext) bool {
	_, err := e.backends.For(pc)
	return err == nil
}

// GetWords fetches, lays out and stores the page's words in one transaction.
func (e *Extractor) GetWords(ctx context.Context, pc *entity.PageContext) ([]*entity.TextBlock, error) {
	backend, err := e.backends.For(pc)
	if err != nil {
		return nil, err
	}
	service := backend.Service()
	e.logger.Info("extracting page", "page_id", pc.Page.ID, "service", service.Display())

	raw, err := backend.Fetch(ctx, pc)
	if err != nil {
		return nil, backendErr(service, "fetch", err)
	}
	words, lines, others := Split(raw)
	placements := Layout(words, lines)
	e.logger.Debug("backend response split", "page_id", pc.Page.ID,
		"words", len(words), "lines", len(lines), "others", len(others))

	cache := make(map[string][]suggest.Suggestion)
	blocks := make([]*entity.TextBlock, 0, len(placements))
	for _, p := range placements {
		s, ok := cache[p.Word.Text]
		if !ok {
			s = e.engine.Suggest(p.Word.Text, pc.Document.UseLongSDetection)
			cache[p.Word.Text] = s
		}
		blocks = append(blocks, ToTextBlock(pc.Page.ID, p, s))
	}

	reason := "Extracted with " + service.Display()
	err = e.db.InTx(ctx, func(tx repository.Querier) error {
		return e.blocks.WithTx(tx).CreateBatch(ctx, blocks, reason, e.batchSize)
	})
	if err != nil {
		e.logger.Error("failed to store extracted words", "page_id", pc.Page.ID, "error", err)
		return nil, err
	}
	e.logger.Info("page extracted", "page_id", pc.Page.ID, "words", len(blocks), "distinct", len(cache))
	return blocks, nil
}
