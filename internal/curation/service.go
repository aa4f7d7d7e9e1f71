// Package curation holds the word-level editing operations on extracted text.
// Every lookup goes through the block's full ownership path.
package curation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/metrics"
	"github.com/libriscan/libriscan/internal/repository"
	"github.com/libriscan/libriscan/internal/suggest"
)

// RevertReason tags the history row written by Revert.
const RevertReason = "Revert to original"

var (
	ErrNoEligiblePredecessor = fmt.Errorf("%w: no included text before this block on its line", common.ErrPrecondition)
	ErrNotMergeable          = fmt.Errorf("%w: blocks cannot be merged", common.ErrPrecondition)
	ErrNothingToRevert       = fmt.Errorf("%w: no prior version to revert to", common.ErrPrecondition)
	ErrMergedBlock           = fmt.Errorf("%w: block is part of a merge", common.ErrPrecondition)
)

// MergeResult is the block created by a merge plus the two it replaced.
type MergeResult struct {
	New     entity.BlockView `json:"new"`
	Merged1 entity.BlockView `json:"merged_1"`
	Merged2 entity.BlockView `json:"merged_2"`
}

// Service applies curation operations to text blocks.
type Service struct {
	db      *repository.DB
	blocks  repository.TextBlockRepository
	pages   repository.PageRepository
	engine  *suggest.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService wires the service. A nil engine uses the built-in dictionary.
func NewService(db *repository.DB, blocks repository.TextBlockRepository, pages repository.PageRepository, engine *suggest.Engine, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = suggest.NewEngine(nil, 0)
	}
	return &Service{db: db, blocks: blocks, pages: pages, engine: engine, metrics: m, logger: logger}
}

// Words returns a page's blocks in reading order, optionally limited to some print controls.
func (s *Service) Words(ctx context.Context, path entity.OwnershipPath, controls ...constants.PrintControl) ([]*entity.TextBlock, error) {
	pc, err := s.pages.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.blocks.ListByPage(ctx, pc.Page.ID, controls...)
}

// Edit replaces the block's text and marks it as accepted. Suggestions are left as they were.
func (s *Service) Edit(ctx context.Context, ref entity.BlockRef, text string) (entity.BlockView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entity.BlockView{}, s.done(ctx, "edit", ref, common.Invalid("Text cannot be empty"))
	}
	return s.update(ctx, "edit", ref, "Text edited", func(b *entity.TextBlock) error {
		b.Text = text
		b.Confidence = constants.ConfAccepted
		return nil
	})
}

func (s *Service) SetPrintControl(ctx context.Context, ref entity.BlockRef, value string) (entity.BlockView, error) {
	pc := constants.PrintControl(strings.TrimSpace(value))
	if !pc.Valid() {
		err := common.Invalid("Invalid print_control value. Must be one of: " + strings.Join(constants.PrintControlCodes(), ", "))
		return entity.BlockView{}, s.done(ctx, "print_control", ref, err)
	}
	return s.update(ctx, "print_control", ref, "", func(b *entity.TextBlock) error {
		if b.PrintControl == constants.PrintMerge && pc != constants.PrintMerge {
			return common.Precondition("Merged text cannot be changed back", ErrMergedBlock)
		}
		b.PrintControl = pc
		return nil
	})
}

func (s *Service) SetTextType(ctx context.Context, ref entity.BlockRef, value string) (entity.BlockView, error) {
	tt := constants.TextType(strings.TrimSpace(value))
	if !tt.Valid() {
		err := common.Invalid("Invalid text_type value. Must be one of: " + strings.Join(constants.TextTypeCodes(), ", "))
		return entity.BlockView{}, s.done(ctx, "text_type", ref, err)
	}
	return s.update(ctx, "text_type", ref, "", func(b *entity.TextBlock) error {
		b.TextType = tt
		return nil
	})
}

// ToggleReview flips the review marker.
func (s *Service) ToggleReview(ctx context.Context, ref entity.BlockRef) (entity.BlockView, error) {
	return s.update(ctx, "review", ref, "", func(b *entity.TextBlock) error {
		b.Review = !b.Review
		return nil
	})
}

// Revert restores the block to its creation snapshot.
func (s *Service) Revert(ctx context.Context, ref entity.BlockRef) (entity.BlockView, error) {
	var out entity.BlockView
	err := s.db.InTx(ctx, func(tx repository.Querier) error {
		repo := s.blocks.WithTx(tx)
		blk, err := repo.Get(ctx, ref)
		if err != nil {
			return err
		}
		if blk.PrintControl == constants.PrintMerge {
			return common.Precondition("Merged text cannot be reverted", ErrMergedBlock)
		}
		original, err := repo.EarliestHistory(ctx, blk.ID)
		if err != nil {
			return err
		}
		if original == nil {
			return common.Precondition("No prior version to revert to", ErrNothingToRevert)
		}
		restored := original.Snapshot
		restored.ID = blk.ID
		restored.PageID = blk.PageID
		restored.CreatedAt = blk.CreatedAt
		if err := repo.Save(ctx, &restored, RevertReason); err != nil {
			return err
		}
		out = restored.View()
		return nil
	})
	if err := s.done(ctx, "revert", ref, err); err != nil {
		return entity.BlockView{}, err
	}
	return out, nil
}

// History lists every snapshot of the block, oldest first.
func (s *Service) History(ctx context.Context, ref entity.BlockRef) ([]*entity.HistoryRecord, error) {
	blk, err := s.blocks.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.blocks.History(ctx, blk.ID)
}

// Merge joins the block with the nearest included block before it on the same line.
func (s *Service) Merge(ctx context.Context, ref entity.BlockRef) (*MergeResult, error) {
	pc, err := s.pages.Resolve(ctx, ref.OwnershipPath)
	if err != nil {
		return nil, s.done(ctx, "merge", ref, err)
	}
	var res *MergeResult
	err = s.db.InTx(ctx, func(tx repository.Querier) error {
		repo := s.blocks.WithTx(tx)
		right, err := repo.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !right.Included() {
			return common.Precondition("Only included text can be merged", ErrNotMergeable)
		}
		left, err := repo.PrecedingIncluded(ctx, right)
		if errors.Is(err, common.ErrNotFound) {
			return common.Precondition("There is no included text before this block on its line", ErrNoEligiblePredecessor)
		}
		if err != nil {
			return err
		}
		res, err = s.merge(ctx, repo, pc, left, right)
		return err
	})
	if err := s.done(ctx, "merge", ref, err); err != nil {
		return nil, err
	}
	return res, nil
}

// MergePair joins two blocks that sit next to each other among the included text of one line.
// The argument order does not matter.
func (s *Service) MergePair(ctx context.Context, first, second entity.BlockRef) (*MergeResult, error) {
	pc, err := s.pages.Resolve(ctx, first.OwnershipPath)
	if err != nil {
		return nil, s.done(ctx, "merge", first, err)
	}
	var res *MergeResult
	err = s.db.InTx(ctx, func(tx repository.Querier) error {
		repo := s.blocks.WithTx(tx)
		a, err := repo.Get(ctx, first)
		if err != nil {
			return err
		}
		b, err := repo.Get(ctx, second)
		if err != nil {
			return err
		}
		if a.PageID != b.PageID {
			return common.Precondition("Blocks must be on the same page to be merged", ErrNotMergeable)
		}
		left, right := a, b
		if right.Before(left) {
			left, right = right, left
		}
		if left.ID == right.ID || left.Line != right.Line || !left.Included() || !right.Included() {
			return common.Precondition("Only sequential text on the same line can be merged", ErrNotMergeable)
		}
		prev, err := repo.PrecedingIncluded(ctx, right)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if prev == nil || prev.ID != left.ID {
			return common.Precondition("Only sequential text on the same line can be merged", ErrNotMergeable)
		}
		res, err = s.merge(ctx, repo, pc, left, right)
		return err
	})
	if err := s.done(ctx, "merge", first, err); err != nil {
		return nil, err
	}
	return res, nil
}

// merge marks both sources Merge before creating the joined block in the left block's slot.
func (s *Service) merge(ctx context.Context, repo repository.TextBlockRepository, pc *entity.PageContext, left, right *entity.TextBlock) (*MergeResult, error) {
	text := left.Text + right.Text
	joined := &entity.TextBlock{
		PageID:       left.PageID,
		Text:         text,
		Suggestions:  s.engine.Suggest(text, pc.Document.UseLongSDetection),
		TextType:     left.TextType,
		Line:         left.Line,
		Number:       left.Number,
		Confidence:   constants.ConfAccepted,
		PrintControl: constants.PrintInclude,
		GeoX0:        min(left.GeoX0, right.GeoX0),
		GeoY0:        min(left.GeoY0, right.GeoY0),
		GeoX1:        max(left.GeoX1, right.GeoX1),
		GeoY1:        max(left.GeoY1, right.GeoY1),
	}
	for _, src := range []*entity.TextBlock{left, right} {
		src.PrintControl = constants.PrintMerge
		if err := repo.Save(ctx, src, "Merged"); err != nil {
			return nil, err
		}
	}
	if err := repo.Create(ctx, joined, "Merged from two blocks"); err != nil {
		return nil, err
	}
	s.logger.Info("text blocks merged", "new_block_id", joined.ID, "left_id", left.ID, "right_id", right.ID, "text", joined.Text)
	return &MergeResult{New: joined.View(), Merged1: left.View(), Merged2: right.View()}, nil
}

func (s *Service) update(ctx context.Context, op string, ref entity.BlockRef, reason string, apply func(*entity.TextBlock) error) (entity.BlockView, error) {
	var out entity.BlockView
	err := s.db.InTx(ctx, func(tx repository.Querier) error {
		repo := s.blocks.WithTx(tx)
		blk, err := repo.Get(ctx, ref)
		if err != nil {
			return err
		}
		if err := apply(blk); err != nil {
			return err
		}
		if err := repo.Save(ctx, blk, reason); err != nil {
			return err
		}
		out = blk.View()
		return nil
	})
	if err := s.done(ctx, op, ref, err); err != nil {
		return entity.BlockView{}, err
	}
	return out, nil
}

// done logs and counts the outcome of one operation.
func (s *Service) done(ctx context.Context, op string, ref entity.BlockRef, err error) error {
	s.metrics.RecordCuration(op, err)
	switch {
	case err == nil:
		s.logger.Info("text block updated", "op", op, "block_id", ref.BlockID, "actor", common.ActorFromContext(ctx))
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrPrecondition), errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrConflict):
		s.logger.Warn("text block update rejected", "op", op, "block_id", ref.BlockID, "path", ref.OwnershipPath.String(), "err", err)
	default:
		s.logger.Error("text block update failed", "op", op, "block_id", ref.BlockID, "err", err)
	}
	return err
}
