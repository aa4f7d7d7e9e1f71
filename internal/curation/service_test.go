package curation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/curation"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/metrics"
	"github.com/libriscan/libriscan/internal/repository"
	"github.com/libriscan/libriscan/internal/repository/repotest"
)

type page struct {
	db     *repository.DB
	fx     *repotest.Fixture
	svc    *curation.Service
	blocks repository.TextBlockRepository
	byText map[string]*entity.TextBlock
}

func word(pg entity.Page, text string, line, number int, x0, y0, x1, y1 float64) *entity.TextBlock {
	return &entity.TextBlock{
		PageID: pg.ID, Text: text, TextType: constants.TextPrinted,
		Line: line, Number: number, Confidence: 72.5,
		GeoX0: x0, GeoY0: y0, GeoX1: x1, GeoY1: y1,
	}
}

// newPage stores "Hif tory of" on line 0 and "TOM" on line 1.
func newPage(t *testing.T) *page {
	t.Helper()
	db := repotest.Open(t)
	log := repotest.Logger()
	fx := repotest.Seed(t, db, "acme", constants.ServiceTest)
	blocks := repository.NewTextBlockRepository(db, log)
	p := &page{
		db:     db,
		fx:     fx,
		blocks: blocks,
		svc:    curation.NewService(db, blocks, repository.NewPageRepository(db, log), nil, metrics.New(nil), log),
		byText: map[string]*entity.TextBlock{},
	}
	words := []*entity.TextBlock{
		word(*fx.Page, "Hif", 0, 0, 0.10, 0.20, 0.30, 0.25),
		word(*fx.Page, "tory", 0, 1, 0.32, 0.19, 0.50, 0.26),
		word(*fx.Page, "of", 0, 2, 0.52, 0.20, 0.60, 0.25),
		word(*fx.Page, "TOM", 1, 0, 0.10, 0.30, 0.25, 0.35),
	}
	require.NoError(t, blocks.CreateBatch(context.Background(), words, "Extracted with Test", 0))
	for _, w := range words {
		p.byText[w.Text] = w
	}
	return p
}

func (p *page) ref(text string) entity.BlockRef {
	return entity.BlockRef{OwnershipPath: p.fx.Path(), BlockID: p.byText[text].ID}
}

func (p *page) included(t *testing.T) []string {
	t.Helper()
	words, err := p.svc.Words(context.Background(), p.fx.Path(), constants.PrintInclude)
	require.NoError(t, err)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func (p *page) count(t *testing.T) int {
	t.Helper()
	n, err := p.blocks.CountByPage(context.Background(), p.fx.Page.ID)
	require.NoError(t, err)
	return n
}

func TestEdit(t *testing.T) {
	p := newPage(t)
	ctx := common.WithActor(context.Background(), "alice")

	view, err := p.svc.Edit(ctx, p.ref("Hif"), "  His ")
	require.NoError(t, err)
	assert.Equal(t, "His", view.Text)
	assert.Equal(t, constants.ConfAccepted, view.Confidence)
	assert.Equal(t, "accepted", view.ConfidenceLevel)
	assert.NotNil(t, view.Suggestions)

	hist, err := p.svc.History(ctx, p.ref("Hif"))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, entity.HistoryCreated, hist[0].Type)
	assert.Equal(t, "Hif", hist[0].Snapshot.Text)
	assert.Equal(t, entity.HistoryChanged, hist[1].Type)
	assert.Equal(t, "alice", hist[1].Actor)
	assert.Equal(t, "His", hist[1].Snapshot.Text)

	_, err = p.svc.Edit(ctx, p.ref("Hif"), "   ")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, "Text cannot be empty", common.PublicMessage(err))
}

func TestOwnershipPathIsEnforced(t *testing.T) {
	p := newPage(t)
	other := repotest.Seed(t, p.db, "rival", constants.ServiceTest)
	ctx := context.Background()

	foreign := entity.BlockRef{OwnershipPath: other.Path(), BlockID: p.byText["Hif"].ID}
	_, err := p.svc.Edit(ctx, foreign, "mine")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = p.svc.History(ctx, foreign)
	assert.ErrorIs(t, err, common.ErrNotFound)

	wrongPage := p.ref("Hif")
	wrongPage.Page = 7
	_, err = p.svc.ToggleReview(ctx, wrongPage)
	assert.ErrorIs(t, err, common.ErrNotFound)

	got, err := p.blocks.GetByID(ctx, p.byText["Hif"].ID)
	require.NoError(t, err)
	assert.Equal(t, "Hif", got.Text)
}

func TestSetPrintControlAndTextType(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	view, err := p.svc.SetPrintControl(ctx, p.ref("of"), "O")
	require.NoError(t, err)
	assert.Equal(t, "O", view.PrintControl)
	assert.Equal(t, "Omit", view.PrintControlDisplay)
	assert.Equal(t, []string{"Hif", "tory", "TOM"}, p.included(t))

	_, err = p.svc.SetPrintControl(ctx, p.ref("of"), "X")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, "Invalid print_control value. Must be one of: I, M, O", common.PublicMessage(err))

	view, err = p.svc.SetTextType(ctx, p.ref("TOM"), "H")
	require.NoError(t, err)
	assert.Equal(t, "Handwriting", view.TextTypeDisplay)
	assert.Equal(t, 72.5, view.Confidence, "text type changes leave confidence alone")

	_, err = p.svc.SetTextType(ctx, p.ref("TOM"), "printed")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestToggleReview(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	view, err := p.svc.ToggleReview(ctx, p.ref("tory"))
	require.NoError(t, err)
	assert.True(t, view.Review)
	assert.Equal(t, "I", view.PrintControl)

	view, err = p.svc.ToggleReview(ctx, p.ref("tory"))
	require.NoError(t, err)
	assert.False(t, view.Review)
}

func TestRevert(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	for _, text := range []string{"Hi", "His", "History"} {
		_, err := p.svc.Edit(ctx, p.ref("Hif"), text)
		require.NoError(t, err)
	}
	_, err := p.svc.SetTextType(ctx, p.ref("Hif"), "H")
	require.NoError(t, err)

	view, err := p.svc.Revert(ctx, p.ref("Hif"))
	require.NoError(t, err)
	assert.Equal(t, "Hif", view.Text)
	assert.Equal(t, 72.5, view.Confidence)
	assert.Equal(t, "P", view.TextType)

	hist, err := p.svc.History(ctx, p.ref("Hif"))
	require.NoError(t, err)
	require.Len(t, hist, 6)
	last := hist[len(hist)-1]
	assert.Equal(t, curation.RevertReason, last.ChangeReason)
	assert.Equal(t, "Revert to original", last.ChangeReason)
}

func TestRevert_WithoutHistory(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()
	_, err := p.db.ExecContext(ctx, "DELETE FROM text_block_history WHERE block_id = ?", p.byText["TOM"].ID)
	require.NoError(t, err)

	_, err = p.svc.Revert(ctx, p.ref("TOM"))
	assert.ErrorIs(t, err, curation.ErrNothingToRevert)
	assert.ErrorIs(t, err, common.ErrPrecondition)
	assert.Equal(t, "No prior version to revert to", common.PublicMessage(err))
}

func TestMerge(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	res, err := p.svc.Merge(ctx, p.ref("tory"))
	require.NoError(t, err)
	assert.Equal(t, "Hiftory", res.New.Text)
	assert.Equal(t, 0, res.New.Line)
	assert.Equal(t, 0, res.New.Number)
	assert.Equal(t, "I", res.New.PrintControl)
	assert.Equal(t, constants.ConfAccepted, res.New.Confidence)
	assert.Equal(t, "M", res.Merged1.PrintControl)
	assert.Equal(t, "M", res.Merged2.PrintControl)
	assert.Equal(t, p.byText["Hif"].ID, res.Merged1.ID)

	assert.Equal(t, []string{"Hiftory", "of", "TOM"}, p.included(t))
	assert.Equal(t, 5, p.count(t))

	joined, err := p.blocks.GetByID(ctx, res.New.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, joined.GeoX0, 1e-12)
	assert.InDelta(t, 0.19, joined.GeoY0, 1e-12)
	assert.InDelta(t, 0.50, joined.GeoX1, 1e-12)
	assert.InDelta(t, 0.26, joined.GeoY1, 1e-12)

	// The merged block can itself be merged with the next word.
	res, err = p.svc.Merge(ctx, p.ref("of"))
	require.NoError(t, err)
	assert.Equal(t, "Hiftoryof", res.New.Text)
	assert.Equal(t, []string{"Hiftoryof", "TOM"}, p.included(t))
}

func TestMerge_SuggestsForJoinedText(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	res, err := p.svc.Merge(ctx, p.ref("tory"))
	require.NoError(t, err)
	require.NotEmpty(t, res.New.Suggestions)
	assert.Equal(t, "History", res.New.Suggestions[0].Word)

	stored, err := p.blocks.GetByID(ctx, res.New.ID)
	require.NoError(t, err)
	assert.Equal(t, res.New.Suggestions, stored.Suggestions)
}

func TestMergedSourcesStayMerged(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	_, err := p.svc.Merge(ctx, p.ref("tory"))
	require.NoError(t, err)

	for _, text := range []string{"Hif", "tory"} {
		_, err = p.svc.Revert(ctx, p.ref(text))
		assert.ErrorIs(t, err, curation.ErrMergedBlock, text)
		assert.ErrorIs(t, err, common.ErrPrecondition, text)

		for _, value := range []string{"I", "O"} {
			_, err = p.svc.SetPrintControl(ctx, p.ref(text), value)
			assert.ErrorIs(t, err, curation.ErrMergedBlock, text+" -> "+value)
		}
	}
	_, err = p.svc.SetPrintControl(ctx, p.ref("tory"), "I")
	assert.Equal(t, "Merged text cannot be changed back", common.PublicMessage(err))

	assert.Equal(t, []string{"Hiftory", "of", "TOM"}, p.included(t))
	assert.Equal(t, 5, p.count(t))

	got, err := p.blocks.GetByID(ctx, p.byText["tory"].ID)
	require.NoError(t, err)
	assert.Equal(t, constants.PrintMerge, got.PrintControl)
}

func TestMerge_NoPredecessor(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	for _, text := range []string{"Hif", "TOM"} {
		_, err := p.svc.Merge(ctx, p.ref(text))
		assert.ErrorIs(t, err, curation.ErrNoEligiblePredecessor)
		assert.ErrorIs(t, err, common.ErrPrecondition)
	}
	assert.Equal(t, 4, p.count(t))
	assert.Equal(t, []string{"Hif", "tory", "of", "TOM"}, p.included(t))
}

func TestMerge_SkipsOmittedBlocks(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()
	_, err := p.svc.SetPrintControl(ctx, p.ref("tory"), "O")
	require.NoError(t, err)

	res, err := p.svc.Merge(ctx, p.ref("of"))
	require.NoError(t, err)
	assert.Equal(t, "Hifof", res.New.Text)

	_, err = p.svc.Merge(ctx, p.ref("tory"))
	assert.ErrorIs(t, err, curation.ErrNotMergeable)
}

func TestMergePair(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	res, err := p.svc.MergePair(ctx, p.ref("tory"), p.ref("Hif"))
	require.NoError(t, err)
	assert.Equal(t, "Hiftory", res.New.Text)

	_, err = p.svc.MergePair(ctx, p.ref("of"), p.ref("TOM"))
	assert.ErrorIs(t, err, curation.ErrNotMergeable)
	assert.Equal(t, "Only sequential text on the same line can be merged", common.PublicMessage(err))
}

func TestMergePair_Rejections(t *testing.T) {
	p := newPage(t)
	ctx := context.Background()

	_, err := p.svc.MergePair(ctx, p.ref("Hif"), p.ref("of"))
	assert.ErrorIs(t, err, curation.ErrNotMergeable)

	_, err = p.svc.MergePair(ctx, p.ref("Hif"), p.ref("Hif"))
	assert.ErrorIs(t, err, curation.ErrNotMergeable)

	second := repotest.AddPage(t, p.db, p.fx, 2)
	w := word(*second, "tory", 0, 1, 0.3, 0.2, 0.5, 0.25)
	require.NoError(t, p.blocks.Create(ctx, w, "Extracted with Test"))
	path := p.fx.Path()
	path.Page = 2
	_, err = p.svc.MergePair(ctx, p.ref("Hif"), entity.BlockRef{OwnershipPath: path, BlockID: w.ID})
	assert.ErrorIs(t, err, curation.ErrNotMergeable)
	assert.Equal(t, "Blocks must be on the same page to be merged", common.PublicMessage(err))

	assert.Equal(t, 4, p.count(t))
}
