package export_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/export"
	"github.com/libriscan/libriscan/internal/repository"
	"github.com/libriscan/libriscan/internal/repository/repotest"
)

func tb(text string, line, number int, pc constants.PrintControl) *entity.TextBlock {
	return &entity.TextBlock{Text: text, TextType: constants.TextPrinted, Line: line, Number: number,
		Confidence: 95, PrintControl: pc, GeoX0: 0.1, GeoY0: 0.1, GeoX1: 0.2, GeoY1: 0.2}
}

func setup(t *testing.T) (*export.Service, *repository.DB, repository.TextBlockRepository, *repotest.Fixture, export.DocumentRef) {
	t.Helper()
	db := repotest.Open(t)
	log := repotest.Logger()
	fx := repotest.Seed(t, db, "acme", constants.ServiceTest)
	blocks := repository.NewTextBlockRepository(db, log)
	svc := export.NewService(repository.NewOrganizationRepository(db, log), repository.NewPageRepository(db, log), blocks, log)
	ref := export.DocumentRef{Organization: fx.Organization.ShortName, Collection: fx.Collection.Slug, Document: fx.Document.Identifier}
	return svc, db, blocks, fx, ref
}

func TestPageText(t *testing.T) {
	words := []*entity.TextBlock{
		tb("The", 0, 0, constants.PrintInclude),
		tb("History", 0, 1, constants.PrintInclude),
		tb("of", 2, 0, constants.PrintInclude),
	}
	assert.Equal(t, "The History\nof\n", export.PageText(words))
	assert.Equal(t, "\n", export.PageText(nil))
}

func TestText_OnlyIncludedWords(t *testing.T) {
	svc, db, blocks, fx, ref := setup(t)
	ctx := context.Background()

	ok, err := svc.CanExport(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = svc.Text(ctx, ref)
	assert.ErrorIs(t, err, export.ErrNothingToExport)

	first := []*entity.TextBlock{
		tb("Hif", 0, 0, constants.PrintMerge),
		tb("tory", 0, 1, constants.PrintMerge),
		tb("Hiftory", 0, 0, constants.PrintInclude),
		tb("of", 0, 2, constants.PrintInclude),
		tb("smudge", 1, 0, constants.PrintOmit),
		tb("TOM", 1, 1, constants.PrintInclude),
		tb("JONES", 1, 2, constants.PrintInclude),
	}
	for _, w := range first {
		w.PageID = fx.Page.ID
	}
	require.NoError(t, blocks.CreateBatch(ctx, first, "Extracted with Test", 0))

	second := repotest.AddPage(t, db, fx, 2)
	w := tb("FINIS", 0, 0, constants.PrintInclude)
	w.PageID = second.ID
	require.NoError(t, blocks.Create(ctx, w, "Extracted with Test"))

	ok, err = svc.CanExport(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	out, err := svc.Text(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Hiftory of\nTOM JONES\nFINIS\n", string(out))

	data, err := svc.XLSX(ctx, ref)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Words")
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"Page", "Line", "Number", "Text", "Confidence", "Confidence Level", "Text Type", "Review"}, rows[0])
	assert.Equal(t, "Hiftory", rows[1][3])
	assert.Equal(t, "high", rows[1][5])
	assert.Equal(t, "2", rows[5][0])
	assert.Equal(t, "FINIS", rows[5][3])
}

func TestCanExport_UnknownDocument(t *testing.T) {
	svc, _, _, _, ref := setup(t)
	ref.Document = "missing"
	_, err := svc.CanExport(context.Background(), ref)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
