package extract

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libriscan/libriscan/constants"
)

func word(id, text string, x0, y0, x1, y1 float64) Block {
	return Block{ID: id, Type: BlockWord, Text: text, TextType: TypePrinted, Confidence: 95, Geometry: Rect(x0, y0, x1, y1)}
}

func line(id string, y0 float64, children ...string) Block {
	return Block{
		ID:            id,
		Type:          BlockLine,
		Geometry:      Rect(0.1, y0, 0.9, y0+0.03),
		Relationships: []Relationship{{Type: relationChild, IDs: children}},
	}
}

func TestSplit(t *testing.T) {
	blocks := []Block{
		{ID: "p", Type: BlockPage},
		line("l1", 0.1, "a"),
		word("a", "one", 0.1, 0.1, 0.2, 0.13),
		{ID: "k", Type: "KEY_VALUE_SET"},
	}
	words, lines, others := Split(blocks)
	assert.Len(t, words, 1)
	assert.Len(t, lines, 1)
	assert.Equal(t, []string{"p", "k"}, []string{others[0].ID, others[1].ID})
}

func TestLinePositions(t *testing.T) {
	pos := LinePositions([]Block{line("l2", 0.5, "c", "d"), line("l1", 0.1, "a", "b")})
	assert.Equal(t, Position{Top: 0.5, Index: 1}, pos["d"])
	assert.Equal(t, Position{Top: 0.1, Index: 0}, pos["a"])
	assert.Equal(t, []float64{0.1, 0.5}, LineTops(pos))
	assert.Empty(t, LinePositions(nil))
}

func TestLayout(t *testing.T) {
	words := []Block{
		word("c", "third", 0.5, 0.51, 0.6, 0.53),
		word("a", "first", 0.1, 0.1, 0.2, 0.13),
		word("b", "second", 0.3, 0.1, 0.4, 0.13),
		word("d", "fourth", 0.2, 0.5, 0.3, 0.53),
		word("orphan", "stray", 0.7, 0.9, 0.8, 0.93),
	}
	lines := []Block{line("l2", 0.5, "d", "c"), line("l1", 0.1, "a", "b")}

	got := Layout(words, lines)
	require.Len(t, got, 5)
	type slot struct {
		text         string
		line, number int
	}
	var slots []slot
	for _, p := range got {
		slots = append(slots, slot{p.Word.Text, p.Line, p.Number})
	}
	assert.Equal(t, []slot{
		{"first", 0, 0}, {"second", 0, 1},
		{"fourth", 1, 0}, {"third", 1, 1},
		{"stray", 2, 0},
	}, slots)
}

func TestLayout_SlotsAreUnique(t *testing.T) {
	// two lines reported with the same top collapse into one line
	words := []Block{
		word("a", "a", 0.1, 0.1, 0.2, 0.13),
		word("b", "b", 0.6, 0.1, 0.7, 0.13),
		word("c", "c", 0.3, 0.1, 0.4, 0.13),
	}
	got := Layout(words, []Block{line("l1", 0.1, "a", "b"), line("l2", 0.1, "c")})
	seen := map[[2]int]bool{}
	for _, p := range got {
		k := [2]int{p.Line, p.Number}
		assert.False(t, seen[k], "duplicate slot %v", k)
		seen[k] = true
	}
	assert.Equal(t, "c", got[1].Word.Text)
}

func TestClampConfidence(t *testing.T) {
	assert.LessOrEqual(t, ClampConfidence(100), constants.ConfAccepted)
	assert.Equal(t, constants.ConfAccepted, ClampConfidence(100))
	assert.Equal(t, 87.5, ClampConfidence(87.5))
	assert.Zero(t, ClampConfidence(-3))
}

func TestNudgeCoordinate(t *testing.T) {
	for _, v := range []float64{0, 1, -0.01, 1.2} {
		got := NudgeCoordinate(v)
		assert.Greater(t, got, 0.0, "input %v", v)
		assert.Less(t, got, 1.0, "input %v", v)
	}
	assert.Equal(t, 0.42, NudgeCoordinate(0.42))
}

func TestToTextBlock(t *testing.T) {
	pageID := uuid.New()
	w := Block{ID: "w1", Type: BlockWord, Text: "faid", TextType: TypeHandwriting, Confidence: 100, Geometry: Rect(0, 0.2, 1, 0.25)}

	tb := ToTextBlock(pageID, Placement{Word: w, Line: 3, Number: 2}, nil)
	assert.Equal(t, pageID, tb.PageID)
	assert.Equal(t, "w1", tb.ExtractionID)
	assert.Equal(t, constants.TextHandwriting, tb.TextType)
	assert.Equal(t, constants.PrintInclude, tb.PrintControl)
	assert.Equal(t, constants.ConfAccepted, tb.Confidence)
	assert.Equal(t, GeoEpsilon, tb.GeoX0)
	assert.Equal(t, 1-GeoEpsilon, tb.GeoX1)
	assert.Equal(t, 0.2, tb.GeoY0)
	assert.Equal(t, 3, tb.Line)
	assert.Equal(t, 2, tb.Number)
	assert.NotNil(t, tb.Suggestions)

	assert.Equal(t, constants.TextPrinted, MapTextType(TypePrinted))
	assert.Equal(t, constants.TextPrinted, MapTextType(""))
}
