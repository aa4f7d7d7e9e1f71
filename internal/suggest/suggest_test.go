package suggest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(ss []Suggestion) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Word)
	}
	return out
}

func TestSuggest_LongSVariant(t *testing.T) {
	got := Suggest("faid", true)
	require.NotEmpty(t, got)
	assert.Contains(t, words(got), "said")
	assert.LessOrEqual(t, len(got), DefaultMaxResults)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Frequency, got[i].Frequency)
	}
}

func TestSuggest_KnownWordNeedsNoCorrection(t *testing.T) {
	assert.Empty(t, Suggest("said", true))
	assert.Empty(t, Suggest("the", false))
}

func TestSuggest_UnknownWordWithNoNeighbours(t *testing.T) {
	assert.Empty(t, Suggest("qzxvwj", true))
}

func TestSuggest_PreservesCaseAndPunctuation(t *testing.T) {
	assert.Contains(t, words(Suggest("Faid,", true)), "Said,")
	assert.Contains(t, words(Suggest("FAID", true)), "SAID")
	assert.Contains(t, words(Suggest("fuccefsful.", true)), "successful.")
}

func TestSuggest_LongSOnlyWhenAsked(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader("press\t10\nprefix\t1\n"))
	require.NoError(t, err)
	e := NewEngine(dict, 3)

	// "prefs" is one edit from "press" either way; with long-s the variant is an exact hit
	assert.Equal(t, []string{"press"}, words(e.Suggest("prefs", true)))
	assert.Equal(t, []string{"press"}, words(e.Suggest("prefs", false)))
	assert.Empty(t, e.Suggest("press", true))
}

func TestSuggest_EdgeInputs(t *testing.T) {
	assert.NotPanics(t, func() {
		Suggest("", true)
		Suggest(".", true)
		Suggest("a", true)
		Suggest("A", false)
	})
}

func TestEngine_MaxResults(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader("paid\t50\nlaid\t40\nmaid\t30\nsaid\t100\nraid\t10\n"))
	require.NoError(t, err)

	e := NewEngine(dict, 2)
	got := e.Suggest("faid", true)
	assert.Equal(t, []string{"said", "paid"}, words(got))

	got = e.SuggestN("faid", true, 10)
	assert.Len(t, got, 5)
	assert.InDelta(t, 100.0/230.0, got[0].Frequency, 1e-9)
}

func TestParseDictionary(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader("# comment\nThe\t10\n\nthe\t5\nsong\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, dict.Len())
	assert.True(t, dict.Known("the"))
	assert.InDelta(t, 15.0/16.0, dict.Frequency("the"), 1e-9)
	assert.Zero(t, dict.Frequency("absent"))

	_, err = ParseDictionary(strings.NewReader("word\tmany\n"))
	assert.Error(t, err)
	_, err = ParseDictionary(strings.NewReader(""))
	assert.Error(t, err)
}

func TestDictionary_Candidates(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader("song\t3\nsing\t2\nsongs\t1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"song"}, dict.Candidates("song"))
	assert.ElementsMatch(t, []string{"song"}, dict.Candidates("fong"))
	assert.ElementsMatch(t, []string{"sing", "songs"}, dict.Candidates("sings"))
	assert.Nil(t, dict.Candidates("xyzzyq"))
}

func TestDefaultDictionary_Loaded(t *testing.T) {
	d := DefaultDictionary()
	assert.Greater(t, d.Len(), 9000)
	for _, w := range []string{"said", "successful", "song", "use", "cross", "satisfaction", "history", "lord", "o"} {
		assert.True(t, d.Known(w), w)
	}
	assert.Same(t, d, DefaultDictionary())
}

func TestSuggest_CommonWordsStandAsWritten(t *testing.T) {
	for _, w := range []string{"lord", "bore", "wit", "sire", "king", "thou", "hath", "castle", "Lord,", "WIT.", "O", "I", "A"} {
		assert.Empty(t, Suggest(w, true), w)
	}
}

func TestSuggest_SingleCapitalKeepsCase(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader("o\t5\nof\t10\n"))
	require.NoError(t, err)
	e := NewEngine(dict, 3)
	assert.Empty(t, e.Suggest("O", false))
	assert.Equal(t, []string{"Of", "O"}, words(e.Suggest("Oz", false)))
}

func TestDictionary_TranspositionIsOneEdit(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader("with\t10\nwit\t2\nwhite\t1\n"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"with", "wit"}, dict.Candidates("wiht"))
	assert.Equal(t, []string{"with"}, words(NewEngine(dict, 1).Suggest("wiht", false)))
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"ab", "ba", 1},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"same", "same", 0},
		{"recieve", "receive", 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, editDistance([]rune(c.a), []rune(c.b)), c.a+"/"+c.b)
	}
}
