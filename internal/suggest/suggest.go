package suggest

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultMaxResults is how many candidates Suggest returns when not told otherwise.
const DefaultMaxResults = 3

// Suggestion is one spelling candidate with its corpus frequency.
type Suggestion struct {
	Word      string  `json:"word"`
	Frequency float64 `json:"frequency"`
}

type casePattern int

const (
	caseIrregular casePattern = iota
	caseLower
	caseUpper
	caseCapitalized
	caseTitle
)

// Engine ranks spelling candidates against a Dictionary.
type Engine struct {
	dict       *Dictionary
	maxResults int
}

// NewEngine builds an engine. A nil dict uses DefaultDictionary; maxResults <= 0
// uses DefaultMaxResults.
func NewEngine(dict *Dictionary, maxResults int) *Engine {
	if dict == nil {
		dict = DefaultDictionary()
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Engine{dict: dict, maxResults: maxResults}
}

// MaxResults is the configured result cap.
func (e *Engine) MaxResults() int {
	return e.maxResults
}

// Suggest returns up to MaxResults candidates for word, most frequent first. With
// applyLongS the long-s reading of the word is considered as well. An empty slice
// means no correction is warranted.
func (e *Engine) Suggest(word string, applyLongS bool) []Suggestion {
	return e.SuggestN(word, applyLongS, e.maxResults)
}

// SuggestN is Suggest with an explicit result cap.
func (e *Engine) SuggestN(word string, applyLongS bool, maxResults int) []Suggestion {
	variants := []string{word}
	if applyLongS {
		if alt := NormalizeLongS(word); alt != word {
			variants = append(variants, alt)
		}
	}

	seen := make(map[Suggestion]struct{})
	var all []Suggestion
	for _, v := range variants {
		for _, s := range e.variantSuggestions(v) {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			all = append(all, s)
		}
	}

	// A lone candidate equal to the input means the word is already fine.
	if len(all) == 1 && all[0].Word == word {
		return []Suggestion{}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Frequency != all[j].Frequency {
			return all[i].Frequency > all[j].Frequency
		}
		di := levenshtein.ComputeDistance(word, all[i].Word)
		dj := levenshtein.ComputeDistance(word, all[j].Word)
		if di != dj {
			return di < dj
		}
		return all[i].Word < all[j].Word
	})
	if maxResults > 0 && len(all) > maxResults {
		all = all[:maxResults]
	}
	if all == nil {
		all = []Suggestion{}
	}
	return all
}

func (e *Engine) variantSuggestions(variant string) []Suggestion {
	stem, punct := splitTrailingPunct(variant)
	if stem == "" {
		return nil
	}
	pattern := detectCase(stem)
	lower := strings.ToLower(stem)

	candidates := e.dict.Candidates(lower)
	if len(candidates) == 0 {
		// nothing close is known: the word stands as its own candidate
		candidates = []string{lower}
	}

	out := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Suggestion{
			Word:      e.applyCase(c, pattern) + punct,
			Frequency: e.dict.Frequency(c),
		})
	}
	return out
}

// splitTrailingPunct removes one trailing punctuation rune.
func splitTrailingPunct(word string) (string, string) {
	r, size := utf8.DecodeLastRuneInString(word)
	if size > 0 && unicode.IsPunct(r) {
		return word[:len(word)-size], word[len(word)-size:]
	}
	return word, ""
}

func detectCase(word string) casePattern {
	runes := []rune(word)
	if len(runes) < 2 {
		switch {
		case len(runes) == 1 && unicode.IsLower(runes[0]):
			return caseLower
		case len(runes) == 1 && unicode.IsUpper(runes[0]):
			return caseCapitalized
		}
		return caseIrregular
	}
	switch {
	case word == strings.ToLower(word):
		return caseLower
	case word == strings.ToUpper(word):
		return caseUpper
	case unicode.IsUpper(runes[0]) && string(runes[1:]) == strings.ToLower(string(runes[1:])):
		return caseCapitalized
	case isTitle(runes):
		return caseTitle
	default:
		return caseIrregular
	}
}

// isTitle reports whether every letter run starts upper-case and continues lower-case,
// as in "Cross-Stitch".
func isTitle(runes []rune) bool {
	inWord := false
	cased := false
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if inWord {
				return false
			}
			inWord, cased = true, true
		case unicode.IsLower(r):
			if !inWord {
				return false
			}
		default:
			inWord = false
		}
	}
	return cased
}

func (e *Engine) applyCase(word string, p casePattern) string {
	switch p {
	case caseUpper:
		return strings.ToUpper(word)
	case caseCapitalized:
		r, size := utf8.DecodeRuneInString(word)
		return string(unicode.ToUpper(r)) + word[size:]
	case caseTitle:
		// Casers keep state, so each call gets its own.
		return cases.Title(language.Und).String(word)
	default:
		return word
	}
}

var defaultEngine = sync.OnceValue(func() *Engine {
	return NewEngine(nil, DefaultMaxResults)
})

// Suggest runs the shared default engine.
func Suggest(word string, applyLongS bool) []Suggestion {
	return defaultEngine().Suggest(word, applyLongS)
}
