package suggest

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

//go:embed words.txt
var embeddedWords string

// Dictionary is an immutable word frequency table. It is safe for concurrent use.
type Dictionary struct {
	counts   map[string]int
	byLen    map[int][]string
	alphabet []rune
	total    int
}

// ParseDictionary reads lines of "word<TAB>count". Blank lines and lines starting
// with '#' are skipped. Words are lowercased; repeated words add up.
func ParseDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{
		counts: make(map[string]int),
		byLen:  make(map[int][]string),
	}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		count := 1
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("dictionary line %d: bad count %q", lineNo, fields[1])
			}
			count = n
		}
		word := strings.ToLower(fields[0])
		if _, ok := d.counts[word]; !ok {
			n := utf8.RuneCountInString(word)
			d.byLen[n] = append(d.byLen[n], word)
		}
		d.counts[word] += count
		d.total += count
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if d.total == 0 {
		return nil, fmt.Errorf("dictionary is empty")
	}
	d.alphabet = alphabetOf(d.counts)
	return d, nil
}

// LoadDictionary reads a dictionary file from disk.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()
	return ParseDictionary(f)
}

var defaultDictionary = sync.OnceValue(func() *Dictionary {
	d, err := ParseDictionary(strings.NewReader(embeddedWords))
	if err != nil {
		panic("suggest: embedded dictionary: " + err.Error())
	}
	return d
})

// DefaultDictionary returns the built-in English frequency list, parsed on first use.
func DefaultDictionary() *Dictionary {
	return defaultDictionary()
}

// Known reports whether the lowercase word is in the dictionary.
func (d *Dictionary) Known(word string) bool {
	_, ok := d.counts[word]
	return ok
}

// Frequency is the word's share of all counted occurrences, zero when unknown.
func (d *Dictionary) Frequency(word string) float64 {
	return float64(d.counts[word]) / float64(d.total)
}

// Len is the number of distinct words.
func (d *Dictionary) Len() int {
	return len(d.counts)
}

// Candidates returns the known words closest to word: the word itself if known,
// else the known words one edit away, else those two edits away. An edit is a
// deletion, an insertion, a substitution or a swap of two adjacent letters. It
// returns nil when nothing within two edits is known.
func (d *Dictionary) Candidates(word string) []string {
	if d.Known(word) {
		return []string{word}
	}
	if found := d.oneEdit(word); len(found) > 0 {
		return found
	}
	return d.twoEdits(word)
}

// oneEdit generates every string one edit from word and keeps the known ones.
func (d *Dictionary) oneEdit(word string) []string {
	rs := []rune(word)
	seen := make(map[string]struct{})
	var out []string
	try := func(cand []rune) {
		s := string(cand)
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		if d.Known(s) {
			out = append(out, s)
		}
	}
	buf := make([]rune, 0, len(rs)+1)
	for i := 0; i <= len(rs); i++ {
		if i < len(rs) {
			try(append(append(buf[:0], rs[:i]...), rs[i+1:]...))
		}
		if i+1 < len(rs) {
			buf = append(append(buf[:0], rs[:i]...), rs[i+1], rs[i])
			try(append(buf, rs[i+2:]...))
		}
		for _, r := range d.alphabet {
			if i < len(rs) && r != rs[i] {
				buf = append(append(buf[:0], rs[:i]...), r)
				try(append(buf, rs[i+1:]...))
			}
			buf = append(append(buf[:0], rs[:i]...), r)
			try(append(buf, rs[i:]...))
		}
	}
	return out
}

// twoEdits lists known words at exactly two edits. Only lengths that can be
// reached in two edits are scanned.
func (d *Dictionary) twoEdits(word string) []string {
	rs := []rune(word)
	var out []string
	for l := len(rs) - 2; l <= len(rs)+2; l++ {
		for _, cand := range d.byLen[l] {
			if editDistance(rs, []rune(cand)) == 2 {
				out = append(out, cand)
			}
		}
	}
	return out
}

// editDistance is the optimal string alignment distance: Levenshtein with adjacent
// transpositions counted as one edit.
func editDistance(a, b []rune) int {
	rows := make([][]int, len(a)+1)
	for i := range rows {
		rows[i] = make([]int, len(b)+1)
		rows[i][0] = i
	}
	for j := range rows[0] {
		rows[0][j] = j
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			v := min(rows[i-1][j]+1, rows[i][j-1]+1, rows[i-1][j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				v = min(v, rows[i-2][j-2]+1)
			}
			rows[i][j] = v
		}
	}
	return rows[len(a)][len(b)]
}

func alphabetOf(counts map[string]int) []rune {
	set := make(map[rune]struct{})
	for w := range counts {
		for _, r := range w {
			set[r] = struct{}{}
		}
	}
	out := make([]rune, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
