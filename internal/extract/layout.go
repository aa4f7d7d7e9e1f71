package extract

import (
	"slices"
	"sort"
)

// Position locates a word inside its line: the line's top edge and the word's index among the line's children.
type Position struct {
	Top   float64
	Index int
}

// Placement is a word with its final line and number on the page.
type Placement struct {
	Word   Block
	Line   int
	Number int
}

// Split partitions a response into words, lines and everything else, keeping order.
func Split(blocks []Block) (words, lines, others []Block) {
	for _, b := range blocks {
		switch b.Type {
		case BlockWord:
			words = append(words, b)
		case BlockLine:
			lines = append(lines, b)
		default:
			others = append(others, b)
		}
	}
	return words, lines, others
}

// LinePositions maps each word id referenced by a line to that line's top and the word's index in it.
func LinePositions(lines []Block) map[string]Position {
	pos := make(map[string]Position)
	for _, ln := range lines {
		top, _ := ln.Bounds()
		for i, id := range ln.Children() {
			if _, seen := pos[id]; !seen {
				pos[id] = Position{Top: top.Y, Index: i}
			}
		}
	}
	return pos
}

// LineTops returns the distinct line tops in ascending order. A top's index is its line number.
func LineTops(positions map[string]Position) []float64 {
	tops := make([]float64, 0, len(positions))
	for _, p := range positions {
		tops = append(tops, p.Top)
	}
	slices.Sort(tops)
	return slices.Compact(tops)
}

// Layout assigns dense zero-based line and word numbers. Words that no line claims
// are placed on the line whose top equals their own top edge. Within a line, words
// are numbered in horizontal reading order.
func Layout(words, lines []Block) []Placement {
	pos := LinePositions(lines)
	wordPos := make(map[string]Position, len(words))
	for _, w := range words {
		p, ok := pos[w.ID]
		if !ok {
			top, _ := w.Bounds()
			p = Position{Top: top.Y}
		}
		wordPos[w.ID] = p
	}
	tops := LineTops(wordPos)

	type entry struct {
		word  Block
		index int
		x     float64
		seq   int
	}
	byLine := make([][]entry, len(tops))
	for seq, w := range words {
		p := wordPos[w.ID]
		line, _ := slices.BinarySearch(tops, p.Top)
		lo, _ := w.Bounds()
		byLine[line] = append(byLine[line], entry{word: w, index: p.Index, x: lo.X, seq: seq})
	}

	out := make([]Placement, 0, len(words))
	for line, entries := range byLine {
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.x != b.x {
				return a.x < b.x
			}
			if a.index != b.index {
				return a.index < b.index
			}
			return a.seq < b.seq
		})
		for n, e := range entries {
			out = append(out, Placement{Word: e.word, Line: line, Number: n})
		}
	}
	return out
}
