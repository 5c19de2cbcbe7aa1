package grading

import (
	"encoding/json"
	"strings"
	"unicode"
)

// normalize trims, case-folds and collapses inner whitespace
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// dedupe normalizes items and drops blanks and repeats, keeping order
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		n := normalize(it)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range dedupe(items) {
		set[it] = struct{}{}
	}
	return set
}

// letterCounts counts letters, ignoring case, spaces and punctuation
func letterCounts(s string) map[rune]int {
	counts := make(map[rune]int)
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			counts[r]++
		}
	}
	return counts
}

// formable reports whether word can be spelled from the grid letters
func formable(word string, grid map[rune]int) bool {
	for r, n := range letterCounts(word) {
		if grid[r] < n {
			return false
		}
	}
	return true
}

// gridLetters reads the letter grid of a wordbox question. Content may be
// {"grid": [["a","b"],...]}, {"grid": ["ab",...]} or the bare grid. It
// returns nil when no grid is present.
func gridLetters(content json.RawMessage) map[rune]int {
	if len(content) == 0 {
		return nil
	}

	var wrapped struct {
		Grid json.RawMessage `json:"grid"`
	}
	raw := content
	if err := json.Unmarshal(content, &wrapped); err == nil && len(wrapped.Grid) > 0 {
		raw = wrapped.Grid
	}

	var text strings.Builder
	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err == nil {
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell)
			}
		}
	} else {
		var flat []string
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil
		}
		for _, cell := range flat {
			text.WriteString(cell)
		}
	}

	counts := letterCounts(text.String())
	if len(counts) == 0 {
		return nil
	}
	return counts
}
