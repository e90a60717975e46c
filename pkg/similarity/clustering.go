// Package similarity provides text similarity and near-duplicate matching utilities.
package similarity

import (
	"sort"
	"strings"
	"unicode"
)

// TermSet is a set of shingles extracted from one text.
type TermSet map[string]bool

// NormalizeText lowercases text, strips punctuation and symbols, and collapses whitespace.
// URLs are removed first so that two posts sharing only a link do not look alike.
func NormalizeText(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		lf := strings.ToLower(f)
		if strings.HasPrefix(lf, "http://") || strings.HasPrefix(lf, "https://") {
			continue
		}
		kept = append(kept, f)
	}
	text = strings.Join(kept, " ")

	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		default:
			// Punctuation and symbols are dropped without splitting words,
			// so "don't" and "dont" normalize the same way.
		}
	}
	return strings.TrimSpace(b.String())
}

// Shingles returns the set of word n-grams of normalized text.
// Texts shorter than size words yield their word set instead, so short posts still compare.
func Shingles(normalized string, size int) TermSet {
	words := strings.Fields(normalized)
	set := make(TermSet)
	if len(words) == 0 {
		return set
	}
	if size <= 1 || len(words) < size {
		for _, w := range words {
			set[w] = true
		}
		return set
	}
	for i := 0; i+size <= len(words); i++ {
		set[strings.Join(words[i:i+size], " ")] = true
	}
	return set
}

// JaccardSimilarity calculates the Jaccard similarity between two term sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func JaccardSimilarity(set1, set2 TermSet) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	// Iterate the smaller set
	if len(set1) > len(set2) {
		set1, set2 = set2, set1
	}
	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// exactPairLimit is the set count up to which every pair is compared directly.
const exactPairLimit = 200

// SimilarPairs returns every pair (i, j), i < j, whose Jaccard similarity is at
// least threshold. Empty sets never match. Pairs are sorted by (i, j).
//
// Small inputs compare every pair. Larger inputs use a size filter: the Jaccard
// similarity of two sets can never exceed |small|/|large|, so pairs whose sizes
// differ too much are skipped without losing any match.
func SimilarPairs(sets []TermSet, threshold float64) [][2]int {
	if len(sets) <= 1 {
		return nil
	}
	if len(sets) <= exactPairLimit || threshold <= 0 {
		return similarPairsSimple(sets, threshold)
	}
	return similarPairsOptimized(sets, threshold)
}

// similarPairsSimple is the O(n²) algorithm for small sets.
func similarPairsSimple(sets []TermSet, threshold float64) [][2]int {
	var pairs [][2]int
	for i := 0; i < len(sets); i++ {
		if len(sets[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(sets); j++ {
			if len(sets[j]) == 0 {
				continue
			}
			if JaccardSimilarity(sets[i], sets[j]) >= threshold {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

// similarPairsOptimized walks sets in size order and stops scanning as soon as
// the size bound rules out every remaining partner.
func similarPairsOptimized(sets []TermSet, threshold float64) [][2]int {
	order := make([]int, 0, len(sets))
	for i, s := range sets {
		if len(s) > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(sets[order[a]]) < len(sets[order[b]])
	})

	var pairs [][2]int
	for a := 0; a < len(order); a++ {
		i := order[a]
		maxPartner := float64(len(sets[i])) / threshold
		for b := a + 1; b < len(order); b++ {
			j := order[b]
			if float64(len(sets[j])) > maxPartner {
				break
			}
			if JaccardSimilarity(sets[i], sets[j]) >= threshold {
				if i < j {
					pairs = append(pairs, [2]int{i, j})
				} else {
					pairs = append(pairs, [2]int{j, i})
				}
			}
		}
	}

	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a][0] != pairs[b][0] {
			return pairs[a][0] < pairs[b][0]
		}
		return pairs[a][1] < pairs[b][1]
	})
	return pairs
}
