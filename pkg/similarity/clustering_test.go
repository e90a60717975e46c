// Package similarity provides text similarity and near-duplicate matching utilities.
package similarity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		set1     TermSet
		set2     TermSet
		name     string
		expected float64
	}{
		{
			name:     "identical sets",
			set1:     TermSet{"a": true, "b": true, "c": true},
			set2:     TermSet{"a": true, "b": true, "c": true},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			set1:     TermSet{"a": true, "b": true},
			set2:     TermSet{"c": true, "d": true},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			set1:     TermSet{"a": true, "b": true, "c": true},
			set2:     TermSet{"b": true, "c": true, "d": true},
			expected: 0.5, // intersection=2, union=4
		},
		{
			name:     "empty sets",
			set1:     TermSet{},
			set2:     TermSet{},
			expected: 1.0,
		},
		{
			name:     "one empty set",
			set1:     TermSet{"a": true},
			set2:     TermSet{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := JaccardSimilarity(tt.set1, tt.set2)
			assert.InDelta(t, tt.expected, result, 0.001)
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "case and whitespace", in: "  Hello\n\tWORLD  ", want: "hello world"},
		{name: "punctuation stripped", in: "Wow!!! This, is... big.", want: "wow this is big"},
		{name: "apostrophes joined", in: "Don't panic", want: "dont panic"},
		{name: "urls removed", in: "Read this https://example.com/a?b=1 now", want: "read this now"},
		{name: "only punctuation", in: "!!! ???", want: ""},
		{name: "unicode letters kept", in: "Café Ünïcode", want: "café ünïcode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestShingles(t *testing.T) {
	t.Run("word trigrams", func(t *testing.T) {
		set := Shingles("the quick brown fox", 3)
		assert.Len(t, set, 2)
		assert.True(t, set["the quick brown"])
		assert.True(t, set["quick brown fox"])
	})

	t.Run("short text falls back to words", func(t *testing.T) {
		set := Shingles("hello world", 3)
		assert.Equal(t, TermSet{"hello": true, "world": true}, set)
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, Shingles("", 3))
	})
}

func TestSimilarPairs_Small(t *testing.T) {
	texts := []string{
		"New paper: scaling laws hold for sparse models too, results in thread",
		"new paper   scaling laws hold for sparse models too! results in thread",
		"Completely unrelated post about cooking pasta tonight",
		"",
	}
	sets := make([]TermSet, len(texts))
	for i, text := range texts {
		sets[i] = Shingles(NormalizeText(text), 3)
	}

	pairs := SimilarPairs(sets, 0.8)
	assert.Equal(t, [][2]int{{0, 1}}, pairs)
}

func TestSimilarPairs_EmptyNeverMatches(t *testing.T) {
	sets := []TermSet{{}, {}}
	assert.Empty(t, SimilarPairs(sets, 0.5))
}

func TestSimilarPairs_LargeInputUsesSizeFilter(t *testing.T) {
	sets := make([]TermSet, 0, exactPairLimit+50)
	for i := 0; i < exactPairLimit+48; i++ {
		text := fmt.Sprintf("distinct post number %d about topic %d with filler words %d", i, i*7, i*13)
		sets = append(sets, Shingles(NormalizeText(text), 3))
	}
	dup := "identical announcement text shared by two different accounts today"
	sets = append(sets, Shingles(dup, 3), Shingles(dup, 3))

	pairs := SimilarPairs(sets, 0.8)
	require.NotEmpty(t, pairs)
	assert.Contains(t, pairs, [2]int{len(sets) - 2, len(sets) - 1})
}

func TestSimilarPairs_Deterministic(t *testing.T) {
	sets := make([]TermSet, 0, 300)
	for i := 0; i < 300; i++ {
		sets = append(sets, Shingles(NormalizeText(fmt.Sprintf("post %d mentions topic %d", i, i%5)), 3))
	}
	first := SimilarPairs(sets, 0.5)
	second := SimilarPairs(sets, 0.5)
	assert.Equal(t, first, second)
}

func TestSimilarPairs_OptimizedMatchesSimple(t *testing.T) {
	sets := make([]TermSet, 0, 260)
	for i := 0; i < 260; i++ {
		text := fmt.Sprintf("shared opening words for every post then topic %d and tail %d", i%9, i%4)
		sets = append(sets, Shingles(NormalizeText(text), 3))
	}
	sets = append(sets, TermSet{})

	assert.Equal(t, similarPairsSimple(sets, 0.6), similarPairsOptimized(sets, 0.6))
}
