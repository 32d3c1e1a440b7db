// Package tokenize splits mixed Latin and CJK text into index terms.
package tokenize

import (
	"regexp"
	"strings"
)

// Latin words (with inner apostrophes) and digit runs, or a single Han
// character so CJK text without spaces still yields terms.
var termPattern = regexp.MustCompile(`\p{Han}|(?:[^\P{L}\p{Han}]|\p{N})+(?:['’][^\P{L}\p{Han}]+)*`)

var stopwords = toSet(
	"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as",
	"is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down",
	"over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during",
	"before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don",
	"should", "now",
	"的", "了", "是", "在", "和", "吗", "呢", "吧", "啊",
)

// Terms returns the lowercased terms of text with stopwords removed.
func Terms(text string) []string {
	raw := termPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// Counts returns term frequencies for text.
func Counts(text string) map[string]int {
	counts := make(map[string]int)
	for _, t := range Terms(text) {
		counts[t]++
	}
	return counts
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
