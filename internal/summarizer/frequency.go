// Package summarizer picks the most representative sentences of a text.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"personarag/internal/tokenize"
)

const defaultMaxSentences = 3

var sentencePattern = regexp.MustCompile(`[^.!?。！？\n]+(?:[.!?。！？]+|\n|$)`)

// FrequencySummarizer scores sentences by the corpus-wide frequency of their
// terms. Used to describe what a persona's corpus covers.
type FrequencySummarizer struct{}

func NewFrequencySummarizer() *FrequencySummarizer { return &FrequencySummarizer{} }

// Summarize returns up to maxSentences of the highest scoring sentences in
// their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " "), nil
	}

	scores := score(sentences)
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	keep := order[:maxSentences]
	sort.Ints(keep)

	picked := make([]string, len(keep))
	for i, idx := range keep {
		picked[i] = sentences[idx]
	}
	return strings.Join(picked, " "), nil
}

func splitSentences(text string) []string {
	var out []string
	for _, sent := range sentencePattern.FindAllString(text, -1) {
		if sent = strings.TrimSpace(sent); sent != "" {
			out = append(out, sent)
		}
	}
	return out
}

// score sums each sentence's max-normalized term frequencies, damped by the
// square root of its length so long sentences do not always win.
func score(sentences []string) []float64 {
	terms := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		terms[i] = tokenize.Terms(sent)
		for _, t := range terms[i] {
			freq[t]++
		}
	}
	top := 0.0
	for _, f := range freq {
		top = math.Max(top, f)
	}

	scores := make([]float64, len(sentences))
	for i, ts := range terms {
		if len(ts) == 0 {
			continue
		}
		weights := make([]float64, len(ts))
		for j, t := range ts {
			weights[j] = freq[t] / top
		}
		scores[i] = floats.Sum(weights) / math.Sqrt(float64(len(ts)))
	}
	return scores
}
