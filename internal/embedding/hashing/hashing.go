// Package hashing provides an offline embedder based on feature hashing.
// Vectors depend only on the text, so no corpus preparation is needed.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder hashes word and character-bigram features into a fixed number of
// buckets and L2-normalizes the result.
type Embedder struct {
	dimensions int
	words      *regexp.Regexp
}

// New creates a hashing embedder with the given dimensionality (default 256).
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &Embedder{
		dimensions: dimensions,
		words:      regexp.MustCompile(`[\p{L}\p{N}]+`),
	}
}

func (e *Embedder) Name() string { return "hashing" }

func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int { return e.dimensions }

// Embed never fails; blank text maps to the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dimensions)
	for _, f := range e.features(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(f))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		// The top bit picks the sign so unrelated features tend to cancel.
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// features yields lowercase words plus rune bigrams inside each word, which
// keeps CJK text (no spaces) comparable.
func (e *Embedder) features(text string) []string {
	var out []string
	for _, w := range e.words.FindAllString(strings.ToLower(text), -1) {
		out = append(out, "w:"+w)
		runes := []rune(w)
		for i := 0; i+1 < len(runes); i++ {
			out = append(out, "b:"+string(runes[i:i+2]))
		}
		if len(runes) == 1 {
			out = append(out, "b:"+w)
		}
	}
	return out
}
