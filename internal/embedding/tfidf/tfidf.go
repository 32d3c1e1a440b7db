// Package tfidf embeds text as L2-normalized TF-IDF vectors over the
// vocabulary of the corpus it was prepared on.
package tfidf

import (
	"context"
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"personarag/internal/tokenize"
)

// Embedder holds per-corpus vocabulary and IDF weights, so one instance
// serves exactly one persona index.
type Embedder struct {
	vocab map[string]int
	idf   []float64
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder { return &Embedder{} }

func (e *Embedder) Name() string { return "tfidf" }

// Prepare builds the vocabulary and smoothed IDF weights from corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("tfidf: empty corpus")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		for term := range tokenize.Counts(text) {
			df[term]++
		}
	}
	if len(df) == 0 {
		return errors.New("tfidf: corpus has no indexable terms")
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	e.vocab, e.idf = vocab, idf
	return nil
}

func (e *Embedder) Dimension() int { return len(e.idf) }

// Embed weights in-vocabulary term frequencies by IDF. Text sharing no terms
// with the corpus maps to the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	if e.vocab == nil {
		return nil, errors.New("tfidf: embedder not prepared")
	}
	vec := make([]float64, len(e.idf))
	total := 0
	for term, count := range tokenize.Counts(text) {
		if idx, ok := e.vocab[term]; ok {
			vec[idx] = float64(count)
			total += count
		}
	}
	if total == 0 {
		return vec, nil
	}
	floats.Mul(vec, e.idf)
	floats.Scale(1/float64(total), vec)
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}
