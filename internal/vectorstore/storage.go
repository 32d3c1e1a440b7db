package vectorstore

import (
	"context"

	"personarag/internal/domain"
	"personarag/internal/embedding"
)

// DefaultTopK is the number of neighbours retrieved per turn.
const DefaultTopK = 3

// Index answers nearest-neighbour queries over one corpus. Embed uses the
// same embedder the corpus vectors were built with.
type Index interface {
	Corpus() *domain.Corpus
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	Query(vector []float64, k int) (domain.RetrievalResult, error)
}

// Builder embeds a corpus and returns a searchable index.
type Builder func(ctx context.Context, corpus *domain.Corpus, emb embedding.Embedder) (Index, error)
