package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder is implemented by embedders that can embed many texts per
// call. Vectors are returned in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Factory returns a fresh embedder. Corpus-fitted embedders keep per-corpus
// state, so every persona index gets its own instance.
type Factory func() (Embedder, error)

// Shared wraps a stateless embedder as a Factory that always returns it.
func Shared(e Embedder) Factory {
	return func() (Embedder, error) { return e, nil }
}
