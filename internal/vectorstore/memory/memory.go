package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"personarag/internal/domain"
	"personarag/internal/embedding"
	"personarag/internal/vectorstore"
)

// Index is an exact, brute-force L2 index held in memory. It is immutable
// after construction and safe for concurrent queries.
type Index struct {
	corpus    *domain.Corpus
	embedder  embedding.Embedder
	vectors   [][]float64
	dimension int
}

// Build prepares emb on the corpus texts and embeds every record in order.
func Build(ctx context.Context, corpus *domain.Corpus, emb embedding.Embedder) (*Index, error) {
	if corpus.Len() == 0 {
		id := ""
		if corpus != nil {
			id = corpus.PersonaID
		}
		return nil, &domain.EmptyCorpusError{PersonaID: id}
	}
	texts := corpus.Texts()
	if err := emb.Prepare(texts); err != nil {
		return nil, fmt.Errorf("prepare %s embedder: %w", emb.Name(), err)
	}
	vectors, err := embedAll(ctx, emb, texts)
	if err != nil {
		return nil, err
	}
	ix, err := New(corpus, vectors)
	if err != nil {
		return nil, err
	}
	ix.embedder = emb
	return ix, nil
}

func embedAll(ctx context.Context, emb embedding.Embedder, texts []string) ([][]float64, error) {
	if be, ok := emb.(embedding.BatchEmbedder); ok {
		vectors, err := be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed records: %w", err)
		}
		return vectors, nil
	}
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := emb.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed record %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Builder adapts Build to vectorstore.Builder.
func Builder(ctx context.Context, corpus *domain.Corpus, emb embedding.Embedder) (vectorstore.Index, error) {
	ix, err := Build(ctx, corpus, emb)
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// New wraps precomputed vectors, one per record, all of one dimension.
func New(corpus *domain.Corpus, vectors [][]float64) (*Index, error) {
	if corpus.Len() == 0 {
		id := ""
		if corpus != nil {
			id = corpus.PersonaID
		}
		return nil, &domain.EmptyCorpusError{PersonaID: id}
	}
	if len(vectors) != corpus.Len() {
		return nil, fmt.Errorf("records and vectors length mismatch: %d != %d", corpus.Len(), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("invalid dimension")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d dimension mismatch: expected %d, got %d", i, dim, len(v))
		}
	}
	return &Index{corpus: corpus, vectors: vectors, dimension: dim}, nil
}

func (ix *Index) Corpus() *domain.Corpus { return ix.corpus }

func (ix *Index) Dimension() int { return ix.dimension }

func (ix *Index) Len() int { return len(ix.vectors) }

// Embed embeds text with the embedder the index was built with.
func (ix *Index) Embed(ctx context.Context, text string) ([]float64, error) {
	if ix.embedder == nil {
		return nil, errors.New("index has no embedder")
	}
	v, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) != ix.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", ix.dimension, len(v))
	}
	return v, nil
}

// Query returns the min(k, n) records nearest to vector by Euclidean distance,
// nearest first, ties broken by lower record index. k <= 0 means DefaultTopK.
func (ix *Index) Query(vector []float64, k int) (domain.RetrievalResult, error) {
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", ix.dimension, len(vector))
	}
	if k <= 0 {
		k = vectorstore.DefaultTopK
	}
	hits := make(domain.RetrievalResult, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = domain.Hit{Index: i, Distance: floats.Distance(v, vector, 2)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k:k], nil
}
