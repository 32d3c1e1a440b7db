// Package service runs the retrieval-augmented turn pipeline for a persona.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"personarag/internal/domain"
	"personarag/internal/embedding"
	"personarag/internal/generation"
	"personarag/internal/grounding"
	"personarag/internal/vectorstore"
	"personarag/internal/vectorstore/memory"
)

// CorpusLoader is the Corpus Store as seen by the orchestrator.
type CorpusLoader interface {
	Persona(id string) (domain.Persona, bool)
	Load(ctx context.Context, personaID string) (*domain.Corpus, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Retrieval is the grounding found for one utterance.
type Retrieval struct {
	Hits    domain.RetrievalResult
	Context string
}

// Orchestrator coordinates corpus loading, retrieval and generation for a
// turn. It makes a single attempt per turn; there is no retry or backoff.
type Orchestrator struct {
	corpora      CorpusLoader
	newEmbedder  embedding.Factory
	build        vectorstore.Builder
	generator    generation.Client
	summarizer   Summarizer
	topK         int
	summaryLimit int
	logger       zerolog.Logger
	now          func() time.Time

	mu      sync.RWMutex
	indexes map[string]vectorstore.Index
	builds  singleflight.Group
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTopK sets how many records ground each reply.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithBuilder replaces the in-memory exact index.
func WithBuilder(b vectorstore.Builder) Option {
	return func(o *Orchestrator) { o.build = b }
}

func WithSummarizer(s Summarizer, maxSentences int) Option {
	return func(o *Orchestrator) {
		o.summarizer = s
		o.summaryLimit = maxSentences
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(corpora CorpusLoader, embedders embedding.Factory, generator generation.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		corpora:     corpora,
		newEmbedder: embedders,
		build:       memory.Builder,
		generator:   generator,
		topK:        vectorstore.DefaultTopK,
		logger:      zerolog.Nop(),
		now:         time.Now,
		indexes:     make(map[string]vectorstore.Index),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSession starts a conversation with a registered persona.
func (o *Orchestrator) NewSession(personaID string) (*SessionContext, error) {
	if _, ok := o.corpora.Persona(personaID); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPersona, personaID)
	}
	return NewSessionContext(personaID), nil
}

// HandleTurn answers utterance within sess. On success the user turn and the
// reply are appended to the session; on failure the session is unchanged.
func (o *Orchestrator) HandleTurn(ctx context.Context, sess *SessionContext, utterance string) (domain.Turn, error) {
	if sess == nil {
		return domain.Turn{}, stageErr(StageInput, "", errors.New("nil session"))
	}
	userTurn := domain.Turn{Role: domain.RoleUser, Content: utterance, At: o.now()}
	reply, err := o.Respond(ctx, sess.PersonaID, utterance)
	if err != nil {
		return domain.Turn{}, err
	}
	sess.append(userTurn, reply)
	return reply, nil
}

// Respond runs one turn for a persona: load corpus, reuse or build the index,
// embed the utterance, retrieve, assemble context and generate.
func (o *Orchestrator) Respond(ctx context.Context, personaID, utterance string) (domain.Turn, error) {
	start := o.now()
	log := o.logger.With().Str("persona", personaID).Logger()

	if strings.TrimSpace(utterance) == "" {
		return domain.Turn{}, stageErr(StageInput, personaID, errors.New("empty utterance"))
	}
	ret, err := o.Retrieve(ctx, domain.Query{PersonaID: personaID, Utterance: utterance})
	if err != nil {
		log.Warn().Err(err).Msg("retrieval failed")
		return domain.Turn{}, err
	}

	persona, _ := o.corpora.Persona(personaID)
	req := domain.GenerationRequest{Persona: persona, GroundingContext: ret.Context, Utterance: utterance}
	genStart := o.now()
	text, err := o.generator.Generate(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("generation failed")
		return domain.Turn{}, stageErr(StageGeneration, personaID, err)
	}
	if strings.TrimSpace(text) == "" {
		err := &domain.GenerationServiceError{Reason: "empty completion"}
		log.Warn().Err(err).Msg("generation failed")
		return domain.Turn{}, stageErr(StageGeneration, personaID, err)
	}

	log.Debug().
		Ints("hits", ret.Hits.Indices()).
		Dur("generation", o.now().Sub(genStart)).
		Dur("total", o.now().Sub(start)).
		Msg("turn complete")
	return domain.Turn{Role: domain.RoleAssistant, Content: text, At: o.now()}, nil
}

// Retrieve returns the records nearest to q.Utterance and their assembled context.
func (o *Orchestrator) Retrieve(ctx context.Context, q domain.Query) (Retrieval, error) {
	ix, err := o.index(ctx, q.PersonaID)
	if err != nil {
		return Retrieval{}, err
	}
	vec, err := ix.Embed(ctx, q.Utterance)
	if err != nil {
		return Retrieval{}, stageErr(StageEmbed, q.PersonaID, err)
	}
	hits, err := ix.Query(vec, o.topK)
	if err != nil {
		return Retrieval{}, stageErr(StageRetrieve, q.PersonaID, err)
	}
	return Retrieval{Hits: hits, Context: grounding.Assemble(ix.Corpus(), hits)}, nil
}

// Warm loads the persona's corpus and builds its index ahead of the first turn.
func (o *Orchestrator) Warm(ctx context.Context, personaID string) error {
	_, err := o.index(ctx, personaID)
	return err
}

// Describe summarizes what the persona's corpus covers.
func (o *Orchestrator) Describe(ctx context.Context, personaID string) (string, error) {
	corpus, err := o.corpora.Load(ctx, personaID)
	if err != nil {
		return "", stageErr(StageCorpus, personaID, err)
	}
	if o.summarizer == nil || corpus.Len() == 0 {
		return "", nil
	}
	return o.summarizer.Summarize(strings.Join(corpus.Texts(), "\n"), o.summaryLimit)
}

// index returns the cached index for a persona, building it once on first use.
// The build is shared by concurrent callers and runs detached from any single
// caller's cancellation; each caller still stops waiting when its own ctx ends.
// Failed builds are not cached.
func (o *Orchestrator) index(ctx context.Context, personaID string) (vectorstore.Index, error) {
	o.mu.RLock()
	ix, ok := o.indexes[personaID]
	o.mu.RUnlock()
	if ok {
		return ix, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := o.builds.DoChan(personaID, func() (any, error) {
		return o.buildIndex(buildCtx, personaID)
	})
	select {
	case <-ctx.Done():
		return nil, stageErr(StageIndex, personaID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(vectorstore.Index), nil
	}
}

func (o *Orchestrator) buildIndex(ctx context.Context, personaID string) (vectorstore.Index, error) {
	o.mu.RLock()
	ix, ok := o.indexes[personaID]
	o.mu.RUnlock()
	if ok {
		return ix, nil
	}

	corpus, err := o.corpora.Load(ctx, personaID)
	if err != nil {
		return nil, stageErr(StageCorpus, personaID, err)
	}
	start := o.now()
	emb, err := o.newEmbedder()
	if err != nil {
		return nil, stageErr(StageIndex, personaID, fmt.Errorf("create embedder: %w", err))
	}
	ix, err = o.build(ctx, corpus, emb)
	if err != nil {
		return nil, stageErr(StageIndex, personaID, err)
	}

	o.mu.Lock()
	o.indexes[personaID] = ix
	o.mu.Unlock()
	o.logger.Info().
		Str("persona", personaID).
		Str("embedder", emb.Name()).
		Int("records", corpus.Len()).
		Int("dimension", ix.Dimension()).
		Dur("took", o.now().Sub(start)).
		Msg("index built")
	return ix, nil
}
