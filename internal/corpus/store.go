// Package corpus loads persona fact corpora and caches them for the process lifetime.
package corpus

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"personarag/internal/domain"
)

// Store loads each persona's corpus once and serves the cached copy afterwards.
// Concurrent first loads of the same persona share a single read.
type Store struct {
	personas map[string]domain.Persona
	readFile func(string) ([]byte, error)
	logger   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*domain.Corpus
	loads singleflight.Group
	reads int
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithReadFile replaces os.ReadFile, mainly for tests.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(s *Store) { s.readFile = fn }
}

func NewStore(personas []domain.Persona, opts ...Option) *Store {
	s := &Store{
		personas: make(map[string]domain.Persona, len(personas)),
		readFile: os.ReadFile,
		logger:   zerolog.Nop(),
		cache:    make(map[string]*domain.Corpus),
	}
	for _, p := range personas {
		s.personas[p.ID] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Persona looks up a registered persona.
func (s *Store) Persona(id string) (domain.Persona, bool) {
	p, ok := s.personas[id]
	return p, ok
}

// Load returns the persona's corpus, reading it from its source on first use.
// Failed loads are not cached.
func (s *Store) Load(ctx context.Context, personaID string) (*domain.Corpus, error) {
	s.mu.RLock()
	c, ok := s.cache[personaID]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	ch := s.loads.DoChan(personaID, func() (any, error) {
		s.mu.RLock()
		c, ok := s.cache[personaID]
		s.mu.RUnlock()
		if ok {
			return c, nil
		}
		c, err := s.read(personaID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[personaID] = c
		s.mu.Unlock()
		return c, nil
	})
	select {
	case <-ctx.Done():
		return nil, &domain.CorpusLoadError{PersonaID: personaID, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Corpus), nil
	}
}

// Reads reports how many times a corpus source has been read.
func (s *Store) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}

func (s *Store) read(personaID string) (*domain.Corpus, error) {
	p, ok := s.personas[personaID]
	if !ok {
		return nil, &domain.CorpusLoadError{PersonaID: personaID, Err: domain.ErrUnknownPersona}
	}
	if p.CorpusSource == "" {
		return nil, &domain.CorpusLoadError{PersonaID: personaID, Err: fmt.Errorf("no corpus source configured")}
	}

	start := time.Now()
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()

	data, err := s.readFile(p.CorpusSource)
	if err != nil {
		return nil, &domain.CorpusLoadError{PersonaID: personaID, Source: p.CorpusSource, Err: err}
	}
	records, err := DecoderFor(p.CorpusSource)(data)
	if err != nil {
		return nil, &domain.CorpusLoadError{PersonaID: personaID, Source: p.CorpusSource, Err: err}
	}

	s.logger.Debug().
		Str("persona", personaID).
		Str("source", p.CorpusSource).
		Int("records", len(records)).
		Dur("took", time.Since(start)).
		Msg("corpus loaded")

	return &domain.Corpus{PersonaID: personaID, Source: p.CorpusSource, Records: records}, nil
}
