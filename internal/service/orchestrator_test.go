package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personarag/internal/corpus"
	"personarag/internal/domain"
	"personarag/internal/embedding"
	"personarag/internal/embedding/hashing"
	"personarag/internal/generation/openai"
	"personarag/internal/summarizer"
)

// axisEmbedder places known texts on a line so distances are easy to reason about.
type axisEmbedder struct {
	positions map[string]float64
	embedErr  error
}

func (e *axisEmbedder) Name() string                  { return "axis" }
func (e *axisEmbedder) Prepare(corpus []string) error { return nil }
func (e *axisEmbedder) Dimension() int                { return 1 }

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	return []float64{e.positions[text]}, nil
}

// recordingGenerator captures requests and returns a canned reply.
type recordingGenerator struct {
	mu       sync.Mutex
	requests []domain.GenerationRequest
	reply    string
	err      error
}

func (g *recordingGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return g.reply, g.err
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func writeCorpus(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func abcSetup(t *testing.T, gen *recordingGenerator) (*Orchestrator, *corpus.Store) {
	t.Helper()
	path := writeCorpus(t, "abc.json", `[{"text":"A"},{"text":"B"},{"text":"C"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "abc", DisplayName: "ABC", CorpusSource: path}})
	emb := &axisEmbedder{positions: map[string]float64{"A": 1, "B": 2, "C": 3, "near A": 0}}
	return NewOrchestrator(store, embedding.Shared(emb), gen), store
}

func TestRespondGroundsOnNearestRecords(t *testing.T) {
	gen := &recordingGenerator{reply: "Hi there"}
	o, _ := abcSetup(t, gen)

	turn, err := o.Respond(context.Background(), "abc", "near A")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, turn.Role)
	assert.Equal(t, "Hi there", turn.Content)

	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, "A\nB\nC", req.GroundingContext)
	assert.Equal(t, "near A", req.Utterance)
	assert.Equal(t, "ABC", req.Persona.DisplayName)
}

func TestRetrieveOrdersByDistanceNotInsertion(t *testing.T) {
	path := writeCorpus(t, "abc.json", `[{"text":"A"},{"text":"B"},{"text":"C"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "abc", CorpusSource: path}})
	emb := &axisEmbedder{positions: map[string]float64{"A": 10, "B": 4, "C": 7, "q": 3}}
	o := NewOrchestrator(store, embedding.Shared(emb), &recordingGenerator{reply: "ok"})

	ret, err := o.Retrieve(context.Background(), domain.Query{PersonaID: "abc", Utterance: "q"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, ret.Hits.Indices())
	assert.Equal(t, "B\nC\nA", ret.Context)
}

func TestRetrieveUsesConfiguredTopK(t *testing.T) {
	path := writeCorpus(t, "abc.json", `[{"text":"A"},{"text":"B"},{"text":"C"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "abc", CorpusSource: path}})
	emb := &axisEmbedder{positions: map[string]float64{"A": 1, "B": 2, "C": 3, "q": 2.9}}
	o := NewOrchestrator(store, embedding.Shared(emb), &recordingGenerator{reply: "ok"}, WithTopK(1))

	ret, err := o.Retrieve(context.Background(), domain.Query{PersonaID: "abc", Utterance: "q"})
	require.NoError(t, err)
	assert.Equal(t, "C", ret.Context)
}

func TestHandleTurnAppendsToSession(t *testing.T) {
	gen := &recordingGenerator{reply: "Sure!"}
	o, _ := abcSetup(t, gen)
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return fixed }

	sess, err := o.NewSession("abc")
	require.NoError(t, err)

	reply, err := o.HandleTurn(context.Background(), sess, "near A")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Content: "near A", At: fixed},
		{Role: domain.RoleAssistant, Content: "Sure!", At: fixed},
	}, sess.History())
	assert.Equal(t, reply, sess.History()[1])
}

func TestHandleTurnGenerationFailureLeavesSessionUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("TEST_TURN_KEY", "k")
	client, err := openai.NewClient(openai.Config{
		BaseURL:    srv.URL,
		APIKeyEnv:  "TEST_TURN_KEY",
		Timeout:    time.Second,
		HTTPClient: &http.Client{Transport: &http.Transport{DisableKeepAlives: true}},
	})
	require.NoError(t, err)

	path := writeCorpus(t, "jay.json", `[{"text":"Loves milk tea"},{"text":"Plays piano"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "jay", CorpusSource: path}})
	o := NewOrchestrator(store, func() (embedding.Embedder, error) { return hashing.New(64), nil }, client)

	sess, err := o.NewSession("jay")
	require.NoError(t, err)
	turn, err := o.HandleTurn(context.Background(), sess, "What do you drink?")
	require.Error(t, err)
	assert.Equal(t, domain.Turn{}, turn)
	assert.Zero(t, sess.Len())

	var orchErr *OrchestratorError
	require.True(t, errors.As(err, &orchErr))
	assert.Equal(t, StageGeneration, orchErr.Stage)
	var genErr *domain.GenerationServiceError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, http.StatusInternalServerError, genErr.StatusCode)
}

func TestRespondEmptyCorpusNeverGenerates(t *testing.T) {
	path := writeCorpus(t, "empty.json", `[]`)
	store := corpus.NewStore([]domain.Persona{{ID: "empty", CorpusSource: path}})
	gen := &recordingGenerator{reply: "should not happen"}
	o := NewOrchestrator(store, embedding.Shared(hashing.New(8)), gen)

	_, err := o.Respond(context.Background(), "empty", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
	var orchErr *OrchestratorError
	require.True(t, errors.As(err, &orchErr))
	assert.Equal(t, StageIndex, orchErr.Stage)
	assert.Zero(t, gen.calls())
}

func TestRespondStageErrors(t *testing.T) {
	path := writeCorpus(t, "abc.json", `[{"text":"A"}]`)
	bad := writeCorpus(t, "bad.json", `{"text":"A"}`)
	store := corpus.NewStore([]domain.Persona{
		{ID: "abc", CorpusSource: path},
		{ID: "bad", CorpusSource: bad},
	})

	tests := []struct {
		name      string
		persona   string
		utterance string
		embedder  embedding.Factory
		generator *recordingGenerator
		stage     Stage
		target    any
	}{
		{"blank utterance", "abc", "   ", embedding.Shared(hashing.New(8)), &recordingGenerator{reply: "x"}, StageInput, nil},
		{"unknown persona", "nobody", "hi", embedding.Shared(hashing.New(8)), &recordingGenerator{reply: "x"}, StageCorpus, new(*domain.CorpusLoadError)},
		{"malformed corpus", "bad", "hi", embedding.Shared(hashing.New(8)), &recordingGenerator{reply: "x"}, StageCorpus, new(*domain.CorpusLoadError)},
		{"embedder factory", "abc", "hi", func() (embedding.Embedder, error) { return nil, errors.New("no model") }, &recordingGenerator{reply: "x"}, StageIndex, nil},
		{"generator error", "abc", "hi", embedding.Shared(hashing.New(8)), &recordingGenerator{err: &domain.GenerationServiceError{StatusCode: 503}}, StageGeneration, new(*domain.GenerationServiceError)},
		{"blank completion", "abc", "hi", embedding.Shared(hashing.New(8)), &recordingGenerator{reply: " \n"}, StageGeneration, new(*domain.GenerationServiceError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator(store, tt.embedder, tt.generator)
			turn, err := o.Respond(context.Background(), tt.persona, tt.utterance)
			require.Error(t, err)
			assert.Empty(t, turn.Content)

			var orchErr *OrchestratorError
			require.True(t, errors.As(err, &orchErr))
			assert.Equal(t, tt.stage, orchErr.Stage)
			assert.Equal(t, tt.persona, orchErr.PersonaID)
			if tt.target != nil {
				assert.True(t, errors.As(err, tt.target))
			}
		})
	}
}

func TestRespondEmbedStageError(t *testing.T) {
	path := writeCorpus(t, "abc.json", `[{"text":"A"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "abc", CorpusSource: path}})
	emb := &axisEmbedder{positions: map[string]float64{"A": 1}}
	o := NewOrchestrator(store, embedding.Shared(emb), &recordingGenerator{reply: "x"})
	require.NoError(t, o.Warm(context.Background(), "abc"))

	emb.embedErr = errors.New("embedding service down")
	_, err := o.Respond(context.Background(), "abc", "hi")
	var orchErr *OrchestratorError
	require.True(t, errors.As(err, &orchErr))
	assert.Equal(t, StageEmbed, orchErr.Stage)
}

func TestIndexIsBuiltOncePerPersona(t *testing.T) {
	path := writeCorpus(t, "jay.json", `[{"text":"Loves milk tea"},{"text":"Plays piano"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "jay", CorpusSource: path}})
	var built atomic.Int32
	factory := func() (embedding.Embedder, error) {
		built.Add(1)
		return hashing.New(32), nil
	}
	o := NewOrchestrator(store, factory, &recordingGenerator{reply: "ok"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Respond(context.Background(), "jay", "tea?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err := o.Respond(context.Background(), "jay", "piano?")
	require.NoError(t, err)

	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, 1, store.Reads())
}

func TestFailedIndexBuildIsRetriedNextTurn(t *testing.T) {
	path := writeCorpus(t, "abc.json", `[{"text":"A"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "abc", CorpusSource: path}})
	fail := true
	factory := func() (embedding.Embedder, error) {
		if fail {
			return nil, errors.New("warming up")
		}
		return hashing.New(8), nil
	}
	o := NewOrchestrator(store, factory, &recordingGenerator{reply: "ok"})

	_, err := o.Respond(context.Background(), "abc", "hi")
	require.Error(t, err)
	fail = false
	_, err = o.Respond(context.Background(), "abc", "hi")
	require.NoError(t, err)
}

func TestNewSessionUnknownPersona(t *testing.T) {
	o, _ := abcSetup(t, &recordingGenerator{reply: "x"})
	_, err := o.NewSession("ghost")
	assert.ErrorIs(t, err, domain.ErrUnknownPersona)
}

func TestHandleTurnNilSession(t *testing.T) {
	o, _ := abcSetup(t, &recordingGenerator{reply: "x"})
	_, err := o.HandleTurn(context.Background(), nil, "hi")
	var orchErr *OrchestratorError
	require.True(t, errors.As(err, &orchErr))
	assert.Equal(t, StageInput, orchErr.Stage)
}

func TestDescribe(t *testing.T) {
	path := writeCorpus(t, "jay.json", `[{"text":"Jay writes songs."},{"text":"Jay plays piano and writes songs."},{"text":"The weather was fine."}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "jay", CorpusSource: path}})
	o := NewOrchestrator(store, embedding.Shared(hashing.New(8)), &recordingGenerator{reply: "x"},
		WithSummarizer(summarizer.NewFrequencySummarizer(), 1))

	got, err := o.Describe(context.Background(), "jay")
	require.NoError(t, err)
	assert.Equal(t, "Jay plays piano and writes songs.", got)

	_, err = o.Describe(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUnknownPersona)
}

// gatedEmbedder blocks Prepare until gate is closed.
type gatedEmbedder struct {
	*hashing.Embedder
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (e *gatedEmbedder) Prepare(corpus []string) error {
	e.once.Do(func() { close(e.started) })
	<-e.gate
	return e.Embedder.Prepare(corpus)
}

func TestCancelledCallerDoesNotFailSharedIndexBuild(t *testing.T) {
	path := writeCorpus(t, "p.json", `[{"text":"Loves milk tea"},{"text":"Plays piano"}]`)
	store := corpus.NewStore([]domain.Persona{{ID: "p", CorpusSource: path}})
	emb := &gatedEmbedder{Embedder: hashing.New(32), started: make(chan struct{}), gate: make(chan struct{})}
	o := NewOrchestrator(store, embedding.Shared(emb), &recordingGenerator{reply: "ok"})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := o.Respond(ctxA, "p", "tea?")
		errA <- err
	}()
	<-emb.started

	errB := make(chan error, 1)
	go func() {
		_, err := o.Respond(context.Background(), "p", "piano?")
		errB <- err
	}()

	// The cancelled caller stops waiting while the build is still held.
	cancelA()
	select {
	case err := <-errA:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		var orchErr *OrchestratorError
		require.True(t, errors.As(err, &orchErr))
		assert.Equal(t, StageIndex, orchErr.Stage)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller stayed blocked on the shared build")
	}

	close(emb.gate)
	require.NoError(t, <-errB)

	// The build completed and was cached despite the first caller leaving.
	_, err := o.Respond(context.Background(), "p", "tea?")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Reads())
}
