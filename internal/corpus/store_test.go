package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personarag/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	want := []domain.CorpusRecord{{Text: "A"}, {Text: "B"}, {Text: "C"}}
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "p.json", `[{"text":"A"},{"text":"B","source":"wiki"},{"text":"C"}]`},
		{"jsonl", "p.jsonl", "{\"text\":\"A\"}\n\n{\"text\":\"B\"}\n{\"text\":\"C\"}\n"},
		{"yaml", "p.yaml", "- text: A\n- text: B\n- text: C\n"},
		{"txt", "p.txt", "A.\nB.\nC.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			s := NewStore([]domain.Persona{{ID: "p", CorpusSource: path}})

			c, err := s.Load(context.Background(), "p")
			require.NoError(t, err)
			assert.Equal(t, "p", c.PersonaID)
			if tt.name == "txt" {
				assert.Equal(t, []string{"A.", "B.", "C."}, c.Texts())
				return
			}
			assert.Equal(t, want, c.Records)
		})
	}
}

func TestLoadIsCached(t *testing.T) {
	path := writeFile(t, t.TempDir(), "jay.json", `[{"text":"piano"}]`)
	s := NewStore([]domain.Persona{{ID: "jay", CorpusSource: path}})

	first, err := s.Load(context.Background(), "jay")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	second, err := s.Load(context.Background(), "jay")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Reads())
}

func TestLoadConcurrentFirstAccessReadsOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	readFile := func(string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(`[{"text":"A"}]`), nil
	}
	s := NewStore([]domain.Persona{{ID: "jay", CorpusSource: "jay.json"}}, WithReadFile(readFile))

	const n = 16
	var wg sync.WaitGroup
	results := make([]*domain.Corpus, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Load(context.Background(), "jay")
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		persona  domain.Persona
		loadID   string
		wantIs   error
		contains string
	}{
		{"unknown persona", domain.Persona{ID: "a", CorpusSource: "x.json"}, "b", domain.ErrUnknownPersona, "unknown persona"},
		{"missing file", domain.Persona{ID: "a", CorpusSource: filepath.Join(dir, "nope.json")}, "a", os.ErrNotExist, "nope.json"},
		{"not a sequence", domain.Persona{ID: "a", CorpusSource: writeFile(t, dir, "obj.json", `{"text":"A"}`)}, "a", ErrMalformed, ""},
		{"null json document", domain.Persona{ID: "a", CorpusSource: writeFile(t, dir, "null.json", `null`)}, "a", ErrMalformed, "not a list of records"},
		{"null yaml document", domain.Persona{ID: "a", CorpusSource: writeFile(t, dir, "null.yaml", "null\n")}, "a", ErrMalformed, "not a list of records"},
		{"missing text field", domain.Persona{ID: "a", CorpusSource: writeFile(t, dir, "nofield.json", `[{"body":"A"}]`)}, "a", ErrMalformed, "no text field"},
		{"blank text", domain.Persona{ID: "a", CorpusSource: writeFile(t, dir, "blank.yaml", "- text: '  '\n")}, "a", ErrMalformed, "blank text"},
		{"bad jsonl line", domain.Persona{ID: "a", CorpusSource: writeFile(t, dir, "bad.jsonl", "{\"text\":\"A\"}\nnot json\n")}, "a", ErrMalformed, "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore([]domain.Persona{tt.persona})
			_, err := s.Load(context.Background(), tt.loadID)
			require.Error(t, err)

			var loadErr *domain.CorpusLoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, tt.loadID, loadErr.PersonaID)
			assert.ErrorIs(t, err, tt.wantIs)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestLoadFailureIsNotCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.json")
	s := NewStore([]domain.Persona{{ID: "late", CorpusSource: path}})

	_, err := s.Load(context.Background(), "late")
	require.Error(t, err)

	writeFile(t, dir, "late.json", `[{"text":"now here"}]`)
	c, err := s.Load(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestLoadEmptyCorpusIsNotALoadError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.json", `[]`)
	s := NewStore([]domain.Persona{{ID: "e", CorpusSource: path}})

	c, err := s.Load(context.Background(), "e")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestLoadHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	s := NewStore([]domain.Persona{{ID: "slow", CorpusSource: "slow.json"}}, WithReadFile(func(string) ([]byte, error) {
		<-block
		return []byte(`[]`), nil
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Load(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
