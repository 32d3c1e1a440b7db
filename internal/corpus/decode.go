package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"personarag/internal/chunker"
	"personarag/internal/domain"
)

// ErrMalformed marks a corpus document that is not a sequence of text records.
var ErrMalformed = errors.New("malformed corpus")

// Decoder turns raw corpus bytes into ordered records.
type Decoder func(data []byte) ([]domain.CorpusRecord, error)

// rawRecord keeps text as a pointer so a missing field is distinguishable from "".
type rawRecord struct {
	Text *string `json:"text" yaml:"text"`
}

// DecoderFor picks a decoder from the file extension. Unknown extensions are
// treated as JSON, the format the corpora were originally shipped in.
func DecoderFor(path string) Decoder {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return DecodeJSONLines
	case ".yaml", ".yml":
		return DecodeYAML
	case ".txt":
		return DecodeText
	default:
		return DecodeJSON
	}
}

// DecodeJSON decodes `[{"text": "..."}, ...]`.
func DecodeJSON(data []byte) ([]domain.CorpusRecord, error) {
	var raw []rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is not a list of records", ErrMalformed)
	}
	return toRecords(raw)
}

// DecodeJSONLines decodes one `{"text": "..."}` object per non-blank line.
func DecodeJSONLines(data []byte) ([]domain.CorpusRecord, error) {
	var raw []rawRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var r rawRecord
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		raw = append(raw, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return toRecords(raw)
}

// DecodeYAML decodes a YAML sequence of mappings with a `text` key.
func DecodeYAML(data []byte) ([]domain.CorpusRecord, error) {
	var raw []rawRecord
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is not a list of records", ErrMalformed)
	}
	return toRecords(raw)
}

// DecodeText treats every sentence of a plain-text file as one record.
func DecodeText(data []byte) ([]domain.CorpusRecord, error) {
	return chunker.NewSentenceChunker(1, 0).Chunk(string(data)), nil
}

func toRecords(raw []rawRecord) ([]domain.CorpusRecord, error) {
	out := make([]domain.CorpusRecord, 0, len(raw))
	for i, r := range raw {
		if r.Text == nil {
			return nil, fmt.Errorf("%w: record %d has no text field", ErrMalformed, i)
		}
		if strings.TrimSpace(*r.Text) == "" {
			return nil, fmt.Errorf("%w: record %d has blank text", ErrMalformed, i)
		}
		out = append(out, domain.CorpusRecord{Text: *r.Text})
	}
	return out, nil
}
