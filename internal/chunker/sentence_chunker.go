package chunker

import (
	"regexp"
	"strings"

	"personarag/internal/domain"
)

// SentenceChunker splits plain text into corpus records of a few sentences,
// optionally overlapping.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 1
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		// Latin and CJK terminators; a line break also ends a sentence.
		splitter: regexp.MustCompile(`[^.!?。！？\n]+(?:[.!?。！？]+|\n|$)`),
	}
}

// Chunk returns records in text order. Blank input yields no records.
func (c *SentenceChunker) Chunk(text string) []domain.CorpusRecord {
	raw := c.splitter.FindAllString(text, -1)
	sentences := raw[:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return nil
	}
	var records []domain.CorpusRecord
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		records = append(records, domain.CorpusRecord{Text: joinSentences(sentences[i:end])})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return records
}

// joinSentences separates Latin sentences with a space and keeps CJK ones tight.
func joinSentences(sentences []string) string {
	var b strings.Builder
	for i, s := range sentences {
		if i > 0 && !endsWithCJK(sentences[i-1]) {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}

func endsWithCJK(s string) bool {
	return strings.HasSuffix(s, "。") || strings.HasSuffix(s, "！") || strings.HasSuffix(s, "？")
}
