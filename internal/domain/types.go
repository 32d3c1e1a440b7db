package domain

import "time"

// Persona is a configured conversational identity with its own knowledge corpus.
type Persona struct {
	ID           string
	DisplayName  string
	CorpusSource string
	Description  string
	UserAvatar   string
	BotAvatar    string
}

// Name returns the display name, falling back to the id.
func (p Persona) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// CorpusRecord is a single retrievable fact.
type CorpusRecord struct {
	Text string `json:"text" yaml:"text"`
}

// Corpus is the ordered fact set owned by one persona. The position of a
// record is its index in embeddings and retrieval results.
type Corpus struct {
	PersonaID string
	Source    string
	Records   []CorpusRecord
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// Texts returns the record texts in corpus order.
func (c *Corpus) Texts() []string {
	out := make([]string, len(c.Records))
	for i, r := range c.Records {
		out[i] = r.Text
	}
	return out
}

// Query is one user utterance addressed to a persona.
type Query struct {
	PersonaID string
	Utterance string
}

// Hit is a single nearest-neighbour match.
type Hit struct {
	Index    int
	Distance float64
}

// RetrievalResult lists hits nearest first.
type RetrievalResult []Hit

// Indices returns the record indices in result order.
func (r RetrievalResult) Indices() []int {
	out := make([]int, len(r))
	for i, h := range r {
		out[i] = h.Index
	}
	return out
}

// GenerationRequest carries everything the generation service needs for one reply.
type GenerationRequest struct {
	Persona          Persona
	GroundingContext string
	Utterance        string
}

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role
	Content string
	At      time.Time
}
