package domain

import "time"

// FileInfo is an immutable snapshot of a note taken at fetch time.
type FileInfo struct {
	Name     string
	Path     string
	Content  string
	Modified time.Time
	Size     int64
	Tags     []string
}

// Candidate is a note flowing through one retrieval request together with its current score.
type Candidate struct {
	File           FileInfo
	RelevanceScore float64
}

// ComposedQuery is the tokenized, synonym-expanded form of a raw query.
// Tokens keeps the original terms first, then expansions; Expansions is that trailing part alone.
type ComposedQuery struct {
	Raw        string
	Tokens     []string
	Expansions []string
	Filters    map[string]string
}

// Terms returns the original (non-expanded) tokens.
func (q ComposedQuery) Terms() []string {
	return q.Tokens[:len(q.Tokens)-len(q.Expansions)]
}

// Filter keys understood by the aggregator.
const (
	FilterPath = "path"
	FilterExt  = "ext"
	FilterTag  = "tag"
)

// Context is the token-budgeted block handed to an LLM prompt.
type Context struct {
	Text       string
	TokenCount int
	Sources    []Source
}

// Source records which note contributed to a Context. Offset is the byte offset of the first
// included chunk in the note content; Tokens counts the included content words.
type Source struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Tokens int    `json:"tokens"`
	Chunks int    `json:"chunks"`
}
