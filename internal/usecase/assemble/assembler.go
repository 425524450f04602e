// Package assemble packs ranked candidates into a word-budgeted context block.
package assemble

import (
	"strings"
	"unicode"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/textutil"
)

// Config configures an Assembler. Budgets are counted in whitespace-separated words.
type Config struct {
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// MaxChunksPerSource caps how many consecutive chunks one note may contribute.
	MaxChunksPerSource int `yaml:"max_chunks_per_source" json:"max_chunks_per_source"`
}

// DefaultConfig returns a 4000 word budget, 300 word chunks and 2 chunks per note.
func DefaultConfig() Config {
	return Config{MaxTokens: 4000, ChunkSize: 300, MaxChunksPerSource: 2}
}

// Assembler is stateless apart from its config.
type Assembler struct {
	cfg Config
}

// New creates an Assembler. Non-positive fields take their defaults.
func New(cfg Config) *Assembler {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxChunksPerSource <= 0 {
		cfg.MaxChunksPerSource = def.MaxChunksPerSource
	}
	return &Assembler{cfg: cfg}
}

// Config returns the effective settings.
func (a *Assembler) Config() Config { return a.cfg }

// AssembleContext walks candidates in order and appends, per note, a header line and its best chunks
// until the next piece would exceed MaxTokens. Assembly stops at the first piece that does not fit,
// so text is only ever cut on chunk boundaries. The best chunk is the one with the most query-token
// hits; following chunks continue from it.
func (a *Assembler) AssembleContext(tokens []string, candidates []domain.Candidate) domain.Context {
	terms := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		terms[strings.ToLower(t)] = struct{}{}
	}

	var (
		sb      strings.Builder
		used    int
		sources []domain.Source
	)

assembly:
	for _, c := range candidates {
		content := c.File.Content
		spans := wordSpans(content)
		if len(spans) == 0 {
			continue
		}

		header := "## " + c.File.Path
		headerWords := textutil.CountWords(header)
		chunks := chunkSpans(len(spans), a.cfg.ChunkSize)
		first := bestChunk(content, spans, chunks, terms)

		src := domain.Source{Path: c.File.Path, Offset: spans[chunks[first][0]].start}
		for k := first; k < len(chunks) && src.Chunks < a.cfg.MaxChunksPerSource; k++ {
			lo, hi := chunks[k][0], chunks[k][1]
			words := hi - lo
			cost := words
			if src.Chunks == 0 {
				cost += headerWords
			}
			if used+cost > a.cfg.MaxTokens {
				if src.Chunks > 0 {
					sources = append(sources, src)
				}
				break assembly
			}

			if src.Chunks == 0 {
				if sb.Len() > 0 {
					sb.WriteString("\n\n")
				}
				sb.WriteString(header)
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n")
			}
			sb.WriteString(content[spans[lo].start:spans[hi-1].end])

			used += cost
			src.Tokens += words
			src.Chunks++
		}
		sources = append(sources, src)
	}

	return domain.Context{Text: sb.String(), TokenCount: used, Sources: sources}
}

type span struct{ start, end int }

// wordSpans returns the byte ranges of whitespace-separated words.
func wordSpans(s string) []span {
	var out []span
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{start, len(s)})
	}
	return out
}

// chunkSpans splits n words into [lo, hi) ranges of at most size words.
func chunkSpans(n, size int) [][2]int {
	out := make([][2]int, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}

// bestChunk returns the index of the chunk with the most query-term hits, the first on ties.
func bestChunk(content string, spans []span, chunks [][2]int, terms map[string]struct{}) int {
	if len(terms) == 0 {
		return 0
	}
	best, bestHits := 0, 0
	for k, ch := range chunks {
		hits := 0
		for _, sp := range spans[ch[0]:ch[1]] {
			for _, tok := range textutil.Tokenize(content[sp.start:sp.end]) {
				if _, ok := terms[tok]; ok {
					hits++
				}
			}
		}
		if hits > bestHits {
			best, bestHits = k, hits
		}
	}
	return best
}
