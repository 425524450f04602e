package tools

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/domain/note"
	"github.com/kailas-cloud/vaultctx/internal/usecase/retrieve"
)

const (
	maxQuerySize   = 10 << 10 // 10KB
	maxContentSize = 1 << 20  // 1MB

	askSystemPrompt = "You answer questions using only the provided notes from the user's vault. " +
		"Cite note paths in square brackets. If the notes do not contain the answer, say so."
)

// --- Tool schemas ---

func searchVaultTool() Tool {
	return Tool{
		Name:        SearchVault,
		Description: "Search the vault and return a token-budgeted context block built from the most relevant notes.",
		ReadOnly:    true,
		Params: []Param{
			{Name: "query", Type: TypeString, Required: true, Description: "Search query. Supports path:, ext: and tag: filters."},
			{Name: "limit", Type: TypeNumber, Description: "Maximum number of notes to consider"},
			{Name: "max_tokens", Type: TypeNumber, Description: "Word budget of the returned context"},
			{Name: "strict", Type: TypeBoolean, Description: "Fail instead of returning partial results when the vault is unavailable"},
			{Name: "path", Type: TypeString, Description: "Only notes under this path prefix"},
			{Name: "ext", Type: TypeString, Description: "Only notes with this extension"},
			{Name: "tag", Type: TypeString, Description: "Only notes with this tag"},
		},
	}
}

func getFileTool() Tool {
	return Tool{
		Name:        GetFile,
		Description: "Read a note with its tags and modification time.",
		ReadOnly:    true,
		Params: []Param{
			{Name: "path", Type: TypeString, Required: true, Description: "Note path relative to the vault root"},
		},
	}
}

func createNoteTool() Tool {
	return Tool{
		Name:        CreateNote,
		Description: "Create or overwrite a note, or append to an existing one.",
		Params: []Param{
			{Name: "path", Type: TypeString, Required: true, Description: "Note path; .md is added when there is no extension"},
			{Name: "content", Type: TypeString, Required: true, Description: "Markdown content"},
			{Name: "mode", Type: TypeString, Description: "create (default) or append", Enum: []string{"create", "append"}},
		},
	}
}

func vaultStatsTool() Tool {
	return Tool{
		Name:        VaultStats,
		Description: "Report pipeline performance, vault cache and circuit breaker state.",
		ReadOnly:    true,
	}
}

func askVaultTool() Tool {
	return Tool{
		Name:        AskVault,
		Description: "Answer a question with the configured chat model, grounded on notes retrieved from the vault.",
		ReadOnly:    true,
		Params: []Param{
			{Name: "question", Type: TypeString, Required: true, Description: "Question to answer"},
			{Name: "limit", Type: TypeNumber, Description: "Maximum number of notes to consider"},
		},
	}
}

// --- Handlers ---

// SearchContent is the structured result of search_vault.
type SearchContent struct {
	Query      string          `json:"query"`
	Tokens     []string        `json:"tokens"`
	Context    string          `json:"context"`
	TokenCount int             `json:"token_count"`
	Sources    []domain.Source `json:"sources"`
	Candidates []ScoredPath    `json:"candidates"`
	Degraded   bool            `json:"degraded,omitempty"`
}

// ScoredPath is a candidate path with its final score.
type ScoredPath struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

func (r *Registry) searchVault(ctx context.Context, args Args) (any, string, error) {
	query, err := args.RequireString("query")
	if err != nil {
		return nil, "", err
	}
	if len(query) > maxQuerySize {
		return nil, "", domain.NewValidationError("query", "exceeds 10KB")
	}
	limit, err := args.Int("limit", 0)
	if err != nil {
		return nil, "", err
	}
	maxTokens, err := args.Int("max_tokens", 0)
	if err != nil {
		return nil, "", err
	}
	if limit < 0 || maxTokens < 0 {
		return nil, "", domain.NewValidationError("limit", "must not be negative")
	}
	strict, err := args.Bool("strict", false)
	if err != nil {
		return nil, "", err
	}

	var filters map[string]string
	for _, key := range []string{domain.FilterPath, domain.FilterExt, domain.FilterTag} {
		if v := args.String(key, ""); v != "" {
			if filters == nil {
				filters = make(map[string]string)
			}
			filters[key] = v
		}
	}

	res, err := r.retriever.RetrieveWithOptions(ctx, query, retrieve.Options{
		Limit:     limit,
		Strict:    strict,
		Filters:   filters,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, "", err
	}

	content := SearchContent{
		Query:      query,
		Tokens:     res.Query.Tokens,
		Context:    res.Context.Text,
		TokenCount: res.Context.TokenCount,
		Sources:    res.Context.Sources,
		Candidates: make([]ScoredPath, 0, len(res.Candidates)),
		Degraded:   res.Degraded,
	}
	for _, c := range res.Candidates {
		content.Candidates = append(content.Candidates, ScoredPath{Path: c.File.Path, Score: c.RelevanceScore})
	}
	return content, renderSearch(content), nil
}

// FileContent is the structured result of get_file.
type FileContent struct {
	Path     string    `json:"path"`
	Content  string    `json:"content"`
	Tags     []string  `json:"tags,omitempty"`
	Modified time.Time `json:"modified,omitzero"`
	Size     int64     `json:"size"`
}

func (r *Registry) getFile(ctx context.Context, args Args) (any, string, error) {
	p, err := args.RequireString("path")
	if err != nil {
		return nil, "", err
	}
	resp, err := r.vault.Get(ctx, p)
	if err != nil {
		return nil, "", err
	}
	f, err := note.Decode(p, resp)
	if err != nil {
		return nil, "", err
	}
	return FileContent{Path: f.Path, Content: f.Content, Tags: f.Tags, Modified: f.Modified, Size: f.Size}, f.Content, nil
}

// NoteWritten is the structured result of create_note.
type NoteWritten struct {
	Path  string `json:"path"`
	Mode  string `json:"mode"`
	Bytes int    `json:"bytes"`
}

func (r *Registry) createNote(ctx context.Context, args Args) (any, string, error) {
	p, err := args.RequireString("path")
	if err != nil {
		return nil, "", err
	}
	content, ok := args["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, "", domain.NewValidationError("content", "is required")
	}
	if len(content) > maxContentSize {
		return nil, "", domain.NewValidationError("content", "exceeds 1MB")
	}
	if strings.Contains(p, "..") {
		return nil, "", domain.NewValidationError("path", "must not contain '..'")
	}
	if path.Ext(p) == "" {
		p += ".md"
	}

	mode := strings.ToLower(args.String("mode", "create"))
	switch mode {
	case "create":
		_, err = r.vault.Put(ctx, p, []byte(content))
	case "append":
		_, err = r.vault.Post(ctx, p, []byte(content))
	default:
		return nil, "", domain.NewValidationError("mode", "must be create or append")
	}
	if err != nil {
		return nil, "", err
	}

	out := NoteWritten{Path: p, Mode: mode, Bytes: len(content)}
	return out, fmt.Sprintf("%s %s (%d bytes)", verb(mode), p, len(content)), nil
}

func (r *Registry) vaultStats(_ context.Context, _ Args) (any, string, error) {
	st := r.retriever.GetStats()
	text := fmt.Sprintf("health: %s, operations: %d, cache entries: %d, circuit breaker: %s",
		st.Report.Health, len(st.Report.Operations), st.Cache.Entries, st.Breaker.StateName)
	return st, text, nil
}

// Answer is the structured result of ask_vault.
type Answer struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	Model    string          `json:"model"`
	Sources  []domain.Source `json:"sources"`
	Degraded bool            `json:"degraded,omitempty"`
}

func (r *Registry) askVault(ctx context.Context, args Args) (any, string, error) {
	question, err := args.RequireString("question")
	if err != nil {
		return nil, "", err
	}
	if len(question) > maxQuerySize {
		return nil, "", domain.NewValidationError("question", "exceeds 10KB")
	}
	limit, err := args.Int("limit", 0)
	if err != nil {
		return nil, "", err
	}

	res, err := r.retriever.RetrieveWithOptions(ctx, question, retrieve.Options{Limit: max(limit, 0)})
	if err != nil {
		return nil, "", err
	}

	out := Answer{Question: question, Model: r.llm.Model(), Sources: res.Context.Sources, Degraded: res.Degraded}
	if res.Context.TokenCount == 0 {
		out.Answer = "No relevant notes were found in the vault."
		return out, out.Answer, nil
	}

	prompt := fmt.Sprintf("Notes:\n\n%s\n\nQuestion: %s", res.Context.Text, question)
	out.Answer, err = r.llm.Complete(ctx, askSystemPrompt, prompt)
	if err != nil {
		return nil, "", err
	}
	return out, out.Answer, nil
}

// --- Rendering ---

func renderSearch(c SearchContent) string {
	if c.TokenCount == 0 {
		if c.Degraded {
			return fmt.Sprintf("Vault unavailable; no results for %q.", c.Query)
		}
		return fmt.Sprintf("No results found for query: %q", c.Query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Context for %q (%d sources, %d tokens)", c.Query, len(c.Sources), c.TokenCount)
	if c.Degraded {
		sb.WriteString(", partial: vault unavailable")
	}
	sb.WriteString("\n\n")
	sb.WriteString(c.Context)
	return sb.String()
}

func verb(mode string) string {
	if mode == "append" {
		return "appended to"
	}
	return "wrote"
}
