// Package tools exposes the retrieval pipeline and vault access as named tools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/logger"
	"github.com/kailas-cloud/vaultctx/internal/metrics"
)

// Tool names.
const (
	SearchVault = "search_vault"
	GetFile     = "get_file"
	CreateNote  = "create_note"
	VaultStats  = "vault_stats"
	AskVault    = "ask_vault"
)

// Param types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Param describes one tool argument.
type Param struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Tool describes a registered tool.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	ReadOnly    bool    `json:"read_only"`
}

// Result is the outcome of one execution. Text is a human-readable rendering of Content.
type Result struct {
	ID       string        `json:"execution_id"`
	Tool     string        `json:"tool"`
	Content  any           `json:"content"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration_ns"`
}

type handler func(ctx context.Context, args Args) (content any, text string, err error)

type entry struct {
	tool    Tool
	handler handler
}

// Registry dispatches tool calls by name. Safe for concurrent use once built.
type Registry struct {
	retriever Retriever
	vault     Vault
	llm       LLM
	logger    *zap.Logger
	entries   map[string]entry
	order     []string
}

// New builds the registry. llm may be nil, in which case ask_vault is not registered.
func New(retriever Retriever, vault Vault, llm LLM, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		retriever: retriever,
		vault:     vault,
		llm:       llm,
		logger:    logger,
		entries:   make(map[string]entry),
	}
	r.register(searchVaultTool(), r.searchVault)
	r.register(getFileTool(), r.getFile)
	r.register(createNoteTool(), r.createNote)
	r.register(vaultStatsTool(), r.vaultStats)
	if llm != nil {
		r.register(askVaultTool(), r.askVault)
	}
	return r
}

func (r *Registry) register(t Tool, h handler) {
	r.entries[t.Name] = entry{tool: t, handler: h}
	r.order = append(r.order, t.Name)
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

// Execute runs a tool. Unknown names wrap domain.ErrUnknownTool; ask_vault without an LLM wraps
// domain.ErrLLMUnavailable.
func (r *Registry) Execute(ctx context.Context, name string, args Args) (Result, error) {
	e, ok := r.entries[name]
	if !ok {
		if name == AskVault {
			return Result{}, fmt.Errorf("%s: %w", name, domain.ErrLLMUnavailable)
		}
		return Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
	if args == nil {
		args = Args{}
	}

	id := uuid.New().String()
	log := logger.FromContextOr(ctx, r.logger).With(zap.String("tool", name), zap.String("execution_id", id))

	start := time.Now()
	content, text, err := e.handler(ctx, args)
	duration := time.Since(start)

	if err != nil {
		metrics.ToolExecutionsTotal.WithLabelValues(name, "error").Inc()
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
			log.Info("tool rejected", zap.Error(err))
		} else {
			log.Warn("tool failed", zap.Duration("duration", duration), zap.Error(err))
		}
		return Result{}, err
	}
	metrics.ToolExecutionsTotal.WithLabelValues(name, "ok").Inc()
	log.Debug("tool executed", zap.Duration("duration", duration))

	return Result{ID: id, Tool: name, Content: content, Text: text, Duration: duration}, nil
}
