// Package mcp serves the tool registry over the Model Context Protocol (stdio).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/usecase/tools"
)

// ServerName is announced to MCP clients.
const ServerName = "vaultctx"

// ToolExecutor lists and runs tools.
type ToolExecutor interface {
	List() []tools.Tool
	Execute(ctx context.Context, name string, args tools.Args) (tools.Result, error)
}

// NewServer registers every tool of exec on a new MCP server.
func NewServer(exec ToolExecutor, version string, logger *zap.Logger) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(ServerName, version, mcpserver.WithToolCapabilities(false))
	for _, t := range exec.List() {
		s.AddTool(toolSchema(t), handler(exec, t.Name, logger))
	}
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func ServeStdio(s *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(s)
}

func toolSchema(t tools.Tool) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(t.Description),
		mcp.WithToolAnnotation(annotation(t.ReadOnly)),
	}
	for _, p := range t.Params {
		propOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		if len(p.Enum) > 0 {
			propOpts = append(propOpts, mcp.Enum(p.Enum...))
		}
		switch p.Type {
		case tools.TypeNumber:
			opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
		case tools.TypeBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, propOpts...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func annotation(readOnly bool) mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(readOnly),
		DestructiveHint: mcp.ToBoolPtr(false),
		IdempotentHint:  mcp.ToBoolPtr(readOnly),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}
}

// handler reports tool failures as error results. Only an unencodable result fails the call.
func handler(exec ToolExecutor, name string, logger *zap.Logger) mcpserver.ToolHandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := exec.Execute(ctx, name, tools.Args(req.GetArguments()))
		if err != nil {
			logger.Debug("mcp tool failed", zap.String("tool", name), zap.Error(err))
			return mcp.NewToolResultError(errorMessage(err)), nil
		}

		if res.Text != "" {
			return mcp.NewToolResultText(res.Text), nil
		}
		body, err := json.MarshalIndent(res.Content, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// errorMessage keeps validation details and hides transport internals behind their sentinel.
func errorMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	for _, s := range []error{
		domain.ErrUnknownTool,
		domain.ErrNotFound,
		domain.ErrCircuitOpen,
		domain.ErrUpstreamUnavailable,
		domain.ErrTimeout,
		domain.ErrLLMUnavailable,
		domain.ErrLLMQuotaExceeded,
		domain.ErrLLMProvider,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}
