package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kailas-cloud/vaultctx/internal/perf"
	"github.com/kailas-cloud/vaultctx/internal/transport/memvault"
	"github.com/kailas-cloud/vaultctx/internal/usecase/aggregate"
	"github.com/kailas-cloud/vaultctx/internal/usecase/retrieve"
	"github.com/kailas-cloud/vaultctx/internal/usecase/tools"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	v := memvault.New(map[string]memvault.Note{
		"notes/perf.md": {Content: "Performance optimization: measure first, then tune."},
	})
	mon := perf.NewMonitor()
	agg := aggregate.New(v, mon, aggregate.DefaultConfig(), nil)
	svc := retrieve.New(agg, mon, nil, retrieve.Stages{}, retrieve.DefaultConfig(), nil)
	return tools.New(svc, v, nil, nil)
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return tc.Text
}

func TestToolSchema(t *testing.T) {
	var search tools.Tool
	for _, tool := range newRegistry(t).List() {
		if tool.Name == tools.SearchVault {
			search = tool
		}
	}

	schema := toolSchema(search)
	if schema.Name != tools.SearchVault {
		t.Errorf("expected name %s, got %s", tools.SearchVault, schema.Name)
	}
	if schema.Annotations.ReadOnlyHint == nil || !*schema.Annotations.ReadOnlyHint {
		t.Error("search_vault should be annotated read-only")
	}
	if len(schema.InputSchema.Required) != 1 || schema.InputSchema.Required[0] != "query" {
		t.Errorf("expected only query required, got %v", schema.InputSchema.Required)
	}
	limit, ok := schema.InputSchema.Properties["limit"].(map[string]any)
	if !ok {
		t.Fatalf("limit property missing: %v", schema.InputSchema.Properties)
	}
	if limit["type"] != "number" {
		t.Errorf("expected number limit, got %v", limit["type"])
	}
}

func TestHandler_Success(t *testing.T) {
	r := newRegistry(t)
	h := handler(r, tools.SearchVault, nil)

	res, err := h(context.Background(), call(tools.SearchVault, map[string]any{"query": "performance"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	if text := resultText(t, res); !strings.Contains(text, "notes/perf.md") {
		t.Errorf("expected the note path in %q", text)
	}
}

func TestHandler_ToolError(t *testing.T) {
	r := newRegistry(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"missing query", tools.SearchVault, map[string]any{}, "query"},
		{"missing file", tools.GetFile, map[string]any{"path": "nope.md"}, "not found"},
		{"unknown tool", "drop_vault", map[string]any{}, "unknown tool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := handler(r, tt.tool, nil)(context.Background(), call(tt.tool, tt.args))
			if err != nil {
				t.Fatalf("tool failures must not be protocol errors: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected an error result")
			}
			if text := resultText(t, res); !strings.Contains(text, tt.want) {
				t.Errorf("expected %q in %q", tt.want, text)
			}
		})
	}
}

func TestHandler_NilLoggerOnFailure(t *testing.T) {
	h := handler(newRegistry(t), tools.GetFile, nil)
	res, err := h(context.Background(), call(tools.GetFile, map[string]any{"path": "missing.md"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result")
	}
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(newRegistry(t), "test", nil)
	if s == nil {
		t.Fatal("nil server")
	}
}
