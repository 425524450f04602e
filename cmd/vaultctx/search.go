package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/vaultctx/internal/usecase/tools"
)

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		limit     int
		maxTokens int
		strict    bool
		asJSON    bool
		path      string
		ext       string
		tag       string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve a context block for a query",
		Long: `Search the vault and print a token-budgeted context block.

Examples:
  vaultctx search "performance optimization"
  vaultctx search "deploy checklist tag:work" --limit 5
  vaultctx search "meeting notes" --path journal/ --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := tools.Args{"query": args[0], "strict": strict}
			if limit > 0 {
				toolArgs["limit"] = limit
			}
			if maxTokens > 0 {
				toolArgs["max_tokens"] = maxTokens
			}
			for k, v := range map[string]string{"path": path, "ext": ext, "tag": tag} {
				if v != "" {
					toolArgs[k] = v
				}
			}
			return runTool(cmd.Context(), flags, cmd.OutOrStdout(), tools.SearchVault, toolArgs, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum notes to consider (default retrieval.default_limit)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "override context.max_tokens")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of returning partial results when the vault is down")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().StringVar(&path, "path", "", "only notes under this path prefix")
	cmd.Flags().StringVar(&ext, "ext", "", "only notes with this extension")
	cmd.Flags().StringVar(&tag, "tag", "", "only notes with this tag")
	return cmd
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from vault notes with the configured chat model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := tools.Args{"question": args[0]}
			if limit > 0 {
				toolArgs["limit"] = limit
			}
			return runTool(cmd.Context(), flags, cmd.OutOrStdout(), tools.AskVault, toolArgs, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum notes to consider")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newGetCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get [path]",
		Short: "Print a note from the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), flags, cmd.OutOrStdout(), tools.GetFile, tools.Args{"path": args[0]}, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// runTool builds the app, executes one tool and prints its text or JSON result.
func runTool(ctx context.Context, flags *globalFlags, out io.Writer, name string, args tools.Args, asJSON bool) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.tools.Execute(ctx, name, args)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(out, res.Text)
	return err
}
