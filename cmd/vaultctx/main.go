package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/vaultctx/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	env        string
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "vaultctx",
		Short:         "Retrieval pipeline that turns a personal notes vault into LLM-ready context",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.env, "env", "", "environment name, selects config/<env>.yaml (default $ENV or local)")
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "explicit config file path")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level: debug, info, warn, error")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newSearchCmd(flags))
	root.AddCommand(newAskCmd(flags))
	root.AddCommand(newGetCmd(flags))
	root.AddCommand(newMCPCmd(flags))
	root.AddCommand(newVersionCmd())

	return root
}
