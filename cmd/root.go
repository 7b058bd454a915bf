// Package cmd defines and implements the CLI commands for the sb2gsd executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sb2gs-service/internal/config"
	"github.com/JakeFAU/sb2gs-service/internal/server"
)

// App is what subcommands need from the assembled service. Run owns
// shutdown, so there is no separate Close. Tests swap in a fake through newApp.
type App interface {
	Run(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfg *config.Config) (App, error) {
	return server.Build(cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sb2gsd",
		Short: "HTTP service that decompiles Scratch projects to goboscript.",
		Long: `sb2gsd downloads a shared Scratch project by id, rebuilds its .sb3
archive, runs the sb2gs decompiler over it, and returns the resulting
goboscript sources as a zip archive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newConfigCmd(&cfgFile))

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
