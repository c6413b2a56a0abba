// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for reups.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/natelust/reups/internal/config"
	"github.com/natelust/reups/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug logging.
	verbose bool
	// cfgFile allows specifying a custom config file.
	cfgFile string
	// databases collects extra stack roots from --database flags.
	databases []string
	// noCache disables the stack cache for this invocation.
	noCache bool

	// rootCmd represents the base command when called without any
	// subcommands.
	rootCmd = &cobra.Command{
		Use:           "reups",
		Short:         "A fast environment-modules package manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: TitleStyle.Render("reups") + SubtitleStyle.Render(" - a fast EUPS-compatible package manager") + `

reups inspects one or more on-disk product databases, resolves a
requested product together with its dependency graph, and prints the
shell commands that make the chosen versions active in the calling
shell.

Because a child process cannot mutate its parent's environment, the
output is meant to be evaluated by a shell function:

  rsetup() { eval "$(reups setup "$@")"; }
  runsetup() { eval "$(reups unsetup "$@")"; }

` + SubtitleStyle.Render("Examples:") + `
  reups list                 List every known product
  reups setup foo            Resolve foo and print the env directives
  reups setup foo -t stable  Prefer the stable tag
  reups unsetup foo          Print the directives that undo a setup`,
	}
)

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/reups/config.cue)")
	rootCmd.PersistentFlags().StringArrayVarP(&databases, "database", "Z", nil, "extra stack root to search (repeatable, searched first)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "nocache", false, "bypass the stack cache")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(unsetupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the command tree. It is called once from main.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initLogging installs the process-wide slog handler. Everything below
// the CLI logs through slog; diagnostics always go to stderr so stdout
// stays clean for directives the shell will eval.
func initLogging() {
	if cfgFile != "" {
		config.SetConfigFileOverride(cfgFile)
	}

	logger := charmlog.New(os.Stderr)
	if verbose {
		logger.SetLevel(charmlog.DebugLevel)
	} else {
		logger.SetLevel(charmlog.WarnLevel)
	}
	slog.SetDefault(slog.New(logger))
}

// loadConfig resolves the effective configuration, folding in the
// persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !verbose && cfg.UI.Verbose {
		verbose = true
		initLogging()
	}
	if noCache {
		cfg.NoCache = true
	}
	// Explicit --database roots are searched before everything else.
	cfg.Stacks = append(append([]string{}, databases...), cfg.Stacks...)
	return cfg, nil
}

// renderError prints an error with its actionable context and, in
// verbose mode, the rendered guidance for the failure class.
func renderError(err error) {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+ae.Format(verbose))
	} else {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
	}
	if verbose {
		if guidance, ok := issue.For(err); ok {
			if rendered, renderErr := guidance.Render(); renderErr == nil {
				fmt.Fprintln(os.Stderr, rendered)
			}
		}
	}
}

// fail wraps an error for a non-zero exit after rendering it.
func fail(err error) error {
	renderError(err)
	return &ExitError{Code: 1, Err: err}
}
