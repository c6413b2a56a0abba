// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/natelust/reups/internal/issue"
	"github.com/natelust/reups/internal/resolve"
	"github.com/natelust/reups/internal/setup"
)

var (
	setupVersion string
	setupTags    []string
	setupJust    bool
	setupKeep    bool
	setupInexact bool

	setupCmd = &cobra.Command{
		Use:   "setup <product> [product...]",
		Short: "Resolve products and print the shell directives that activate them",
		Long: `Resolve the requested products together with their dependency
graphs and print the environment mutations to stdout, ready for the
shell to evaluate. Diagnostics go to stderr, so the output is always
safe to eval.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSetup,
	}
)

func init() {
	setupCmd.Flags().StringVar(&setupVersion, "version", "", "set up this exact version (single product only)")
	setupCmd.Flags().StringArrayVarP(&setupTags, "tag", "t", nil, "tag to prefer, in order (repeatable)")
	setupCmd.Flags().BoolVarP(&setupJust, "just", "j", false, "set up only the named products, no dependencies")
	setupCmd.Flags().BoolVarP(&setupKeep, "keep", "k", false, "keep already set up dependencies instead of replacing them")
	setupCmd.Flags().BoolVarP(&setupInexact, "inexact", "E", false, "ignore pinned dependency versions and resolve by tag")
}

func runSetup(cmd *cobra.Command, args []string) error {
	db, cfg, err := openDatabase()
	if err != nil {
		return fail(err)
	}

	tagPref := append(append([]string{}, setupTags...), cfg.TagPreference...)

	res, err := resolve.Resolve(db, resolve.Request{
		Products:       args,
		Version:        setupVersion,
		TagPreference:  tagPref,
		Inexact:        setupInexact,
		NoDependencies: setupJust,
	})
	if err != nil {
		return fail(issue.NewErrorContext().
			WithOperation("resolve product").
			WithResource(strings.Join(args, ", ")).
			WithSuggestion("Run 'reups list' to see known products and tags").
			Wrap(err).
			BuildError())
	}

	result, err := setup.Apply(res, environMap(), setup.Options{
		Keep:    setupKeep,
		History: commandLine(),
	})
	if err != nil {
		return fail(issue.NewErrorContext().
			WithOperation("apply setup").
			WithResource(strings.Join(args, ", ")).
			Wrap(err).
			BuildError())
	}

	for _, directive := range result.Directives {
		fmt.Fprintln(cmd.OutOrStdout(), directive)
	}
	return nil
}
