// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natelust/reups/internal/issue"
	"github.com/natelust/reups/internal/setup"
)

var unsetupCmd = &cobra.Command{
	Use:   "unsetup <product>",
	Short: "Print the shell directives that undo a previous setup",
	Long: `Read the setup record stored in the REUPS_SETUP_<PRODUCT>
environment variable and print the directives that restore every
variable to its pre-setup state, including variables that were unset.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnsetup,
}

func runUnsetup(cmd *cobra.Command, args []string) error {
	result, err := setup.Unsetup(args[0], environMap())
	if err != nil {
		return fail(issue.NewErrorContext().
			WithOperation("unsetup product").
			WithResource(args[0]).
			WithSuggestion("Only products set up by reups in this shell can be unset up").
			Wrap(err).
			BuildError())
	}
	for _, directive := range result.Directives {
		fmt.Fprintln(cmd.OutOrStdout(), directive)
	}
	return nil
}
