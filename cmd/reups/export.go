// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natelust/reups/internal/issue"
	"github.com/natelust/reups/internal/stack"
)

var (
	exportOutput string

	exportCmd = &cobra.Command{
		Use:   "export <stack-root>",
		Short: "Export a posix stack as a JSON snapshot",
		Long: `Walk a stack's ups_db tree and write its full enumeration as a
JSON snapshot. Snapshot files can be passed anywhere a stack root is
accepted, trading the directory walk for one file read.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	importCmd = &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Validate a JSON snapshot and summarize its contents",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "reups-snapshot.json", "snapshot file to write")
}

func runExport(cmd *cobra.Command, args []string) error {
	ix, err := stack.Read(args[0])
	if err != nil {
		return fail(issue.NewErrorContext().
			WithOperation("read stack").
			WithResource(args[0]).
			Wrap(err).
			BuildError())
	}
	if err := stack.WriteSnapshot(exportOutput, ix); err != nil {
		return fail(issue.NewErrorContext().
			WithOperation("write snapshot").
			WithResource(exportOutput).
			Wrap(err).
			BuildError())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d versions, %d tags)\n",
		exportOutput, len(ix.Versions), len(ix.Tags))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ix, err := stack.ReadSnapshot(args[0])
	if err != nil {
		return fail(issue.NewErrorContext().
			WithOperation("read snapshot").
			WithResource(args[0]).
			WithSuggestion("Snapshots are produced by 'reups export'").
			Wrap(err).
			BuildError())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d products, %d versions, %d tags\n",
		ix.Root, len(ix.Products()), len(ix.Versions), len(ix.Tags))
	fmt.Fprintf(cmd.OutOrStdout(), "use it as a stack with: reups --database %s ...\n", args[0])
	return nil
}
