// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natelust/reups/internal/config"
	"github.com/natelust/reups/internal/issue"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the reups configuration",
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE:  runConfigShow,
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		RunE:  runConfigInit,
	}
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fail(issue.WrapWithOperation(err, "load configuration"))
	}
	fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.CreateDefaultConfig()
	if err != nil {
		return fail(issue.WrapWithOperation(err, "create default config"))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config at %s\n", path)
	return nil
}
