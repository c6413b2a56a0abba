// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/natelust/reups/pkg/product"
)

var (
	listTagsOnly     bool
	listVersionsOnly bool
	listSetupOnly    bool

	listCmd = &cobra.Command{
		Use:   "list [product]",
		Short: "List known products, their versions, and tags",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
)

func init() {
	listCmd.Flags().BoolVar(&listTagsOnly, "tags", false, "show only tag bindings")
	listCmd.Flags().BoolVar(&listVersionsOnly, "versions", false, "show only versions")
	listCmd.Flags().BoolVarP(&listSetupOnly, "setup", "s", false, "show only currently set up products")
}

func runList(cmd *cobra.Command, args []string) error {
	db, _, err := openDatabase()
	if err != nil {
		return fail(err)
	}

	names := db.ListProducts()
	if len(args) == 1 {
		names = []string{args[0]}
		if !db.HasProduct(args[0]) {
			fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("no such product: ")+args[0])
			return nil
		}
	}

	env := environMap()
	out := cmd.OutOrStdout()
	for _, name := range names {
		setupVersion := setupVersionFromEnv(env, name)
		if listSetupOnly && setupVersion == "" {
			continue
		}
		fmt.Fprintln(out, ProductStyle.Render(name))
		if !listTagsOnly {
			for _, v := range db.ListVersions(name) {
				marker := ""
				if v.Version == setupVersion {
					marker = "  " + SetupMarkerStyle.Render("setup")
				}
				flavor := ""
				if v.Flavor != "" {
					flavor = "  " + SubtitleStyle.Render(v.Flavor)
				}
				fmt.Fprintf(out, "   %s%s%s\n", v.Version, flavor, marker)
			}
		}
		if !listVersionsOnly {
			tags := db.ListTags(name)
			sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
			for _, tag := range tags {
				scope := ""
				if tag.Scope == product.ScopeUser {
					scope = SubtitleStyle.Render(" (user)")
				}
				fmt.Fprintf(out, "   %s -> %s%s\n", TagStyle.Render(tag.Name), tag.Version, scope)
			}
		}
	}
	return nil
}

// setupVersionFromEnv extracts the set-up version of a product from
// the SETUP_<PRODUCT> bookkeeping variable, when present.
func setupVersionFromEnv(env map[string]string, name string) string {
	value, ok := env[product.SetupVarName(name)]
	if !ok {
		return ""
	}
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
