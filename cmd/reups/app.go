// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"strings"

	"github.com/natelust/reups/internal/config"
	"github.com/natelust/reups/internal/database"
	"github.com/natelust/reups/internal/issue"
)

// openDatabase loads the configuration and opens the union view over
// every configured stack.
func openDatabase() (*database.DB, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, issue.NewErrorContext().
			WithOperation("load configuration").
			WithSuggestion("Run 'reups config init' to create a default config").
			Wrap(err).
			BuildError()
	}
	if len(cfg.Stacks) == 0 {
		return nil, nil, issue.NewErrorContext().
			WithOperation("open product database").
			WithSuggestion("Set REUPS_PATH or EUPS_PATH to your stack roots").
			WithSuggestion("Or pass stacks explicitly with --database /path/to/stack").
			WithSuggestion("Or list them under 'stacks' in the config file").
			BuildError()
	}

	db, err := database.Open(cfg.Stacks, database.Options{
		CacheDir:   cfg.CacheDir,
		NoCache:    cfg.NoCache,
		UserTagDir: cfg.UserTagDir,
	})
	if err != nil {
		return nil, nil, issue.NewErrorContext().
			WithOperation("open product database").
			WithSuggestion("Check that every configured stack root exists and is readable").
			Wrap(err).
			BuildError()
	}
	return db, cfg, nil
}

// environMap snapshots the process environment as the caller env map
// the setup engine works from.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, entry := range os.Environ() {
		if i := strings.IndexByte(entry, '='); i > 0 {
			env[entry[:i]] = entry[i+1:]
		}
	}
	return env
}

// commandLine reconstructs the invoking command for REUPS_HISTORY.
func commandLine() string {
	return strings.Join(os.Args, " ")
}
