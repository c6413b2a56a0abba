// SPDX-License-Identifier: MPL-2.0

// Package setup translates a resolved product graph into shell
// directives. The engine never touches the process environment: it
// simulates every mutation on a shadow copy of the caller's
// environment, records per-product inverses for unsetup, and emits a
// deterministic directive list for the caller's shell to evaluate.
package setup

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/natelust/reups/internal/resolve"
	"github.com/natelust/reups/pkg/product"
	"github.com/natelust/reups/pkg/table"
)

// Options tunes one Apply call.
type Options struct {
	// Keep leaves already-set-up dependencies alone instead of
	// replacing them. Root products are always (re)applied.
	Keep bool
	// History, when non-empty, is the invoking command line to append
	// to REUPS_HISTORY.
	History string
}

// Result carries the ordered directives plus the final simulated
// environment (callers and tests use Env to verify round-trips).
type Result struct {
	Directives []string
	Env        map[string]string
}

// engine is the per-call state: one mutable shadow environment
// threaded explicitly, never a process-wide ambient.
type engine struct {
	env map[string]string

	// touched tracks every variable mutated at any point, including
	// by re-setup inversion, so emission covers exactly the net delta.
	touched map[string]bool
	// pathOrder remembers the first prepend/append touch per variable;
	// those variables emit after the plain sets, in this order.
	pathOrder []string
	pathSeen  map[string]bool

	aliases []string
	sources []string
}

func newEngine(callerEnv map[string]string) *engine {
	env := make(map[string]string, len(callerEnv))
	for k, v := range callerEnv {
		env[k] = v
	}
	return &engine{
		env:      env,
		touched:  make(map[string]bool),
		pathSeen: make(map[string]bool),
	}
}

func (e *engine) set(name, value string) {
	e.env[name] = value
	e.touched[name] = true
}

func (e *engine) unset(name string) {
	delete(e.env, name)
	e.touched[name] = true
}

func (e *engine) markPath(name string) {
	if !e.pathSeen[name] {
		e.pathSeen[name] = true
		e.pathOrder = append(e.pathOrder, name)
	}
}

// Apply evaluates the resolution against the caller environment.
func Apply(res *resolve.Resolution, callerEnv map[string]string, opts Options) (*Result, error) {
	e := newEngine(callerEnv)

	for _, node := range res.Nodes {
		name := node.Version.Product

		if opts.Keep && !node.Root {
			if _, ok := callerEnv[product.SetupVarName(name)]; ok {
				slog.Debug("keeping already set up product", "product", name)
				continue
			}
		}

		if err := e.applyProduct(node); err != nil {
			return nil, err
		}
	}

	if opts.History != "" {
		e.appendHistory(opts.History)
	}

	return e.result()
}

// applyProduct undoes any previous setup of the product, then applies
// its bookkeeping variables and table actions while recording the
// pre-setup value of everything it mutates.
func (e *engine) applyProduct(node *resolve.Node) error {
	name := node.Version.Product
	recVar := product.RecordVarName(name)

	if previous, ok := e.env[recVar]; ok {
		entries, err := decodeRecord(previous)
		if err != nil {
			slog.Warn("discarding unreadable setup record", "product", name, "error", err)
		} else {
			e.invert(entries)
		}
		e.unset(recVar)
	}

	rec := newRecorder(e)

	if node.Version.ProdDir != "" {
		rec.set(product.DirVarName(name), node.Version.ProdDir)
	}
	rec.set(product.SetupVarName(name), setupString(node.Version))

	prodDir := node.Version.ProdDir
	for _, action := range node.Table.Actions {
		if err := e.applyAction(rec, action, prodDir, name); err != nil {
			return err
		}
	}

	e.set(recVar, encodeRecord(rec.entries))
	return nil
}

func (e *engine) applyAction(rec *recorder, action table.Action, prodDir, productName string) error {
	switch action.Kind {
	case table.ActionEnvSet:
		value, err := interpolate(action.Value, prodDir, productName, e.env)
		if err != nil {
			return err
		}
		rec.set(action.Var, value)
	case table.ActionEnvUnset:
		rec.unset(action.Var)
	case table.ActionEnvPrepend, table.ActionEnvAppend:
		value, err := interpolate(action.Value, prodDir, productName, e.env)
		if err != nil {
			return err
		}
		existing, had := e.env[action.Var]
		var combined string
		switch {
		case !had || existing == "":
			combined = value
		case action.Kind == table.ActionEnvPrepend:
			combined = value + action.Delim + existing
		default:
			combined = existing + action.Delim + value
		}
		rec.set(action.Var, combined)
		e.markPath(action.Var)
	case table.ActionAlias:
		body, err := interpolate(action.Body, prodDir, productName, e.env)
		if err != nil {
			return err
		}
		quoted, err := quoteWord(body)
		if err != nil {
			return err
		}
		e.aliases = append(e.aliases, fmt.Sprintf("alias %s=%s", action.Name, quoted))
	case table.ActionUnalias:
		e.aliases = append(e.aliases, "unalias "+action.Name)
	case table.ActionSourceFile:
		path, err := interpolate(action.Path, prodDir, productName, e.env)
		if err != nil {
			return err
		}
		quoted, err := quoteWord(path)
		if err != nil {
			return err
		}
		e.sources = append(e.sources, "source "+quoted)
	}
	return nil
}

// invert restores the environment state a record captured.
func (e *engine) invert(entries []recordEntry) {
	for _, entry := range entries {
		if entry.HadValue {
			e.set(entry.Name, entry.Value)
		} else {
			e.unset(entry.Name)
		}
	}
}

// appendHistory records the invoking command, pipe-separated and
// quoted, without tracking it in any setup record: history survives
// unsetup on purpose.
func (e *engine) appendHistory(command string) {
	if existing, ok := e.env[product.HistoryVar]; ok && existing != "" {
		e.set(product.HistoryVar, existing+"|"+command)
	} else {
		e.set(product.HistoryVar, command)
	}
}

// result orders the directives: unsets first, then plain sets sorted
// by name, then the path-like variables in first-touch order, then
// aliases and sources in declaration order. Interpolations during
// evaluation already saw the shadow env, so this grouping only fixes
// the emitted text, never the semantics.
func (e *engine) result() (*Result, error) {
	var unsets, sets, paths []string

	names := make([]string, 0, len(e.touched))
	for name := range e.touched {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := e.env[name]; !ok {
			unsets = append(unsets, "unset "+name)
		}
	}
	for _, name := range names {
		value, ok := e.env[name]
		if !ok || e.pathSeen[name] {
			continue
		}
		directive, err := exportDirective(name, value)
		if err != nil {
			return nil, err
		}
		sets = append(sets, directive)
	}
	for _, name := range e.pathOrder {
		value, ok := e.env[name]
		if !ok {
			continue
		}
		directive, err := exportDirective(name, value)
		if err != nil {
			return nil, err
		}
		paths = append(paths, directive)
	}

	var directives []string
	directives = append(directives, unsets...)
	directives = append(directives, sets...)
	directives = append(directives, paths...)
	directives = append(directives, e.aliases...)
	directives = append(directives, e.sources...)

	return &Result{Directives: directives, Env: e.env}, nil
}

// Unsetup inverts the recorded setup of one product using nothing but
// the caller's environment.
func Unsetup(productName string, callerEnv map[string]string) (*Result, error) {
	recVar := product.RecordVarName(productName)
	encoded, ok := callerEnv[recVar]
	if !ok {
		return nil, fmt.Errorf("product %q is not set up (no %s in the environment)", productName, recVar)
	}
	entries, err := decodeRecord(encoded)
	if err != nil {
		return nil, err
	}

	e := newEngine(callerEnv)
	e.invert(entries)
	e.unset(recVar)
	return e.result()
}

// setupString renders the human-readable bookkeeping value stored in
// SETUP_<PRODUCT>: product, version, flavor, and owning database.
func setupString(v *product.Version) string {
	flavor := v.Flavor
	if flavor == "" {
		flavor = runtime.GOOS
	}
	dbPath := v.Stack
	if dbPath == "" {
		dbPath = "(none)"
	}
	return strings.Join([]string{v.Product, v.Version, "-f", flavor, "-Z", dbPath}, " ")
}

func exportDirective(name, value string) (string, error) {
	quoted, err := quoteWord(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("export %s=%s", name, quoted), nil
}

// quoteWord renders a value safe for the shell to evaluate, leaning on
// the shell grammar itself rather than ad hoc escaping.
func quoteWord(value string) (string, error) {
	quoted, err := syntax.Quote(value, syntax.LangBash)
	if err != nil {
		return "", fmt.Errorf("cannot quote %q for the shell: %w", value, err)
	}
	return quoted, nil
}

// recorder captures the pre-mutation value of every variable a single
// product touches, exactly once per variable.
type recorder struct {
	e       *engine
	seen    map[string]bool
	entries []recordEntry
}

func newRecorder(e *engine) *recorder {
	return &recorder{e: e, seen: make(map[string]bool)}
}

func (r *recorder) remember(name string) {
	if r.seen[name] {
		return
	}
	r.seen[name] = true
	value, had := r.e.env[name]
	r.entries = append(r.entries, recordEntry{Name: name, HadValue: had, Value: value})
}

func (r *recorder) set(name, value string) {
	r.remember(name)
	r.e.set(name, value)
}

func (r *recorder) unset(name string) {
	r.remember(name)
	r.e.unset(name)
}
