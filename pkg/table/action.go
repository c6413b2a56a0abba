// SPDX-License-Identifier: MPL-2.0

package table

// ActionKind discriminates the Action tagged sum. The parser emits
// concrete variants and the setup engine switches over the kind.
type ActionKind int

const (
	// ActionSetupRequired declares a hard dependency edge.
	ActionSetupRequired ActionKind = iota
	// ActionSetupOptional declares a soft dependency edge.
	ActionSetupOptional
	// ActionEnvSet assigns a variable.
	ActionEnvSet
	// ActionEnvUnset removes a variable.
	ActionEnvUnset
	// ActionEnvPrepend prepends a value to a delimited variable.
	ActionEnvPrepend
	// ActionEnvAppend appends a value to a delimited variable.
	ActionEnvAppend
	// ActionAlias declares a shell alias.
	ActionAlias
	// ActionUnalias removes a shell alias.
	ActionUnalias
	// ActionSourceFile defers a shell-source directive to the caller.
	ActionSourceFile
)

// String returns the canonical directive keyword for the kind.
func (k ActionKind) String() string {
	switch k {
	case ActionSetupRequired:
		return "setupRequired"
	case ActionSetupOptional:
		return "setupOptional"
	case ActionEnvSet:
		return "envSet"
	case ActionEnvUnset:
		return "envUnset"
	case ActionEnvPrepend:
		return "envPrepend"
	case ActionEnvAppend:
		return "envAppend"
	case ActionAlias:
		return "alias"
	case ActionUnalias:
		return "unalias"
	case ActionSourceFile:
		return "sourceFile"
	default:
		return "unknown"
	}
}

// DefaultDelim is the separator used by envPrepend/envAppend when the
// directive does not name one.
const DefaultDelim = ":"

// Action is one evaluated step of a table file. Which fields are
// meaningful depends on Kind; all values are raw — ${VAR} and
// ${PRODUCT_DIR} references are resolved at emission time, not here.
type Action struct {
	Kind ActionKind

	// Product and Version describe setupRequired/setupOptional edges.
	// Version is empty for an unpinned edge.
	Product string
	Version string

	// Var and Value describe the env* directives. Delim is the
	// separator for prepend/append, defaulting to DefaultDelim.
	Var   string
	Value string
	Delim string

	// Name and Body describe alias/unalias.
	Name string
	Body string

	// Path is the sourceFile target.
	Path string

	// Line is the 1-based line the directive started on.
	Line int
}

// Dependency is a declared edge extracted from the setup directives.
type Dependency struct {
	Product  string
	Version  string
	Optional bool
	Line     int
}

// Table is the parsed dependency and environment declaration of one
// (product, version).
type Table struct {
	// Product is the owning product name.
	Product string
	// Path is the source table file, empty for synthetic tables.
	Path string
	// Actions in declaration order.
	Actions []Action
	// Dependencies extracted from setupRequired/setupOptional, in
	// declaration order.
	Dependencies []Dependency
	// Warnings collects recoverable parse problems (unknown
	// directives, bad argument counts) that were skipped.
	Warnings []string
}

// Empty returns a table with no actions, used for versions declared
// without a table file.
func Empty(productName string) *Table {
	return &Table{Product: productName}
}
