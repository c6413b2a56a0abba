// SPDX-License-Identifier: MPL-2.0

// Package issue carries the user-facing error machinery: actionable
// errors with fix suggestions, plus rendered markdown guidance for the
// well-known failure classes the resolver and setup engine surface.
package issue

import (
	"errors"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"

	"github.com/natelust/reups/internal/dag"
	"github.com/natelust/reups/internal/resolve"
	"github.com/natelust/reups/internal/setup"
	"github.com/natelust/reups/internal/stack"
	"github.com/natelust/reups/pkg/table"
)

// Id identifies a guidance topic.
type Id int

const (
	UnknownProductId Id = iota + 1
	NoMatchingTagId
	VersionConflictId
	DependencyCycleId
	TableParseErrorId
	StackIoErrorId
	InterpolationErrorId
)

// Issue pairs a failure class with markdown help text.
type Issue struct {
	id    Id
	mdMsg string
}

// Id returns the issue identifier.
func (i *Issue) Id() Id { return i.id }

// Render renders the guidance as terminal markdown.
func (i *Issue) Render() (string, error) {
	return render(i.mdMsg)
}

var render = func(md string) (string, error) {
	return glamour.Render(md, "auto")
}

var issues = []*Issue{
	{
		id: UnknownProductId,
		mdMsg: `
# Unknown product

No stack in the search path declares this product.

## Things to check
- Run this command to see every product reups can find:
~~~
$ reups list
~~~
- Verify the stack search path:
~~~
$ echo $REUPS_PATH $EUPS_PATH
~~~
- Add stacks explicitly with ` + "`--database /path/to/stack`" + `.`,
	},
	{
		id: NoMatchingTagId,
		mdMsg: `
# No matching version

The product exists, but no version matched the request.

## Things to try
- List the declared versions and tags:
~~~
$ reups list <product>
~~~
- Name a version directly with ` + "`--version`" + `.
- Widen the tag preference, e.g. ` + "`--tag current --tag newest`" + `.`,
	},
	{
		id: VersionConflictId,
		mdMsg: `
# Version conflict

Two dependency edges pin the same product to different versions.
Nothing can satisfy both pins at once.

## Things to try
- Resolve with tags instead of pins using ` + "`--inexact`" + `.
- Set up the conflicting roots separately.`,
	},
	{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle

The required edges of these products form a loop, so no setup order
exists. The cycle is listed in the error; the table files of the named
products need fixing.`,
	},
	{
		id: TableParseErrorId,
		mdMsg: `
# Malformed table file

A table file could not be parsed; the failing file and line are in the
error. Unknown directives are skipped with a warning, but broken
quoting or unbalanced parentheses stop the resolver on purpose.`,
	},
	{
		id: StackIoErrorId,
		mdMsg: `
# Unreadable stack

A configured stack root is missing or unreadable. Check the paths in
your config file and the ` + "`REUPS_PATH`" + ` / ` + "`EUPS_PATH`" + `
environment variables.`,
	},
	{
		id: InterpolationErrorId,
		mdMsg: `
# Required variable unset

A table used the required form ` + "`${!VAR}`" + ` and the variable had
no value anywhere in the simulated environment. Set the variable before
running setup, or set up the product that provides it first.`,
	},
}

// Lookup returns the guidance for an id.
func Lookup(id Id) (*Issue, bool) {
	idx := slices.IndexFunc(issues, func(i *Issue) bool { return i.id == id })
	if idx < 0 {
		return nil, false
	}
	return issues[idx], true
}

// For maps a core error to its guidance topic.
func For(err error) (*Issue, bool) {
	var (
		unknownProduct *resolve.UnknownProductError
		noTag          *resolve.NoMatchingTagError
		conflict       *resolve.VersionConflictError
		cycle          *dag.CycleError
		parse          *table.ParseError
		stackIo        *stack.IoError
		interp         *setup.InterpolationError
	)
	switch {
	case errors.As(err, &unknownProduct):
		return Lookup(UnknownProductId)
	case errors.As(err, &noTag):
		return Lookup(NoMatchingTagId)
	case errors.As(err, &conflict):
		return Lookup(VersionConflictId)
	case errors.As(err, &cycle):
		return Lookup(DependencyCycleId)
	case errors.As(err, &parse):
		return Lookup(TableParseErrorId)
	case errors.As(err, &stackIo):
		return Lookup(StackIoErrorId)
	case errors.As(err, &interp):
		return Lookup(InterpolationErrorId)
	default:
		return nil, false
	}
}
