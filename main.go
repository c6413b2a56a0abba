// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/natelust/reups/cmd/reups"

func main() {
	cmd.Execute()
}
