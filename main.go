// SPDX-License-Identifier: MPL-2.0

// Command userpack bundles userscripts with a managed metadata header.
package main

import cmd "github.com/invowk/userpack/cmd/userpack"

func main() {
	cmd.Execute()
}
