// cartrustctl is the CLI client for cartrustd: it manages associated
// companion devices (list/show/rename/forget) over the daemon's admin
// HTTP API (spec.md §4.4).
package main

import (
	"github.com/carlinkd/cartrustd/cmd/cartrustctl/commands"
)

func main() {
	commands.Execute()
}
