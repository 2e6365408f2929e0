// reachd is the DragonReach service manager daemon.
package main

import (
	"os"

	"github.com/dragonreach/reach/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
