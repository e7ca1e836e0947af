// Command extbridge runs the host side of the extension process bridge.
package main

import (
	"os"

	"github.com/dshills/extbridge/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
