// riskctl is the operator CLI for a riskmesh API.
package main

import (
	"fmt"
	"os"
)

// Version is set by ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
