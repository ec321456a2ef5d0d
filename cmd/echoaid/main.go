// Command echoaid is the operator CLI: it validates building datasets,
// previews evacuation routes and cell layouts, issues bearer tokens and
// runs shaking drills locally or against a running server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
