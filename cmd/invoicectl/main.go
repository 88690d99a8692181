// Command invoicectl is the operator CLI: dev tokens, invoice workflow
// operations, stock reports, schema setup and an offline demo.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
