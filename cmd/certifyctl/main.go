// Package main is certifyctl, the command line client for a certify registry.
package main

import (
	"fmt"
	"os"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
