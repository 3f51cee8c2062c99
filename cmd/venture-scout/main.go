//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package main

import (
	"fmt"
	"os"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-alpha1"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
