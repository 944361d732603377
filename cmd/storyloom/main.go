// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command storyloom runs and manages the Storyloom workflow editor:
// it serves the editor API and inspects or exports stored projects.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/StoryloomAI/storyloom/pkg/ux"
)

// Version information, set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	ux.KeyValue("version", version)
	ux.KeyValue("commit", commit)
	ux.KeyValue("built", date)
}
