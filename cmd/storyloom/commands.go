// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/StoryloomAI/storyloom/cmd/storyloom/config"
	"github.com/StoryloomAI/storyloom/pkg/ux"
)

// --- Global Command Variables ---
var (
	outputStyle string // UX output style (styled/plain)
	dataDir     string // overrides storage.data_dir from the config file

	serveHost      string
	servePort      int
	serveAssetsDir string
	serveInMemory  bool

	exportOutput string
	exportBucket string
	exportUpload bool

	rootCmd = &cobra.Command{
		Use:   "storyloom",
		Short: "A cli to run and manage the Storyloom workflow editor",
		Long: `Storyloom serves the node-graph video workflow editor and
				manages the projects it stores.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX output style from flag or environment
			if outputStyle != "" {
				ux.SetMode(ux.ParseMode(outputStyle))
			} else {
				ux.InitMode()
			}
			if err := config.Load(); err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
		},
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow editor HTTP server",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Projects ---
	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "Inspect the projects in the local store",
	}
	listProjectsCmd = &cobra.Command{
		Use:   "list",
		Short: "List all stored projects",
		Run:   runListProjects, // Defined in cmd_export.go
	}

	// --- Export ---
	exportCmd = &cobra.Command{
		Use:   "export [project_id]",
		Short: "Export a project's workflow as a self-contained JSON document",
		Args:  cobra.ExactArgs(1),
		Run:   runExport, // Defined in cmd_export.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion, // Defined in main.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX output flag
	rootCmd.PersistentFlags().StringVar(&outputStyle, "style", "",
		"Output style: styled (default) or plain (scripting)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Project store directory (default from config)")
	serveCmd.Flags().StringVar(&serveAssetsDir, "assets-dir", "", "Directory watched for reusable assets")
	serveCmd.Flags().BoolVar(&serveInMemory, "in-memory", false, "Keep all projects in memory (lost on exit)")

	rootCmd.AddCommand(projectsCmd)
	projectsCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Project store directory (default from config)")
	projectsCmd.AddCommand(listProjectsCmd)

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Output filename, or '-' for stdout (default: export_{project_id}.json)")
	exportCmd.Flags().StringVar(&dataDir, "data-dir", "", "Project store directory (default from config)")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Also upload the export to the configured GCS bucket")
	exportCmd.Flags().StringVar(&exportBucket, "bucket", "", "GCS bucket for --upload (default from config)")

	rootCmd.AddCommand(versionCmd)
}
