// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/StoryloomAI/storyloom/cmd/storyloom/config"
	"github.com/StoryloomAI/storyloom/cmd/storyloom/gcs"
	"github.com/StoryloomAI/storyloom/pkg/ux"
	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/persist"
	"github.com/StoryloomAI/storyloom/services/editor/persist/badger"
)

// exportDoc is the export format: project metadata and the full
// workflow in one self-contained document.
type exportDoc struct {
	Project    persist.Project `json:"project"`
	Workflow   graph.Snapshot  `json:"workflow"`
	ExportedAt time.Time       `json:"exportedAt"`
}

// openStoreReadOnly opens the configured project store without taking
// the write lock, so inspection works while the server is running.
func openStoreReadOnly() (*badger.Store, error) {
	path := config.Global.Storage.DataDir
	if dataDir != "" {
		path = dataDir
	}
	return badger.Open(badger.Config{Path: path, ReadOnly: true})
}

func runListProjects(cmd *cobra.Command, args []string) {
	store, err := openStoreReadOnly()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the project store: %v", err))
		os.Exit(1)
	}
	defer store.Close()

	projects, err := store.ListProjects(context.Background())
	if err != nil {
		ux.Error(fmt.Sprintf("Listing projects failed: %v", err))
		os.Exit(1)
	}
	if len(projects) == 0 {
		ux.Info("No projects in the store")
		return
	}

	for _, p := range projects {
		if ux.GetMode() == ux.ModePlain {
			fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, p.UpdatedAt.Format(time.RFC3339))
			continue
		}
		fmt.Printf("%s %s  %s\n", ux.IconReel.Render(), p.ID, p.Name)
		ux.Muted(fmt.Sprintf("   updated %s", p.UpdatedAt.Format("2006-01-02 15:04")))
	}
}

func runExport(cmd *cobra.Command, args []string) {
	projectID := args[0]
	ctx := context.Background()

	store, err := openStoreReadOnly()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the project store: %v", err))
		os.Exit(1)
	}
	defer store.Close()

	project, err := store.GetProject(ctx, projectID)
	if err != nil {
		ux.Error(fmt.Sprintf("Project lookup failed: %v", err))
		os.Exit(1)
	}
	workflow, err := store.LoadWorkflow(ctx, projectID)
	if err != nil {
		ux.Error(fmt.Sprintf("Loading the workflow failed: %v", err))
		os.Exit(1)
	}

	now := time.Now().UTC()
	data, err := json.MarshalIndent(exportDoc{
		Project:    project,
		Workflow:   workflow,
		ExportedAt: now,
	}, "", "  ")
	if err != nil {
		ux.Error(fmt.Sprintf("Encoding the export failed: %v", err))
		os.Exit(1)
	}
	data = append(data, '\n')

	out := exportFilename(projectID, exportOutput)
	if out == "-" {
		os.Stdout.Write(data)
	} else {
		if err := os.WriteFile(out, data, 0644); err != nil {
			ux.Error(fmt.Sprintf("Writing %s failed: %v", out, err))
			os.Exit(1)
		}
		ux.Success(fmt.Sprintf("Exported %q to %s", project.Name, out))
	}

	if exportUpload {
		uploadExport(ctx, projectID, now, data)
	}
}

// uploadExport pushes the serialized document to the configured GCS
// bucket under exports/<project-id>/<timestamp>.json.
func uploadExport(ctx context.Context, projectID string, ts time.Time, data []byte) {
	bucket := exportBucket
	if bucket == "" {
		bucket = config.Global.Export.Bucket
	}
	if bucket == "" {
		ux.Error("No GCS bucket configured: set export.bucket in the config or pass --bucket")
		os.Exit(1)
	}

	client, err := gcs.NewClient(ctx, bucket, config.Global.Export.CredentialsFile)
	if err != nil {
		ux.Error(fmt.Sprintf("GCS client unavailable: %v", err))
		os.Exit(1)
	}
	defer client.Close()

	objectPath := gcs.ObjectPath(projectID, ts)
	if err := client.UploadSnapshot(ctx, objectPath, data); err != nil {
		ux.Error(fmt.Sprintf("Upload failed: %v", err))
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Uploaded gs://%s/%s", bucket, objectPath))
}

// exportFilename resolves the output target: the -o flag when given,
// otherwise export_<project_id>.json in the working directory.
func exportFilename(projectID, flag string) string {
	if flag != "" {
		return flag
	}
	return fmt.Sprintf("export_%s.json", projectID)
}
