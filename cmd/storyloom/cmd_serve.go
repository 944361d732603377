// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/StoryloomAI/storyloom/cmd/storyloom/config"
	"github.com/StoryloomAI/storyloom/pkg/logging"
	"github.com/StoryloomAI/storyloom/pkg/ux"
	"github.com/StoryloomAI/storyloom/services/editor"
	"github.com/StoryloomAI/storyloom/services/editor/history"
)

func runServe(cmd *cobra.Command, args []string) {
	cfg := buildEditorConfig(config.Global)

	ux.Title("Storyloom Editor")
	ux.KeyValue("listen", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if cfg.InMemory {
		ux.Warning("In-memory store: projects are lost when the server exits")
	} else {
		ux.KeyValue("store", cfg.DataDir)
	}
	if cfg.AssetsDir != "" {
		ux.KeyValue("assets", cfg.AssetsDir)
	}

	svc, err := editor.New(cfg, nil)
	if err != nil {
		ux.ErrorBox("Startup failed", err.Error())
		os.Exit(1)
	}
	if err := svc.Run(); err != nil {
		ux.ErrorBox("Server exited", err.Error())
		os.Exit(1)
	}
}

// buildEditorConfig maps the file configuration onto the service
// configuration, then lets command-line flags win over both.
func buildEditorConfig(g config.StoryloomConfig) editor.Config {
	cfg := editor.DefaultConfig()

	cfg.Host = g.Server.Host
	cfg.Port = g.Server.Port
	cfg.DataDir = g.Storage.DataDir
	cfg.AssetsDir = g.Assets.Dir

	cfg.OpenAIKeyEnv = g.Generation.OpenAIKeyEnv
	cfg.OpenAIKeyFile = g.Generation.OpenAIKeyFile
	cfg.OpenAIBaseURL = g.Generation.OpenAIBaseURL
	cfg.ImageModel = g.Generation.ImageModel
	cfg.VisionModel = g.Generation.VisionModel
	cfg.ImageSize = g.Generation.ImageSize
	cfg.ImageToImageURL = g.Generation.ImageToImageURL
	cfg.ImageToVideoURL = g.Generation.ImageToVideoURL
	cfg.MaxGenerations = g.Generation.MaxConcurrent
	cfg.GenerationsPerSecond = g.Generation.PerSecond
	cfg.GenerationBurst = g.Generation.Burst
	if g.Generation.TimeoutSeconds > 0 {
		cfg.GenerationTimeout = time.Duration(g.Generation.TimeoutSeconds) * time.Second
	}

	cfg.History = history.Config{
		URL:    g.History.URL,
		Token:  g.History.Token,
		Org:    g.History.Org,
		Bucket: g.History.Bucket,
	}

	cfg.Telemetry.ServiceVersion = version
	cfg.Telemetry.TraceExporter = g.Telemetry.TraceExporter
	cfg.Telemetry.MetricExporter = g.Telemetry.MetricExporter
	cfg.Telemetry.OTLPEndpoint = g.Telemetry.OTLPEndpoint

	cfg.Logging.Level = logging.ParseLevel(g.Logging.Level)
	cfg.Logging.LogDir = g.Logging.Dir
	// Interactive runs get readable logs; containers and systemd get JSON.
	cfg.Logging.JSON = !stderrIsTerminal()

	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if serveAssetsDir != "" {
		cfg.AssetsDir = serveAssetsDir
	}
	cfg.InMemory = serveInMemory
	return cfg
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
